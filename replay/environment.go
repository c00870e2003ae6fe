package replay

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

// EnvironmentConfig describes how to discretize an environment. Exactly one
// mode is active: track-graph mode when a track graph is set, free-space mode
// otherwise.
type EnvironmentConfig struct {
	name               string
	placeBinSize       float64
	trackGraph         *TrackGraph
	edgeOrder          [][2]int64
	edgeSpacing        []float64
	isTrackInterior    []bool
	positionRange      [][2]float64
	inferTrackInterior bool
}

// EnvironmentOption customizes an EnvironmentConfig
type EnvironmentOption func(*EnvironmentConfig)

// WithTrackGraph switches the environment into track-graph mode. edgeOrder
// lists the edges in traversal order and edgeSpacing the gap inserted after
// each of them but the last (a single value is used for every gap).
func WithTrackGraph(trackGraph *TrackGraph, edgeOrder [][2]int64, edgeSpacing []float64) EnvironmentOption {
	return func(cfg *EnvironmentConfig) {
		cfg.trackGraph = trackGraph
		cfg.edgeOrder = append([][2]int64(nil), edgeOrder...)
		cfg.edgeSpacing = copyFloats(edgeSpacing)
	}
}

// WithPositionRange fixes the [min, max] extent of every dimension
func WithPositionRange(positionRange [][2]float64) EnvironmentOption {
	return func(cfg *EnvironmentConfig) {
		cfg.positionRange = append([][2]float64(nil), positionRange...)
	}
}

// WithTrackInterior sets an explicit interior mask, bypassing inference
func WithTrackInterior(isTrackInterior []bool) EnvironmentOption {
	return func(cfg *EnvironmentConfig) {
		cfg.isTrackInterior = append([]bool(nil), isTrackInterior...)
	}
}

// WithInferTrackInterior toggles interior inference from occupancy. Default is true.
func WithInferTrackInterior(infer bool) EnvironmentOption {
	return func(cfg *EnvironmentConfig) {
		cfg.inferTrackInterior = infer
	}
}

// NewEnvironmentConfig creates a configuration with the given place bin size
func NewEnvironmentConfig(name string, placeBinSize float64, options ...EnvironmentOption) EnvironmentConfig {
	cfg := EnvironmentConfig{
		name:               name,
		placeBinSize:       placeBinSize,
		inferTrackInterior: true,
	}
	for _, option := range options {
		option(&cfg)
	}
	return cfg
}

// Name returns the environment name
func (cfg EnvironmentConfig) Name() string {
	return cfg.name
}

// PlaceBinSize returns the configured bin size
func (cfg EnvironmentConfig) PlaceBinSize() float64 {
	return cfg.placeBinSize
}

// IsTrackGraphMode reports whether a track graph is configured
func (cfg EnvironmentConfig) IsTrackGraphMode() bool {
	return cfg.trackGraph != nil
}

// TrackGraph returns a copy of the configured track graph, nil in free-space mode
func (cfg EnvironmentConfig) TrackGraph() *TrackGraph {
	return cfg.trackGraph.Clone()
}

// EdgeOrder returns the configured traversal order of track edges
func (cfg EnvironmentConfig) EdgeOrder() [][2]int64 {
	return append([][2]int64(nil), cfg.edgeOrder...)
}

// EdgeSpacing returns the configured spacing between track edges
func (cfg EnvironmentConfig) EdgeSpacing() []float64 {
	return copyFloats(cfg.edgeSpacing)
}

// FittedEnvironment is the immutable result of FitPlaceGrid. The zero value
// is an unfitted environment: every accessor returning geometry fails with
// ErrNotFitted.
type FittedEnvironment struct {
	fitted   bool
	config   EnvironmentConfig
	geometry BinGeometry
	interior []bool
	track    *trackGrid
}

// FitPlaceGrid discretizes the environment. position holds n_time samples of
// D coordinates; it may be nil in free-space mode when a position range is
// configured and interior inference is off, and it is ignored in track-graph
// mode. Calling it again with the same inputs returns identical geometry.
func (cfg EnvironmentConfig) FitPlaceGrid(position [][]float64) (*FittedEnvironment, error) {
	if !(cfg.placeBinSize > 0) || !isFinite(cfg.placeBinSize) {
		return nil, errors.Wrapf(ErrConfiguration, "place bin size must be positive, got %v", cfg.placeBinSize)
	}
	// The fitted environment owns its own graph so later edits by the caller
	// don't leak into it
	cfg.trackGraph = cfg.trackGraph.Clone()
	cfg.edgeOrder = append([][2]int64(nil), cfg.edgeOrder...)
	cfg.edgeSpacing = copyFloats(cfg.edgeSpacing)
	cfg.positionRange = append([][2]float64(nil), cfg.positionRange...)
	cfg.isTrackInterior = append([]bool(nil), cfg.isTrackInterior...)
	fitted := &FittedEnvironment{
		fitted: true,
		config: cfg,
	}
	if cfg.trackGraph != nil {
		grid, err := fitTrackGrid(cfg.trackGraph, cfg.edgeOrder, cfg.edgeSpacing, cfg.placeBinSize)
		if err != nil {
			return nil, errors.Wrapf(err, "can't fit track grid of environment %q", cfg.name)
		}
		geometry, err := newBinGeometry([][]float64{grid.edges})
		if err != nil {
			return nil, err
		}
		fitted.geometry = geometry
		fitted.interior = grid.interior
		fitted.track = grid
	} else {
		infer := cfg.inferTrackInterior && cfg.isTrackInterior == nil
		edges, err := freeGridEdges(position, cfg.placeBinSize, cfg.positionRange, infer)
		if err != nil {
			return nil, errors.Wrapf(err, "can't fit grid of environment %q", cfg.name)
		}
		geometry, err := newBinGeometry(edges)
		if err != nil {
			return nil, err
		}
		fitted.geometry = geometry
		switch {
		case infer:
			if len(position) == 0 {
				return nil, errors.Wrapf(ErrConfiguration, "environment %q infers the track interior but has no position samples", cfg.name)
			}
			fitted.interior = inferTrackInterior(position, geometry)
			if !anyTrue(fitted.interior) {
				return nil, errors.Wrapf(ErrConfiguration, "environment %q infers the track interior but no finite sample lies inside the grid", cfg.name)
			}
		default:
			fitted.interior = make([]bool, geometry.NumBins())
			for i := range fitted.interior {
				fitted.interior[i] = true
			}
		}
	}
	if cfg.isTrackInterior != nil {
		if len(cfg.isTrackInterior) != fitted.geometry.NumBins() {
			return nil, errors.Wrapf(ErrConfiguration, "track interior mask has %d values, grid has %d bins", len(cfg.isTrackInterior), fitted.geometry.NumBins())
		}
		fitted.interior = append([]bool(nil), cfg.isTrackInterior...)
	}
	return fitted, nil
}

func (fe *FittedEnvironment) check() error {
	if fe == nil || !fe.fitted {
		return ErrNotFitted
	}
	return nil
}

// IsFitted reports whether the environment holds a fitted grid
func (fe *FittedEnvironment) IsFitted() bool {
	return fe.check() == nil
}

// Config returns the configuration the environment was fitted from
func (fe *FittedEnvironment) Config() (EnvironmentConfig, error) {
	if err := fe.check(); err != nil {
		return EnvironmentConfig{}, err
	}
	return fe.config, nil
}

// Geometry returns the bin geometry
func (fe *FittedEnvironment) Geometry() (BinGeometry, error) {
	if err := fe.check(); err != nil {
		return BinGeometry{}, err
	}
	return fe.geometry, nil
}

// IsTrackInterior returns a copy of the interior mask, aligned with the bin centers
func (fe *FittedEnvironment) IsTrackInterior() ([]bool, error) {
	if err := fe.check(); err != nil {
		return nil, err
	}
	return append([]bool(nil), fe.interior...), nil
}

// DistanceBetweenNodes returns shortest path lengths between bin centers
// along the track graph. Track-graph mode only.
func (fe *FittedEnvironment) DistanceBetweenNodes() (*mat.Dense, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(fe.track.distances), nil
}

// TrackGraphWithBinCenters returns a copy of the track graph whose traversed
// edges are subdivided by bin-edge and bin-center nodes.
func (fe *FittedEnvironment) TrackGraphWithBinCenters() (*simple.WeightedUndirectedGraph, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	nodes := fe.track.augmented.Nodes()
	for nodes.Next() {
		g.AddNode(nodes.Node())
	}
	edges := fe.track.augmented.WeightedEdges()
	for edges.Next() {
		g.SetWeightedEdge(edges.WeightedEdge())
	}
	return g, nil
}

// OriginalNodes returns the endpoints of every traversed edge
func (fe *FittedEnvironment) OriginalNodes() ([]NodeInfo, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	return append([]NodeInfo(nil), fe.track.originalNodes...), nil
}

// PlaceBinEdgeNodes returns the nodes inserted at bin boundaries
func (fe *FittedEnvironment) PlaceBinEdgeNodes() ([]NodeInfo, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	return append([]NodeInfo(nil), fe.track.edgeNodes...), nil
}

// PlaceBinCenterNodes returns the nodes inserted at bin centers
func (fe *FittedEnvironment) PlaceBinCenterNodes() ([]NodeInfo, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	return append([]NodeInfo(nil), fe.track.centerNodes...), nil
}

// Nodes returns every node table concatenated: original, bin edge, bin center
func (fe *FittedEnvironment) Nodes() ([]NodeInfo, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	out := make([]NodeInfo, 0, len(fe.track.originalNodes)+len(fe.track.edgeNodes)+len(fe.track.centerNodes))
	out = append(out, fe.track.originalNodes...)
	out = append(out, fe.track.edgeNodes...)
	out = append(out, fe.track.centerNodes...)
	return out, nil
}

func (fe *FittedEnvironment) checkTrack() error {
	if err := fe.check(); err != nil {
		return err
	}
	if fe.track == nil {
		return errors.Wrapf(ErrConfiguration, "environment %q has no track graph", fe.config.name)
	}
	return nil
}

// LinearizePosition projects 2-D samples onto the nearest traversed edge and
// returns their linear track coordinate. Non-finite samples map to NaN.
func (fe *FittedEnvironment) LinearizePosition(position [][]float64) ([]float64, error) {
	if err := fe.checkTrack(); err != nil {
		return nil, err
	}
	out := make([]float64, len(position))
	for t, row := range position {
		if len(row) != 2 {
			return nil, errors.Wrapf(ErrInvalidInput, "sample %d has %d coordinates, linearization needs 2", t, len(row))
		}
		if !IsFiniteRow(row) {
			out[t] = nanValue
			continue
		}
		out[t] = fe.track.linearize(NewPoint(row[0], row[1]))
	}
	return out, nil
}

// BinIndex returns the bin containing a sample
func (fe *FittedEnvironment) BinIndex(sample []float64) (int, error) {
	if err := fe.check(); err != nil {
		return -1, err
	}
	index, ok := fe.geometry.locate(sample)
	if !ok {
		return -1, errors.Wrapf(ErrInvalidInput, "sample %v lies outside the grid", sample)
	}
	return fe.geometry.flatIndex(index), nil
}
