package replay

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

// NodeKind tells original track nodes from nodes inserted during binning
type NodeKind uint8

const (
	// NodeOriginal is a node of the user supplied track graph
	NodeOriginal NodeKind = iota
	// NodeBinEdge is inserted at a bin boundary
	NodeBinEdge
	// NodeBinCenter is inserted at a bin center
	NodeBinCenter
)

func (k NodeKind) String() string {
	switch k {
	case NodeOriginal:
		return "original"
	case NodeBinEdge:
		return "bin_edge"
	case NodeBinCenter:
		return "bin_center"
	default:
		return "unknown"
	}
}

// NodeInfo is one row of the node lookup tables of a linearized track
type NodeInfo struct {
	ID             int64
	Kind           NodeKind
	Position       Point
	LinearPosition float64
	// EdgeID is the index of the edge in the edge order
	EdgeID int
	// BinIndex is the bin of a NodeBinCenter node, -1 otherwise
	BinIndex int
}

// trackSegment is a piece of the linear coordinate: either a traversed edge
// or the spacing inserted after it.
type trackSegment struct {
	start  float64
	end    float64
	edgeID int
	isGap  bool
}

type trackGrid struct {
	edges         []float64
	interior      []bool
	binEdgeID     []int
	distances     *mat.Dense
	augmented     *simple.WeightedUndirectedGraph
	originalNodes []NodeInfo
	edgeNodes     []NodeInfo
	centerNodes   []NodeInfo
	edgeStarts    []float64
	edgeLengths   []float64
	// edgeEndpoints holds the node positions of every traversed edge as they
	// were at fit time
	edgeEndpoints [][2]Point
}

// binCount returns how many bins of binSize cover length. The small slack
// keeps exact multiples from gaining a bin to rounding.
func binCount(length, binSize float64) int {
	return maxInt(1, int(math.Ceil(length/binSize-1e-9)))
}

// resolveEdgeSpacing expands the configured spacing to one gap per
// consecutive edge pair.
func resolveEdgeSpacing(spacing []float64, nEdges int) ([]float64, error) {
	nGaps := nEdges - 1
	out := make([]float64, maxInt(nGaps, 0))
	switch {
	case len(spacing) == 0:
	case len(spacing) == 1:
		for i := range out {
			out[i] = spacing[0]
		}
	case len(spacing) == nGaps:
		copy(out, spacing)
	default:
		return nil, errors.Wrapf(ErrConfiguration, "edge spacing has %d values, edge order needs %d", len(spacing), nGaps)
	}
	for i, s := range out {
		if s < 0 || !isFinite(s) {
			return nil, errors.Wrapf(ErrConfiguration, "edge spacing %d is %v, must be finite and non-negative", i, s)
		}
	}
	return out, nil
}

func fitTrackGrid(tg *TrackGraph, edgeOrder [][2]int64, edgeSpacing []float64, binSize float64) (*trackGrid, error) {
	if tg == nil {
		return nil, errors.Wrap(ErrConfiguration, "track graph is nil")
	}
	if len(edgeOrder) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "edge order is empty")
	}
	spacing, err := resolveEdgeSpacing(edgeSpacing, len(edgeOrder))
	if err != nil {
		return nil, err
	}

	grid := &trackGrid{
		edgeStarts:    make([]float64, len(edgeOrder)),
		edgeLengths:   make([]float64, len(edgeOrder)),
		edgeEndpoints: make([][2]Point, len(edgeOrder)),
	}
	segments := make([]trackSegment, 0, 2*len(edgeOrder))
	cursor := 0.0
	for i, edge := range edgeOrder {
		length, ok := tg.EdgeLength(edge[0], edge[1])
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "edge (%d, %d) from edge order is not in the track graph", edge[0], edge[1])
		}
		pu, _ := tg.NodePosition(edge[0])
		pv, _ := tg.NodePosition(edge[1])
		grid.edgeStarts[i] = cursor
		grid.edgeLengths[i] = length
		grid.edgeEndpoints[i] = [2]Point{pu, pv}
		segments = append(segments, trackSegment{start: cursor, end: cursor + length, edgeID: i})
		cursor += length
		if i < len(spacing) && spacing[i] > 0 {
			segments = append(segments, trackSegment{start: cursor, end: cursor + spacing[i], edgeID: i, isGap: true})
			cursor += spacing[i]
		}
	}

	// Consecutive segments share their boundary, so every bin contributes
	// only its upper edge after the very first one.
	grid.edges = []float64{segments[0].start}
	for _, seg := range segments {
		segEdges := linspace(seg.start, seg.end, binCount(seg.end-seg.start, binSize)+1)
		for _, e := range segEdges[1:] {
			grid.edges = append(grid.edges, e)
			grid.interior = append(grid.interior, !seg.isGap)
			grid.binEdgeID = append(grid.binEdgeID, seg.edgeID)
		}
	}

	grid.buildAugmentedGraph(tg, edgeOrder)
	grid.computeDistances()
	return grid, nil
}

// buildAugmentedGraph copies the track graph and subdivides every traversed
// edge with bin-edge and bin-center nodes.
func (grid *trackGrid) buildAugmentedGraph(tg *TrackGraph, edgeOrder [][2]int64) {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, id := range tg.NodeIDs() {
		g.AddNode(simple.Node(id))
	}
	for _, e := range tg.Edges() {
		length, _ := tg.EdgeLength(e[0], e[1])
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(e[0]), simple.Node(e[1]), length))
	}

	centers := midpoints(grid.edges)
	nextID := tg.maxNodeID() + 1
	for i, edge := range edgeOrder {
		u, v := edge[0], edge[1]
		pu, pv := grid.edgeEndpoints[i][0], grid.edgeEndpoints[i][1]
		start := grid.edgeStarts[i]
		length := grid.edgeLengths[i]
		end := start + length

		grid.originalNodes = append(grid.originalNodes,
			NodeInfo{ID: u, Kind: NodeOriginal, Position: pu, LinearPosition: start, EdgeID: i, BinIndex: -1},
			NodeInfo{ID: v, Kind: NodeOriginal, Position: pv, LinearPosition: end, EdgeID: i, BinIndex: -1},
		)

		// Collect bin boundaries and centers lying on this edge in linear order
		chain := make([]NodeInfo, 0)
		for b := range centers {
			if grid.binEdgeID[b] != i || !grid.interior[b] {
				continue
			}
			lower := grid.edges[b]
			upper := grid.edges[b+1]
			if len(chain) == 0 {
				chain = append(chain, grid.newNode(&nextID, NodeBinEdge, lower, i, -1, pu, pv, start, length))
			}
			chain = append(chain,
				grid.newNode(&nextID, NodeBinCenter, centers[b], i, b, pu, pv, start, length),
				grid.newNode(&nextID, NodeBinEdge, upper, i, -1, pu, pv, start, length),
			)
		}

		g.RemoveEdge(u, v)
		prevID := u
		prevLinear := start
		for _, node := range chain {
			g.AddNode(simple.Node(node.ID))
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(prevID), simple.Node(node.ID), node.LinearPosition-prevLinear))
			prevID = node.ID
			prevLinear = node.LinearPosition
			if node.Kind == NodeBinCenter {
				grid.centerNodes = append(grid.centerNodes, node)
			} else {
				grid.edgeNodes = append(grid.edgeNodes, node)
			}
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(prevID), simple.Node(v), end-prevLinear))
	}
	grid.augmented = g
}

func (grid *trackGrid) newNode(nextID *int64, kind NodeKind, linear float64, edgeID, bin int, pu, pv Point, start, length float64) NodeInfo {
	id := *nextID
	*nextID++
	return NodeInfo{
		ID:             id,
		Kind:           kind,
		Position:       pu.Lerp(pv, (linear-start)/length),
		LinearPosition: linear,
		EdgeID:         edgeID,
		BinIndex:       bin,
	}
}

// computeDistances fills the bin-to-bin shortest path lengths along the
// augmented graph. Bins without a center node (spacing bins) are +Inf away
// from everything but themselves.
func (grid *trackGrid) computeDistances() {
	nBins := len(grid.interior)
	dist := mat.NewDense(nBins, nBins, nil)
	for i := 0; i < nBins; i++ {
		for j := 0; j < nBins; j++ {
			if i != j {
				dist.Set(i, j, math.Inf(1))
			}
		}
	}
	for _, from := range grid.centerNodes {
		shortest := path.DijkstraFrom(simple.Node(from.ID), grid.augmented)
		for _, to := range grid.centerNodes {
			dist.Set(from.BinIndex, to.BinIndex, shortest.WeightTo(to.ID))
		}
	}
	grid.distances = dist
}

// linearize projects a 2-D sample onto the closest traversed edge
func (grid *trackGrid) linearize(sample Point) float64 {
	best := math.Inf(1)
	linear := math.NaN()
	for i, ends := range grid.edgeEndpoints {
		frac, dist := projectOntoSegment(sample, ends[0], ends[1])
		if dist < best {
			best = dist
			linear = grid.edgeStarts[i] + frac*grid.edgeLengths[i]
		}
	}
	return linear
}
