package replay

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
)

// TrackGraph is an undirected graph of track nodes placed in 2-D. Each edge
// carries the real length of the track segment it represents.
type TrackGraph struct {
	g         *simple.WeightedUndirectedGraph
	positions map[int64]Point
}

// NewTrackGraph creates an empty track graph
func NewTrackGraph() *TrackGraph {
	return &TrackGraph{
		g:         simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		positions: make(map[int64]Point),
	}
}

// AddNode adds a node at the given position. Adding an existing node moves it.
func (tg *TrackGraph) AddNode(id int64, pos Point) {
	if tg.g.Node(id) == nil {
		tg.g.AddNode(simple.Node(id))
	}
	tg.positions[id] = pos
}

// AddEdge connects two existing nodes. A non-positive length is replaced by
// the Euclidean distance between the node positions.
func (tg *TrackGraph) AddEdge(u, v int64, length float64) error {
	pu, okU := tg.positions[u]
	pv, okV := tg.positions[v]
	if !okU || !okV {
		return errors.Wrapf(ErrConfiguration, "edge (%d, %d) refers to an unknown node", u, v)
	}
	if u == v {
		return errors.Wrapf(ErrConfiguration, "self-loop on node %d", u)
	}
	if !isFinite(length) {
		return errors.Wrapf(ErrConfiguration, "edge (%d, %d) has non-finite length %v", u, v, length)
	}
	if length <= 0 {
		length = euclideanDistance(pu, pv)
	}
	if length <= 0 {
		return errors.Wrapf(ErrConfiguration, "edge (%d, %d) has zero length", u, v)
	}
	tg.g.SetWeightedEdge(tg.g.NewWeightedEdge(simple.Node(u), simple.Node(v), length))
	return nil
}

// Clone returns a deep copy of the graph. Cloning nil yields nil.
func (tg *TrackGraph) Clone() *TrackGraph {
	if tg == nil {
		return nil
	}
	out := NewTrackGraph()
	for id, pos := range tg.positions {
		out.AddNode(id, pos)
	}
	it := tg.g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		out.g.SetWeightedEdge(out.g.NewWeightedEdge(simple.Node(e.From().ID()), simple.Node(e.To().ID()), e.Weight()))
	}
	return out
}

// NodePosition returns the 2-D position of a node
func (tg *TrackGraph) NodePosition(id int64) (Point, bool) {
	p, ok := tg.positions[id]
	return p, ok
}

// EdgeLength returns the length of the edge between u and v
func (tg *TrackGraph) EdgeLength(u, v int64) (float64, bool) {
	e := tg.g.WeightedEdgeBetween(u, v)
	if e == nil {
		return 0, false
	}
	return e.Weight(), true
}

// NodeIDs returns node identifiers in ascending order
func (tg *TrackGraph) NodeIDs() []int64 {
	ids := make([]int64, 0, len(tg.positions))
	for id := range tg.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns every edge as an ordered (low, high) node pair, sorted
func (tg *TrackGraph) Edges() [][2]int64 {
	out := make([][2]int64, 0)
	it := tg.g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		u, v := e.From().ID(), e.To().ID()
		if u > v {
			u, v = v, u
		}
		out = append(out, [2]int64{u, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func (tg *TrackGraph) maxNodeID() int64 {
	maxID := int64(-1)
	for id := range tg.positions {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}
