package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/rail-planner/model"
)

// RouterConfig holds the cost adjustments applied on top of edge weights.
type RouterConfig struct {
	// CapacityPenalty is added to an edge whose load has reached capacity.
	CapacityPenalty float64
	// PriorityBonus is added to every edge for trains above
	// PriorityThreshold. It is normally negative.
	PriorityBonus     float64
	PriorityThreshold int
}

// DefaultRouterConfig returns the standard routing constants.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CapacityPenalty:   10,
		PriorityBonus:     -0.1,
		PriorityThreshold: 7,
	}
}

// Route is the result of a route search. An unreachable destination yields
// an empty Path and a TotalCost of +Inf.
type Route struct {
	Path       []int   `json:"path"`
	TotalCost  float64 `json:"totalCost"`
	TracksUsed []int   `json:"tracks"`
}

// Reachable reports whether the search found a path.
func (r Route) Reachable() bool {
	return len(r.Path) > 0 && !math.IsInf(r.TotalCost, 1)
}

func unreachable() Route {
	return Route{Path: []int{}, TotalCost: math.Inf(1), TracksUsed: []int{}}
}

// EdgeCost is the routing cost of traversing e for a train of the given
// priority.
func (c RouterConfig) EdgeCost(e Edge, priority int) float64 {
	cost := e.Weight
	if e.CurrentLoad >= e.Capacity {
		cost += c.CapacityPenalty
	}
	if priority > c.PriorityThreshold {
		cost += c.PriorityBonus
	}
	return cost
}

// FindRoute runs Dijkstra from one station to another. The graph is only
// read; use CommitRoute to record occupancy.
//
// Selection is a linear scan over stations in input order with strict
// comparisons, so the first minimum discovered wins ties.
func (g *NetworkGraph) FindRoute(from, to, priority int) Route {
	if _, ok := g.stations[from]; !ok {
		return unreachable()
	}
	if _, ok := g.stations[to]; !ok {
		return unreachable()
	}
	if from == to {
		return Route{Path: []int{from}, TotalCost: 0, TracksUsed: []int{}}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := make(map[int]float64, len(g.order))
	prev := make(map[int]int, len(g.order))
	via := make(map[int]int, len(g.order))
	visited := make(map[int]bool, len(g.order))
	for _, id := range g.order {
		dist[id] = math.Inf(1)
	}
	dist[from] = 0

	for range g.order {
		current := -1
		best := math.Inf(1)
		found := false
		for _, id := range g.order {
			if visited[id] {
				continue
			}
			if dist[id] < best {
				best = dist[id]
				current = id
				found = true
			}
		}
		if !found {
			break
		}
		visited[current] = true
		if current == to {
			break
		}

		for _, e := range g.adj[current] {
			if visited[e.To] {
				continue
			}
			alt := best + g.router.EdgeCost(e, priority)
			if alt < dist[e.To] {
				dist[e.To] = alt
				prev[e.To] = current
				via[e.To] = e.TrackID
			}
		}
	}

	if math.IsInf(dist[to], 1) {
		return unreachable()
	}

	path := []int{to}
	tracks := []int{}
	for node := to; node != from; {
		p := prev[node]
		tracks = append(tracks, via[node])
		path = append(path, p)
		node = p
	}
	reverseInts(path)
	reverseInts(tracks)

	return Route{Path: path, TotalCost: dist[to], TracksUsed: tracks}
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func sortTracks(tracks []model.Track) {
	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].ID < tracks[j].ID
	})
}
