package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/rail-planner/model"
)

var (
	// ErrInvalidTopology is returned when stations and tracks do not form a
	// usable graph.
	ErrInvalidTopology = errors.New("invalid network topology")
	// ErrDuplicateStation indicates two stations share an ID.
	ErrDuplicateStation = errors.New("duplicate station")
	// ErrDuplicateTrack indicates two tracks share an ID.
	ErrDuplicateTrack = errors.New("duplicate track")
)

// InvalidTopologyError reports a track that references a station the graph
// does not know about. It matches ErrInvalidTopology with errors.Is.
type InvalidTopologyError struct {
	TrackID   int
	StationID int
}

func (e *InvalidTopologyError) Error() string {
	return fmt.Sprintf("track %d references unknown station %d", e.TrackID, e.StationID)
}

// Is lets errors.Is(err, ErrInvalidTopology) match.
func (e *InvalidTopologyError) Is(target error) bool {
	return target == ErrInvalidTopology
}

// Edge is one directed traversal of a track. CurrentLoad is an advisory
// occupancy estimate used as a routing penalty.
type Edge struct {
	To          int     `json:"toStationId"`
	TrackID     int     `json:"trackId"`
	Weight      float64 `json:"weight"`
	Capacity    int     `json:"capacity"`
	CurrentLoad int     `json:"currentLoad"`
}

// NetworkGraph is the station/track adjacency. Stations and tracks are fixed
// once built; only edge load counters change, and those are guarded by mu.
type NetworkGraph struct {
	mu sync.RWMutex

	// order preserves station input order; routing iterates it so that ties
	// resolve deterministically.
	order    []int
	stations map[int]model.Station
	tracks   map[int]model.Track
	adj      map[int][]Edge

	router RouterConfig
}

// GraphOption customises NetworkGraph construction.
type GraphOption func(*NetworkGraph)

// WithRouterConfig overrides the routing cost constants.
func WithRouterConfig(cfg RouterConfig) GraphOption {
	return func(g *NetworkGraph) {
		g.router = cfg
	}
}

// BuildGraph builds a bidirectional graph from stations and tracks. Each
// track contributes two directed edges with identical weight and capacity
// and independent load counters.
func BuildGraph(stations []model.Station, tracks []model.Track, opts ...GraphOption) (*NetworkGraph, error) {
	g := &NetworkGraph{
		order:    make([]int, 0, len(stations)),
		stations: make(map[int]model.Station, len(stations)),
		tracks:   make(map[int]model.Track, len(tracks)),
		adj:      make(map[int][]Edge, len(stations)),
		router:   DefaultRouterConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	for _, st := range stations {
		if _, exists := g.stations[st.ID]; exists {
			return nil, fmt.Errorf("%w: %w: station %d", ErrInvalidTopology, ErrDuplicateStation, st.ID)
		}
		g.stations[st.ID] = st
		g.order = append(g.order, st.ID)
		g.adj[st.ID] = nil
	}

	for _, tr := range tracks {
		if _, exists := g.tracks[tr.ID]; exists {
			return nil, fmt.Errorf("%w: %w: track %d", ErrInvalidTopology, ErrDuplicateTrack, tr.ID)
		}
		if _, ok := g.stations[tr.FromStationID]; !ok {
			return nil, &InvalidTopologyError{TrackID: tr.ID, StationID: tr.FromStationID}
		}
		if _, ok := g.stations[tr.ToStationID]; !ok {
			return nil, &InvalidTopologyError{TrackID: tr.ID, StationID: tr.ToStationID}
		}
		g.tracks[tr.ID] = tr

		weight := tr.Weight()
		capacity := tr.Type.Capacity()
		g.adj[tr.FromStationID] = append(g.adj[tr.FromStationID], Edge{
			To:       tr.ToStationID,
			TrackID:  tr.ID,
			Weight:   weight,
			Capacity: capacity,
		})
		g.adj[tr.ToStationID] = append(g.adj[tr.ToStationID], Edge{
			To:       tr.FromStationID,
			TrackID:  tr.ID,
			Weight:   weight,
			Capacity: capacity,
		})
	}

	return g, nil
}

// Stations returns the stations in input order.
func (g *NetworkGraph) Stations() []model.Station {
	out := make([]model.Station, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.stations[id])
	}
	return out
}

// Station looks up a station by ID.
func (g *NetworkGraph) Station(id int) (model.Station, bool) {
	st, ok := g.stations[id]
	return st, ok
}

// Track looks up a track by ID.
func (g *NetworkGraph) Track(id int) (model.Track, bool) {
	tr, ok := g.tracks[id]
	return tr, ok
}

// Tracks returns every track, ordered by ID.
func (g *NetworkGraph) Tracks() []model.Track {
	out := make([]model.Track, 0, len(g.tracks))
	for _, tr := range g.tracks {
		out = append(out, tr)
	}
	sortTracks(out)
	return out
}

// Edges returns a copy of the outgoing edges of a station, including the
// current load at the time of the call.
func (g *NetworkGraph) Edges(stationID int) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.adj[stationID]...)
}

// CommitRoute records that a train now occupies every track on route. Both
// directed edges of each track are incremented.
func (g *NetworkGraph) CommitRoute(route Route) {
	g.adjustLoad(route, 1)
}

// ReleaseRoute undoes CommitRoute. Loads never drop below zero.
func (g *NetworkGraph) ReleaseRoute(route Route) {
	g.adjustLoad(route, -1)
}

func (g *NetworkGraph) adjustLoad(route Route, delta int) {
	if len(route.TracksUsed) == 0 {
		return
	}
	used := make(map[int]int, len(route.TracksUsed))
	for _, id := range route.TracksUsed {
		used[id]++
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for station, edges := range g.adj {
		for i := range edges {
			n, ok := used[edges[i].TrackID]
			if !ok {
				continue
			}
			load := edges[i].CurrentLoad + delta*n
			if load < 0 {
				load = 0
			}
			edges[i].CurrentLoad = load
		}
		g.adj[station] = edges
	}
}
