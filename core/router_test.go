package core

import (
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/rail-planner/model"
)

func TestFindRouteDirectTrack(t *testing.T) {
	g := newSampleGraph(t)

	route := g.FindRoute(1, 3, 5)
	if !route.Reachable() {
		t.Fatalf("route 1->3 unreachable")
	}
	assertRouteShape(t, route, 1, 3)
	if len(route.TracksUsed) != 1 || route.TracksUsed[0] != 2 {
		t.Fatalf("tracks = %v, want [2]", route.TracksUsed)
	}
	if want := 12.3 / 100; math.Abs(route.TotalCost-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", route.TotalCost, want)
	}
}

func TestFindRouteMultiHop(t *testing.T) {
	g := newSampleGraph(t)

	route := g.FindRoute(3, 4, 5)
	assertRouteShape(t, route, 3, 4)
	wantPath := []int{3, 1, 4}
	if !equalInts(route.Path, wantPath) {
		t.Fatalf("path = %v, want %v", route.Path, wantPath)
	}
	if !equalInts(route.TracksUsed, []int{2, 3}) {
		t.Fatalf("tracks = %v, want [2 3]", route.TracksUsed)
	}
}

func TestFindRoutePriorityBonus(t *testing.T) {
	g := newSampleGraph(t)

	normal := g.FindRoute(3, 4, 7)
	express := g.FindRoute(3, 4, 8)
	if diff := normal.TotalCost - express.TotalCost; math.Abs(diff-0.2) > 1e-9 {
		t.Fatalf("priority bonus over two edges = %v, want 0.2", diff)
	}
}

func TestFindRouteCapacityPenaltyDiverts(t *testing.T) {
	g := newSampleGraph(t)

	direct := g.FindRoute(2, 4, 5)
	if !equalInts(direct.Path, []int{2, 4}) {
		t.Fatalf("uncongested path = %v, want [2 4]", direct.Path)
	}

	// Single track: capacity 2.
	g.CommitRoute(direct)
	g.CommitRoute(direct)

	diverted := g.FindRoute(2, 4, 5)
	if !equalInts(diverted.Path, []int{2, 1, 4}) {
		t.Fatalf("congested path = %v, want [2 1 4]", diverted.Path)
	}
}

func TestFindRouteUnreachable(t *testing.T) {
	stations := append(sampleStations(), model.Station{ID: 6, Code: "ISL", Name: "Island", PlatformCount: 1})
	g, err := BuildGraph(stations, sampleTracks())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	cases := []struct {
		name     string
		from, to int
	}{
		{"disjoint", 1, 6},
		{"disjoint reverse", 6, 2},
		{"unknown origin", 99, 1},
		{"unknown destination", 1, 99},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			route := g.FindRoute(tc.from, tc.to, 5)
			if route.Reachable() {
				t.Fatalf("expected unreachable, got %+v", route)
			}
			if len(route.Path) != 0 || len(route.TracksUsed) != 0 {
				t.Fatalf("expected empty path, got %+v", route)
			}
			if !math.IsInf(route.TotalCost, 1) {
				t.Fatalf("cost = %v, want +Inf", route.TotalCost)
			}
		})
	}
}

func TestFindRouteSameStation(t *testing.T) {
	g := newSampleGraph(t)
	route := g.FindRoute(2, 2, 5)
	if !equalInts(route.Path, []int{2}) || route.TotalCost != 0 || len(route.TracksUsed) != 0 {
		t.Fatalf("self route = %+v", route)
	}
}

func TestFindRouteAllPairsShape(t *testing.T) {
	g := newSampleGraph(t)
	for _, from := range sampleStations() {
		for _, to := range sampleStations() {
			route := g.FindRoute(from.ID, to.ID, 5)
			assertRouteShape(t, route, from.ID, to.ID)
		}
	}
}

func TestFindRouteDoesNotMutateLoad(t *testing.T) {
	g := newSampleGraph(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.FindRoute(3, 2, p)
			}
		}(i + 1)
	}
	wg.Wait()

	for _, st := range sampleStations() {
		for _, e := range g.Edges(st.ID) {
			if e.CurrentLoad != 0 {
				t.Fatalf("edge %+v load changed by routing", e)
			}
		}
	}
}

func assertRouteShape(t *testing.T, route Route, from, to int) {
	t.Helper()
	if len(route.Path) == 0 {
		t.Fatalf("route %d->%d has empty path", from, to)
	}
	if route.Path[0] != from || route.Path[len(route.Path)-1] != to {
		t.Fatalf("route %d->%d path = %v", from, to, route.Path)
	}
	if len(route.TracksUsed) != len(route.Path)-1 {
		t.Fatalf("route %d->%d tracks = %v for path %v", from, to, route.TracksUsed, route.Path)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
