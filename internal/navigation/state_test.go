package navigation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/geocode"
	"github.com/relabs-tech/blockpath/internal/heading"
)

type resolverFunc func(ctx context.Context, text string) (*geo.Point, error)

func (f resolverFunc) Resolve(ctx context.Context, text string) (*geo.Point, error) {
	return f(ctx, text)
}

func fixedResolver(p *geo.Point, err error) resolverFunc {
	return func(context.Context, string) (*geo.Point, error) { return p, err }
}

func ptr(p geo.Point) *geo.Point { return &p }

// assertDerived checks that a snapshot's derived fields match its inputs.
func assertDerived(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.Current == nil || snap.Target == nil {
		assert.Nil(t, snap.Bearing)
		assert.Nil(t, snap.DistanceKm)
		assert.Equal(t, 0.0, snap.Rotation)
		assert.Empty(t, snap.Compass)
		return
	}
	require.NotNil(t, snap.Bearing)
	require.NotNil(t, snap.DistanceKm)
	assert.InDelta(t, geo.Bearing(*snap.Current, *snap.Target), *snap.Bearing, 1e-9)
	assert.InDelta(t, geo.Distance(*snap.Current, *snap.Target), *snap.DistanceKm, 1e-9)
	assert.InDelta(t, geo.RelativeAngle(*snap.Bearing, snap.Heading), snap.Rotation, 1e-9)
	assert.Equal(t, geo.BearingToCompass(*snap.Bearing), snap.Compass)
}

func TestEmptyState(t *testing.T) {
	s := New(fixedResolver(nil, nil))
	snap := s.Snapshot()

	assert.Nil(t, snap.Current)
	assert.Nil(t, snap.Target)
	assert.Equal(t, 0.0, snap.Heading)
	assert.Equal(t, uint64(0), snap.Seq)
	assertDerived(t, snap)
}

func TestEquatorScenario(t *testing.T) {
	s := New(fixedResolver(nil, nil))

	s.SetCurrentLocation(geo.Point{Latitude: 0, Longitude: 0})
	snap := s.SetTargetLocation(ptr(geo.Point{Latitude: 0, Longitude: 1}))

	require.NotNil(t, snap.Bearing)
	require.NotNil(t, snap.DistanceKm)
	assert.InDelta(t, 90.0, *snap.Bearing, 1e-9)
	assert.InDelta(t, 111.19, *snap.DistanceKm, 0.5)
	assert.InDelta(t, 90.0, snap.Rotation, 1e-9)
	assert.Equal(t, "E", snap.Compass)

	snap = s.SetHeading(heading.FromSample(heading.Sample{X: 0, Y: 1}))
	assert.InDelta(t, 90.0, snap.Heading, 1e-9)
	assert.InDelta(t, 0.0, snap.Rotation, 1e-9)
	assertDerived(t, snap)
}

func TestRecomputeAfterEveryMutation(t *testing.T) {
	s := New(fixedResolver(nil, nil))

	steps := []func() Snapshot{
		func() Snapshot { return s.SetHeading(45) },
		func() Snapshot { return s.SetCurrentLocation(geo.Point{Latitude: 47.6062, Longitude: -122.3321}) },
		func() Snapshot { return s.SetTargetLocation(ptr(geo.Point{Latitude: 47.6205, Longitude: -122.3493})) },
		func() Snapshot { return s.SetHeading(300) },
		func() Snapshot { return s.SetCurrentLocation(geo.Point{Latitude: 47.61, Longitude: -122.34}) },
		func() Snapshot { return s.SetTargetLocation(nil) },
		func() Snapshot { return s.SetTargetLocation(ptr(geo.Point{Latitude: 0, Longitude: 0})) },
	}

	var lastSeq uint64
	for i, step := range steps {
		snap := step()
		assertDerived(t, snap)
		assert.Greater(t, snap.Seq, lastSeq, "step %d", i)
		lastSeq = snap.Seq
		assert.Equal(t, snap, s.Snapshot(), "step %d", i)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(fixedResolver(nil, nil))
	target := geo.Point{Latitude: 10, Longitude: 10}
	s.SetCurrentLocation(geo.Point{Latitude: 0, Longitude: 0})
	s.SetTargetLocation(&target)

	target.Latitude = 50
	snap := s.Snapshot()
	snap.Current.Latitude = 80
	*snap.Bearing = 1

	again := s.Snapshot()
	assert.Equal(t, 10.0, again.Target.Latitude)
	assert.Equal(t, 0.0, again.Current.Latitude)
	assert.NotEqual(t, 1.0, *again.Bearing)
}

func TestListenerSeesEveryMutation(t *testing.T) {
	var mu sync.Mutex
	var seen []Snapshot

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(fixedResolver(ptr(geo.Point{Latitude: 1, Longitude: 1}), nil),
		WithClock(func() time.Time { return clock }),
		WithListener(func(snap Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, snap)
		}))

	s.SetCurrentLocation(geo.Point{Latitude: 0, Longitude: 0})
	s.SetHeading(10)
	_, err := s.SubmitAddress(context.Background(), "somewhere")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	for i, snap := range seen {
		assert.Equal(t, uint64(i+1), snap.Seq)
		assert.Equal(t, clock, snap.UpdatedAt)
	}
	assert.NotNil(t, seen[2].Bearing)
}

func TestListenerMayReadState(t *testing.T) {
	var s *State
	var inner Snapshot
	s = New(fixedResolver(nil, nil), WithListener(func(Snapshot) {
		inner = s.Snapshot()
	}))

	done := make(chan struct{})
	go func() {
		s.SetHeading(12)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener deadlocked against the state lock")
	}
	assert.Equal(t, 12.0, inner.Heading)
}

func TestSubmitAddress(t *testing.T) {
	home := geo.Point{Latitude: 0, Longitude: 0}
	found := geo.Point{Latitude: 0, Longitude: 1}
	prior := geo.Point{Latitude: 1, Longitude: 0}

	t.Run("match sets target", func(t *testing.T) {
		s := New(fixedResolver(&found, nil))
		s.SetCurrentLocation(home)

		snap, err := s.SubmitAddress(context.Background(), "east")
		require.NoError(t, err)
		require.NotNil(t, snap.Target)
		assert.Equal(t, found, *snap.Target)
		assertDerived(t, snap)
	})

	t.Run("no match clears target", func(t *testing.T) {
		s := New(fixedResolver(nil, nil))
		s.SetCurrentLocation(home)
		s.SetTargetLocation(&prior)

		snap, err := s.SubmitAddress(context.Background(), "asdkfj")
		require.NoError(t, err)
		assert.Nil(t, snap.Target)
		assertDerived(t, snap)
	})

	t.Run("failure keeps previous target and derived values", func(t *testing.T) {
		failure := &geocode.Error{Address: "east", Err: errors.New("network down")}
		s := New(fixedResolver(nil, failure))
		s.SetCurrentLocation(home)
		s.SetHeading(30)
		before := s.SetTargetLocation(&prior)

		snap, err := s.SubmitAddress(context.Background(), "east")
		require.Error(t, err)
		assert.ErrorIs(t, err, geocode.ErrLookupFailed)
		assert.Equal(t, before, snap)
		assert.Equal(t, before, s.Snapshot())
	})
}

func TestSubmitBlankDoesNotCallGeocoder(t *testing.T) {
	var calls atomic.Int32
	g := geocode.GeocoderFunc(func(context.Context, string) ([]geo.Point, error) {
		calls.Add(1)
		return []geo.Point{{Latitude: 5, Longitude: 5}}, nil
	})
	s := New(geocode.NewResolver(g, nil))
	s.SetTargetLocation(ptr(geo.Point{Latitude: 3, Longitude: 3}))

	snap, err := s.SubmitAddress(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, snap.Target)
	assert.Equal(t, int32(0), calls.Load())
}

// gatedResolver blocks each lookup until its address is released.
type gatedResolver struct {
	entered chan string
	mu      sync.Mutex
	gates   map[string]chan *geo.Point
	ctxErrs map[string]error
}

func newGatedResolver(addresses ...string) *gatedResolver {
	g := &gatedResolver{
		entered: make(chan string, len(addresses)),
		gates:   make(map[string]chan *geo.Point),
		ctxErrs: make(map[string]error),
	}
	for _, a := range addresses {
		g.gates[a] = make(chan *geo.Point, 1)
	}
	return g
}

func (g *gatedResolver) Resolve(ctx context.Context, text string) (*geo.Point, error) {
	g.entered <- text
	select {
	case p := <-g.gates[text]:
		return p, nil
	case <-ctx.Done():
		g.mu.Lock()
		g.ctxErrs[text] = ctx.Err()
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

func TestOverlappingSubmitsKeepLatest(t *testing.T) {
	first := geo.Point{Latitude: 10, Longitude: 10}
	second := geo.Point{Latitude: 20, Longitude: 20}

	r := newGatedResolver("first", "second")
	s := New(r)
	s.SetCurrentLocation(geo.Point{Latitude: 0, Longitude: 0})

	type result struct {
		snap Snapshot
		err  error
	}
	firstDone := make(chan result, 1)
	go func() {
		snap, err := s.SubmitAddress(context.Background(), "first")
		firstDone <- result{snap, err}
	}()
	require.Equal(t, "first", <-r.entered)

	secondDone := make(chan result, 1)
	go func() {
		snap, err := s.SubmitAddress(context.Background(), "second")
		secondDone <- result{snap, err}
	}()
	require.Equal(t, "second", <-r.entered)

	// the first lookup was cancelled when the second started
	res := <-firstDone
	assert.ErrorIs(t, res.err, ErrSuperseded)
	r.mu.Lock()
	assert.ErrorIs(t, r.ctxErrs["first"], context.Canceled)
	r.mu.Unlock()
	assert.Nil(t, s.Snapshot().Target)

	r.gates["first"] <- &first
	r.gates["second"] <- &second
	res = <-secondDone
	require.NoError(t, res.err)
	require.NotNil(t, res.snap.Target)
	assert.Equal(t, second, *res.snap.Target)
	assert.Equal(t, second, *s.Snapshot().Target)
}

func TestLateResultFromSupersededLookupIsDiscarded(t *testing.T) {
	stale := geo.Point{Latitude: 10, Longitude: 10}
	fresh := geo.Point{Latitude: 20, Longitude: 20}

	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(resolverFunc(func(ctx context.Context, text string) (*geo.Point, error) {
		if text == "fresh" {
			return &fresh, nil
		}
		close(entered)
		// ignores cancellation, like a geocoder that already has its answer
		<-release
		return &stale, nil
	}))

	staleDone := make(chan error, 1)
	go func() {
		_, err := s.SubmitAddress(context.Background(), "stale")
		staleDone <- err
	}()
	<-entered

	snap, err := s.SubmitAddress(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, fresh, *snap.Target)

	close(release)
	assert.ErrorIs(t, <-staleDone, ErrSuperseded)
	assert.Equal(t, fresh, *s.Snapshot().Target)
}

func TestBlankSubmitSupersedesInFlightLookup(t *testing.T) {
	r := newGatedResolver("far away")
	s := New(geocodeBlankAware{r})

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitAddress(context.Background(), "far away")
		done <- err
	}()
	require.Equal(t, "far away", <-r.entered)

	snap, err := s.SubmitAddress(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, snap.Target)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Nil(t, s.Snapshot().Target)
}

// geocodeBlankAware answers blank text itself, as geocode.Resolver does.
type geocodeBlankAware struct{ next AddressResolver }

func (g geocodeBlankAware) Resolve(ctx context.Context, text string) (*geo.Point, error) {
	if text == "" {
		return nil, nil
	}
	return g.next.Resolve(ctx, text)
}

func TestConcurrentMutations(t *testing.T) {
	var maxSeq atomic.Uint64
	s := New(fixedResolver(ptr(geo.Point{Latitude: 5, Longitude: 5}), nil),
		WithListener(func(snap Snapshot) {
			for {
				cur := maxSeq.Load()
				if snap.Seq <= cur || maxSeq.CompareAndSwap(cur, snap.Seq) {
					return
				}
			}
		}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			s.SetCurrentLocation(geo.Point{Latitude: float64(i) / 10, Longitude: 0})
		}(i)
		go func(i int) {
			defer wg.Done()
			s.SetHeading(heading.Heading(i * 7 % 360))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.SubmitAddress(context.Background(), "five five")
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assertDerived(t, snap)
	assert.Equal(t, snap.Seq, maxSeq.Load())
}
