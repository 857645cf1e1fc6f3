package attendsync

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/gateway"
	"github.com/fivesaside/touchline/querycache"
)

// fakeGateway is an in-memory remote. onWrite and onRead run before the call touches the
// remote state and may block or fail it; afterRead runs once the list has been read.
type fakeGateway struct {
	mu        sync.Mutex
	lists     map[string]attendance.List
	teams     map[string]string // user -> team
	onWrite   func(matchID, userID string, st attendance.Status) error
	onRead    func(matchID string) error
	afterRead func(matchID string)
	reads     int
}

func newFakeGateway(lists map[string]attendance.List) *fakeGateway {
	return &fakeGateway{lists: lists, teams: map[string]string{"u1": "teamA", "u2": "", "u3": "teamB"}}
}

func (g *fakeGateway) ReadAttendanceStatus(ctx context.Context, matchID, userID string) (attendance.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists[matchID].StatusOf(userID), nil
}

func (g *fakeGateway) ReadAttendanceList(ctx context.Context, matchID string) (attendance.List, error) {
	if g.onRead != nil {
		if err := g.onRead(matchID); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	g.reads++
	list := g.lists[matchID].Clone()
	after := g.afterRead
	g.mu.Unlock()
	if after != nil {
		after(matchID)
	}
	return list, nil
}

func (g *fakeGateway) readCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads
}

func (g *fakeGateway) WriteAttendanceStatus(ctx context.Context, matchID, userID string, st attendance.Status) error {
	if g.onWrite != nil {
		if err := g.onWrite(matchID, userID, st); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists[matchID] = g.lists[matchID].WithStatus(matchID, userID, g.teams[userID], st)
	return nil
}

func (g *fakeGateway) remote(matchID string) attendance.List {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists[matchID].Clone()
}

var errNetwork = &gateway.TransportError{Op: "write attendance status", Err: errors.New("connection refused")}

func setup(t *testing.T, lists map[string]attendance.List) (*Synchronizer, *fakeGateway, *querycache.Store) {
	gw := newFakeGateway(lists)
	store := querycache.New(querycache.Options{})
	return New(store, gw, nil), gw, store
}

func cachedList(t *testing.T, store *querycache.Store, matchID string) attendance.List {
	e, ok := store.Get(ListKey(matchID))
	require.True(t, ok, "list must be cached")
	return asList(e.Data)
}

func TestSetAttendance_Succeeds(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)

	require.NoError(t, s.SetAttendance(ctx, "m", "u1", attendance.Attending))

	e, _ := store.Get(ListKey("m"))
	assert.False(t, e.Stale, "list is reconciled")
	assert.True(t, gw.remote("m").Equal(asList(e.Data)))
	assert.Equal(t, attendance.Attending, asList(e.Data).StatusOf("u1"))
	rec, _ := asList(e.Data).Find("u1")
	assert.Equal(t, "teamA", rec.TeamID)

	st, err := s.Status(ctx, "m", "u1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Attending, st)
	assert.Empty(t, s.tracks)
}

func TestSetAttendance_TransportFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)
	before, _ := store.Get(ListKey("m"))

	gw.onWrite = func(_, _ string, _ attendance.Status) error { return errNetwork }
	err = s.SetAttendance(ctx, "m", "u1", attendance.Attending)
	assert.Equal(t, errNetwork, err, "error returned unchanged")
	assert.True(t, gateway.IsTransport(err))

	after, _ := store.Get(ListKey("m"))
	assert.Equal(t, before.Data, after.Data)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, before.Stale, after.Stale)
	assert.Equal(t, attendance.List{{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}}, asList(after.Data))
	assert.Empty(t, s.tracks)
}

func TestSetAttendance_RejectionIsVerbatim(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{"m": nil})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)

	rejection := &gateway.RejectionError{Op: "write", StatusCode: 403, Message: "matches in the past are locked"}
	gw.onWrite = func(_, _ string, _ attendance.Status) error { return rejection }

	err = s.SetAttendance(ctx, "m", "u1", attendance.Absent)
	assert.True(t, gateway.IsRejection(err))
	assert.Equal(t, "matches in the past are locked", err.Error())
	assert.Empty(t, cachedList(t, store, "m"))
}

func TestSetAttendance_Validation(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{"m": nil})
	gw.onWrite = func(_, _ string, _ attendance.Status) error {
		t.Fatal("gateway must not be called")
		return nil
	}

	tests := []struct {
		name    string
		matchID string
		userID  string
		status  attendance.Status
		field   string
	}{
		{name: "no match", userID: "u1", status: attendance.Maybe, field: "match_id"},
		{name: "no user", matchID: "m", status: attendance.Maybe, field: "user_id"},
		{name: "bad status", matchID: "m", userID: "u1", status: "late", field: "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetAttendance(ctx, tt.matchID, tt.userID, tt.status)
			require.True(t, core.IsValidationError(err))
			vErr := errors.Cause(err).(*core.ValidationError)
			assert.Equal(t, tt.field, vErr.Fields[0].Field)
		})
	}
	_, ok := store.Get(ListKey("m"))
	assert.False(t, ok)
	assert.Zero(t, store.Generation(ListKey("m")))
}

func TestSetAttendance_UncachedListIsNotInvented(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u3", MatchID: "m", TeamID: "teamB", Status: attendance.Absent}},
	})

	gw.onWrite = func(_, _ string, _ attendance.Status) error { return errNetwork }
	require.Error(t, s.SetAttendance(ctx, "m", "u1", attendance.Attending))
	_, ok := store.Get(ListKey("m"))
	assert.False(t, ok)

	gw.onWrite = nil
	require.NoError(t, s.SetAttendance(ctx, "m", "u1", attendance.Attending))
	list := cachedList(t, store, "m")
	assert.Len(t, list, 2, "reconciled from the remote")
}

// blockingWrites makes every write wait for its own release channel, in call order.
type blockingWrites struct {
	mu       sync.Mutex
	entered  chan int
	releases []chan error
}

func newBlockingWrites(n int) *blockingWrites {
	bw := &blockingWrites{entered: make(chan int, n)}
	for i := 0; i < n; i++ {
		bw.releases = append(bw.releases, make(chan error, 1))
	}
	return bw
}

func (bw *blockingWrites) hook(calls *int) func(_, _ string, _ attendance.Status) error {
	return func(_, _ string, _ attendance.Status) error {
		bw.mu.Lock()
		n := *calls
		*calls++
		bw.mu.Unlock()
		bw.entered <- n
		return <-bw.releases[n]
	}
}

func TestSetAttendance_LastCallWins(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)

	var calls int
	bw := newBlockingWrites(2)
	gw.onWrite = bw.hook(&calls)

	errs := make(chan error, 2)
	go func() { errs <- s.SetAttendance(ctx, "m", "u1", attendance.Absent) }()
	<-bw.entered
	assert.Equal(t, attendance.Absent, cachedList(t, store, "m").StatusOf("u1"))

	go func() { errs <- s.SetAttendance(ctx, "m", "u1", attendance.Attending) }()
	<-bw.entered
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))

	bw.releases[0] <- nil
	require.NoError(t, <-errs)
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"), "newer mutation still owns the list")

	bw.releases[1] <- nil
	require.NoError(t, <-errs)

	e, _ := store.Get(ListKey("m"))
	assert.False(t, e.Stale)
	assert.Equal(t, attendance.Attending, asList(e.Data).StatusOf("u1"))
	assert.Equal(t, attendance.Attending, gw.remote("m").StatusOf("u1"))
}

func TestSetAttendance_OverlappingFailures(t *testing.T) {
	orig := attendance.List{
		{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe},
		{UserID: "u2", MatchID: "m", Status: attendance.Attending},
	}

	tests := []struct {
		name       string
		order      []int   // release order of the two writes
		results    []error // by call index
		wantBefore attendance.Status
		wantFinal  attendance.Status
	}{
		{
			name:       "newer fails first then older fails",
			order:      []int{1, 0},
			results:    []error{errNetwork, errNetwork},
			wantBefore: attendance.Absent, // older still pending
			wantFinal:  attendance.Maybe,
		},
		{
			name:       "older fails then newer fails",
			order:      []int{0, 1},
			results:    []error{errNetwork, errNetwork},
			wantBefore: attendance.Attending,
			wantFinal:  attendance.Maybe,
		},
		{
			name:       "older succeeds then newer fails",
			order:      []int{0, 1},
			results:    []error{nil, errNetwork},
			wantBefore: attendance.Attending,
			wantFinal:  attendance.Absent,
		},
		{
			name:       "newer fails then older succeeds",
			order:      []int{1, 0},
			results:    []error{nil, errNetwork},
			wantBefore: attendance.Absent,
			wantFinal:  attendance.Absent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, gw, store := setup(t, map[string]attendance.List{"m": orig.Clone()})
			_, err := s.List(ctx, "m")
			require.NoError(t, err)
			before, _ := store.Get(ListKey("m"))

			var calls int
			bw := newBlockingWrites(2)
			gw.onWrite = bw.hook(&calls)

			errs := []chan error{make(chan error, 1), make(chan error, 1)}
			go func() { errs[0] <- s.SetAttendance(ctx, "m", "u1", attendance.Absent) }()
			<-bw.entered
			go func() { errs[1] <- s.SetAttendance(ctx, "m", "u1", attendance.Attending) }()
			<-bw.entered

			first, second := tt.order[0], tt.order[1]
			bw.releases[first] <- tt.results[first]
			assert.Equal(t, tt.results[first], <-errs[first])
			assert.Equal(t, tt.wantBefore, cachedList(t, store, "m").StatusOf("u1"))

			bw.releases[second] <- tt.results[second]
			assert.Equal(t, tt.results[second], <-errs[second])

			gw.onWrite = nil
			list, err := s.List(ctx, "m")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinal, list.StatusOf("u1"))
			assert.Equal(t, attendance.Attending, list.StatusOf("u2"), "other records untouched")

			if tt.results[0] != nil && tt.results[1] != nil {
				after, _ := store.Get(ListKey("m"))
				assert.Equal(t, before.Data, after.Data)
				assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
			}
			assert.Empty(t, s.tracks)
		})
	}
}

func TestSetAttendance_NoPartialApplication(t *testing.T) {
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(7))
	teams := []string{"", "teamA", "teamB"}

	for i := 0; i < 50; i++ {
		var orig attendance.List
		n := 1 + rnd.Intn(8)
		for j := 0; j < n; j++ {
			orig = append(orig, attendance.Record{
				UserID:  "u" + strconv.Itoa(j),
				MatchID: "m",
				TeamID:  teams[rnd.Intn(len(teams))],
				Status:  attendance.Statuses[rnd.Intn(len(attendance.Statuses))],
			})
		}
		s, gw, store := setup(t, map[string]attendance.List{"m": orig.Clone()})
		_, err := s.List(ctx, "m")
		require.NoError(t, err)

		gw.onWrite = func(_, _ string, _ attendance.Status) error { return errNetwork }
		userID := "u" + strconv.Itoa(rnd.Intn(len(orig)+2)) // sometimes a newcomer
		status := attendance.Statuses[rnd.Intn(len(attendance.Statuses))]
		require.Error(t, s.SetAttendance(ctx, "m", userID, status))

		assert.True(t, orig.Equal(cachedList(t, store, "m")), "iteration %d", i)
	}
}

func TestSetAttendance_MatchesDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"a": {{UserID: "u1", MatchID: "a", TeamID: "teamA", Status: attendance.Maybe}},
		"b": {{UserID: "u1", MatchID: "b", TeamID: "teamA", Status: attendance.Maybe}},
	})
	for _, id := range []string{"a", "b"} {
		_, err := s.List(ctx, id)
		require.NoError(t, err)
	}

	release := make(chan error, 1)
	entered := make(chan struct{})
	gw.onWrite = func(matchID, _ string, _ attendance.Status) error {
		if matchID == "a" {
			close(entered)
			return <-release
		}
		return errNetwork
	}

	done := make(chan error, 1)
	go func() { done <- s.SetAttendance(ctx, "a", "u1", attendance.Attending) }()
	<-entered

	require.Error(t, s.SetAttendance(ctx, "b", "u1", attendance.Absent))
	assert.Equal(t, attendance.Maybe, cachedList(t, store, "b").StatusOf("u1"))
	assert.Equal(t, attendance.Attending, cachedList(t, store, "a").StatusOf("u1"))

	release <- nil
	require.NoError(t, <-done)
	assert.Equal(t, attendance.Attending, cachedList(t, store, "a").StatusOf("u1"))
	assert.Equal(t, attendance.Maybe, cachedList(t, store, "b").StatusOf("u1"))
}

func TestSetAttendance_DiscardsStaleRead(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)
	store.Invalidate(ListKey("m"))

	readEntered, readRelease := make(chan struct{}), make(chan struct{})
	gw.onRead = func(string) error {
		close(readEntered)
		<-readRelease
		return nil
	}
	readDone := make(chan attendance.List, 1)
	go func() {
		list, _ := s.List(ctx, "m")
		readDone <- list
	}()
	<-readEntered

	writeEntered, writeRelease := make(chan struct{}), make(chan error, 1)
	gw.onWrite = func(_, _ string, _ attendance.Status) error {
		close(writeEntered)
		return <-writeRelease
	}
	done := make(chan error, 1)
	go func() { done <- s.SetAttendance(ctx, "m", "u1", attendance.Attending) }()
	<-writeEntered

	close(readRelease) // the read began before the mutation and returns "maybe"
	assert.Equal(t, attendance.Attending, (<-readDone).StatusOf("u1"))
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))

	gw.onRead = nil
	writeRelease <- nil
	require.NoError(t, <-done)
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))
}

func TestSetAttendance_PendingReadKeepsOptimisticValue(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(map[string]attendance.List{
		"m": {
			{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe},
			{UserID: "u2", MatchID: "m", Status: attendance.Absent},
		},
	})
	store := querycache.New(querycache.Options{StaleTime: 5 * time.Millisecond})
	s := New(store, gw, nil)
	_, err := s.List(ctx, "m")
	require.NoError(t, err)

	writeEntered, writeRelease := make(chan struct{}), make(chan error, 1)
	gw.onWrite = func(_, _ string, _ attendance.Status) error {
		close(writeEntered)
		return <-writeRelease
	}
	done := make(chan error, 1)
	go func() { done <- s.SetAttendance(ctx, "m", "u1", attendance.Attending) }()
	<-writeEntered
	time.Sleep(20 * time.Millisecond) // the optimistic entry is past its stale time

	reads := gw.readCount()
	list, err := s.List(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, attendance.Attending, list.StatusOf("u1"))

	st, err := s.Status(ctx, "m", "u1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Attending, st)

	st, err = s.Status(ctx, "m", "u2")
	require.NoError(t, err)
	assert.Equal(t, attendance.Absent, st, "users without a pending mutation read the remote")

	counts, err := s.Counts(ctx, "m", "teamA", "teamB")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Home.Attending)
	assert.Equal(t, reads, gw.readCount(), "no list read while the write is pending")
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))

	writeRelease <- nil
	require.NoError(t, <-done)
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))
	assert.Equal(t, reads+1, gw.readCount(), "reconciled once")
}

func TestSetAttendance_ReconcileDoesNotJoinOlderRead(t *testing.T) {
	ctx := context.Background()
	s, gw, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})

	// the first list read is held back after reading the state from before the write
	var mu sync.Mutex
	first := true
	readHeld, readRelease := make(chan struct{}), make(chan struct{})
	gw.afterRead = func(string) {
		mu.Lock()
		hold := first
		first = false
		mu.Unlock()
		if hold {
			close(readHeld)
			<-readRelease
		}
	}

	writeEntered, writeRelease := make(chan struct{}), make(chan error, 1)
	gw.onWrite = func(_, _ string, _ attendance.Status) error {
		close(writeEntered)
		return <-writeRelease
	}
	done := make(chan error, 1)
	go func() { done <- s.SetAttendance(ctx, "m", "u1", attendance.Attending) }()
	<-writeEntered

	// the list was never cached, so this read goes out while the write is pending
	readDone := make(chan attendance.List, 1)
	go func() {
		list, _ := s.List(ctx, "m")
		readDone <- list
	}()
	<-readHeld

	writeRelease <- nil
	require.NoError(t, <-done)
	assert.Equal(t, attendance.Attending, cachedList(t, store, "m").StatusOf("u1"))

	close(readRelease)
	assert.Equal(t, attendance.Attending, (<-readDone).StatusOf("u1"), "older read is discarded")
	e, _ := store.Get(ListKey("m"))
	assert.False(t, e.Stale)
	assert.Equal(t, attendance.Attending, asList(e.Data).StatusOf("u1"))
}

func TestMutation_StateMachine(t *testing.T) {
	ctx := context.Background()
	s, _, store := setup(t, map[string]attendance.List{
		"m": {{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Maybe}},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)
	snapshot := cachedList(t, store, "m").Clone()

	var m Mutation
	assert.Equal(t, Idle, m.State())

	m1, err := s.begin("m", "u1", attendance.Absent)
	require.NoError(t, err)
	assert.Equal(t, Pending, m1.State())
	assert.Equal(t, "pending", m1.State().String())

	s.rollback(m1, errNetwork)
	assert.Equal(t, RolledBack, m1.State())
	assert.Equal(t, errNetwork, m1.Err())
	assert.True(t, snapshot.Equal(cachedList(t, store, "m")))

	m2, err := s.begin("m", "u1", attendance.Attending)
	require.NoError(t, err)
	s.commit(ctx, m2)
	assert.Equal(t, Committed, m2.State())
	assert.Equal(t, "committed", m2.State().String())
	assert.Equal(t, "rolled_back", RolledBack.String())
}

func TestWatch_SeesOnlyCommittedStates(t *testing.T) {
	ctx := context.Background()
	s, gw, _ := setup(t, map[string]attendance.List{
		"m": {
			{UserID: "u1", MatchID: "m", TeamID: "teamA", Status: attendance.Attending},
			{UserID: "u2", MatchID: "m", Status: attendance.Attending},
		},
	})
	_, err := s.List(ctx, "m")
	require.NoError(t, err)

	var seen []attendance.Counts
	unsubscribe := s.Watch("m", "teamA", "teamB", func(c attendance.Counts) { seen = append(seen, c) })
	defer unsubscribe()

	gw.onWrite = func(_, _ string, _ attendance.Status) error { return errNetwork }
	require.Error(t, s.SetAttendance(ctx, "m", "u2", attendance.Absent))

	initial := attendance.Counts{
		Total: attendance.Tally{Attending: 2},
		Home:  attendance.Tally{Attending: 1},
		Away:  attendance.Tally{Attending: 1},
	}
	optimistic := attendance.Counts{
		Total: attendance.Tally{Attending: 1, Absent: 1},
		Home:  attendance.Tally{Attending: 1},
		Away:  attendance.Tally{Absent: 1},
	}
	assert.Equal(t, []attendance.Counts{optimistic, initial}, seen)

	counts, err := s.Counts(ctx, "m", "teamA", "teamB")
	require.NoError(t, err)
	assert.Equal(t, initial, counts)
}
