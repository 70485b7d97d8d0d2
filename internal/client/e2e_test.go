package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dangerroom/backend/internal/httpapi"
	"dangerroom/backend/internal/hub"
	"dangerroom/backend/internal/session"
)

// Full-stack exercise: real hub, real websocket transport, two peers.
func startServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, session.Config{
		GameDuration: time.Minute,
		TickInterval: 50 * time.Millisecond,
	}, nil, zap.NewNop())

	srv := httptest.NewServer(httpapi.SetupRoutes(h, nil, 3*time.Second, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, h
}

func hostSession(t *testing.T, h *hub.Hub) string {
	t.Helper()
	reply := make(chan hub.CreateResult, 1)
	h.Inbox() <- hub.CreateSession{Reply: reply}
	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		return res.Code
	case <-time.After(time.Second):
		t.Fatal("timed out creating session")
		return "" // unreachable
	}
}

func waitSignal[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero // unreachable
	}
}

func TestEndToEnd_TwoPeerSession(t *testing.T) {
	srv, h := startServer(t)
	code := hostSession(t, h)

	runnerStarted := make(chan struct{}, 1)
	runnerCircuit := make(chan [2]int, 8)
	runnerEnded := make(chan string, 1)

	// The host joins with the code as produced; the second peer types it in
	// lowercase, which must work.
	runner, err := Dial(context.Background(), srv.URL, code, Callbacks{
		OnSessionStarted: func() { runnerStarted <- struct{}{} },
		OnCircuitStateChanged: func(c session.CircuitID, hz session.HazardID) {
			runnerCircuit <- [2]int{int(c), int(hz)}
		},
		OnSessionEnded: func(outcome string) { runnerEnded <- outcome },
	}, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer runner.Close()
	assert.Equal(t, session.RoleRunner, runner.Role())
	assert.Equal(t, session.AuthorityPeer, runner.PeerID())

	operatorEnded := make(chan string, 1)
	operator, err := Dial(context.Background(), srv.URL, strings.ToLower(code), Callbacks{
		OnSessionEnded: func(outcome string) { operatorEnded <- outcome },
	}, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer operator.Close()
	assert.Equal(t, session.RoleOperator, operator.Role())
	assert.True(t, runner.IsRunner())
	assert.False(t, operator.IsRunner())

	waitSignal(t, runnerStarted, "session start")

	// Operator plugs a cable; only the runner presentation reacts, which it
	// gates on IsRunner itself.
	require.NoError(t, operator.ConnectCircuit(context.Background(), session.CircuitRed, session.HazardFire))
	pair := waitSignal(t, runnerCircuit, "circuit activation")
	assert.Equal(t, [2]int{int(session.CircuitRed), int(session.HazardFire)}, pair)

	require.NoError(t, operator.DisconnectCircuit(context.Background()))
	pair = waitSignal(t, runnerCircuit, "circuit clear")
	assert.Equal(t, [2]int{int(session.CircuitNone), int(session.HazardNone)}, pair)

	// Runner finishes the level; both peers observe the end exactly once.
	require.NoError(t, runner.CompleteLevel(context.Background()))
	assert.Equal(t, "completed", waitSignal(t, runnerEnded, "runner end event"))
	assert.Equal(t, "completed", waitSignal(t, operatorEnded, "operator end event"))
}

func TestEndToEnd_ThirdPeerRejected(t *testing.T) {
	srv, h := startServer(t)
	code := hostSession(t, h)

	a, err := Dial(context.Background(), srv.URL, code, Callbacks{}, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	b, err := Dial(context.Background(), srv.URL, code, Callbacks{}, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	_, err = Dial(context.Background(), srv.URL, code, Callbacks{}, Options{JoinTimeout: 2 * time.Second}, zap.NewNop())
	assert.Error(t, err, "a 2-peer session admits no third peer")
}

func TestEndToEnd_UnknownCodeNotFound(t *testing.T) {
	srv, _ := startServer(t)

	_, err := Dial(context.Background(), srv.URL, "AAAAAAAAAAAA", Callbacks{}, Options{JoinTimeout: 2 * time.Second}, zap.NewNop())
	assert.Error(t, err)
}

func TestEndToEnd_PeerDisconnectEndsSession(t *testing.T) {
	srv, h := startServer(t)
	code := hostSession(t, h)

	runnerEnded := make(chan string, 1)
	runner, err := Dial(context.Background(), srv.URL, code, Callbacks{
		OnSessionEnded: func(outcome string) { runnerEnded <- outcome },
	}, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer runner.Close()

	operator, err := Dial(context.Background(), srv.URL, code, Callbacks{}, Options{}, zap.NewNop())
	require.NoError(t, err)

	operator.Close()
	assert.Equal(t, "abandoned", waitSignal(t, runnerEnded, "abandoned end event"))
}

func TestEndToEnd_JoinTimeoutCancellable(t *testing.T) {
	srv, h := startServer(t)
	code := hostSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // user aborts before resolution

	_, err := Dial(ctx, srv.URL, code, Callbacks{}, Options{}, zap.NewNop())
	assert.Error(t, err)
}
