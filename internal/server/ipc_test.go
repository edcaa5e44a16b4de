package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gridwalk/internal/clientio"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/notify"
	"github.com/ocx/gridwalk/internal/persistence"
	"github.com/ocx/gridwalk/internal/protocol"
	"github.com/ocx/gridwalk/internal/trajectory"
)

// testServer spins up a Server bound to a unique unix socket under t.TempDir()
// and returns it along with the socket path. A t.Cleanup hook shuts the
// server down and joins the accept loop.
func testServer(t *testing.T, cfg SimConfig) (*Server, string) {
	t.Helper()

	store, err := persistence.NewFileStore(t.TempDir())
	require.NoError(t, err)

	srv, err := New(cfg, 30, 1, 16, 4, 32, store, notify.NewLocalBus(), nil, nil)
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "gridwalk.sock")
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.ListenAndServe(sockPath) }()

	// wait for the socket to exist before any client dials it.
	require.Eventually(t, func() bool {
		probe, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		probe.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-serveErrCh
	})

	return srv, sockPath
}

// testClient dials sockPath, completes the JOIN/WELCOME handshake, and
// returns a dispatcher plus the WELCOME payload.
func testClient(t *testing.T, sockPath string, pid uint32) (*clientio.Dispatcher, protocol.WelcomePayload) {
	t.Helper()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, protocol.Send(conn, protocol.MsgJoin, protocol.JoinPayload{PID: pid}.Marshal()))
	msg, err := protocol.RecvMessage(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgWelcome, msg.Type)
	welcome, err := protocol.UnmarshalWelcome(msg.Payload)
	require.NoError(t, err)

	disp := clientio.New(conn, nil)
	return disp, welcome
}

func wrapConfig() SimConfig {
	return SimConfig{
		Kind:      grid.Wrap,
		Width:     4,
		Height:    4,
		Probs:     trajectory.MoveProbs{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25},
		K:         200,
		TotalReps: 3,
	}
}

func TestIPC_JoinWelcomeHandshake(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	_, welcome := testClient(t, sockPath, 111)

	assert.Equal(t, protocol.WireWrap, welcome.WorldKind)
	assert.Equal(t, uint32(4), welcome.Width)
	assert.Equal(t, uint32(4), welcome.Height)
	assert.Equal(t, uint32(3), welcome.TotalReps)
}

func TestIPC_FirstClientBecomesOwnerSecondCannotControl(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	owner, _ := testClient(t, sockPath, 1)
	nonOwner, _ := testClient(t, sockPath, 2)

	respType, _, err := nonOwner.SendAndWait(protocol.MsgStartSim, nil,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgError, respType)

	respType, _, err = owner.SendAndWait(protocol.MsgStartSim, nil,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, respType)
}

func TestIPC_QueryStatusReflectsLifecycle(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	disp, _ := testClient(t, sockPath, 1)

	respType, payload, err := disp.SendAndWait(protocol.MsgQueryStatus, protocol.QueryStatusPayload{PID: 1}.Marshal(),
		[]protocol.MessageType{protocol.MsgStatus}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgStatus, respType)
	status, err := protocol.UnmarshalStatus(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.WireLobby, status.State)
	assert.True(t, status.HasOwner)

	respType, _, err = disp.SendAndWait(protocol.MsgStartSim, nil,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgAck, respType)

	require.Eventually(t, func() bool {
		_, payload, err := disp.SendAndWait(protocol.MsgQueryStatus, protocol.QueryStatusPayload{PID: 1}.Marshal(),
			[]protocol.MessageType{protocol.MsgStatus}, 2*time.Second)
		if err != nil {
			return false
		}
		status, err := protocol.UnmarshalStatus(payload)
		return err == nil && status.State == protocol.WireFinished
	}, 5*time.Second, 50*time.Millisecond)
}

func TestIPC_CreateSimRejectsInvalidProbabilitySum(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	disp, _ := testClient(t, sockPath, 1)

	payload := protocol.CreateSimPayload{
		Kind: protocol.WireWrap, Width: 4, Height: 4,
		Probs:     protocol.MoveProbsWire{Up: 0.9, Down: 0.9, Left: 0.9, Right: 0.9},
		K:         100, TotalReps: 5,
	}.Marshal()

	respType, payload2, err := disp.SendAndWait(protocol.MsgCreateSim, payload,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgError, respType)
	errPayload, err := protocol.UnmarshalError(payload2)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrProbabilitySum, errPayload.Code)
}

func TestIPC_StopSimHaltsRunningBatch(t *testing.T) {
	cfg := wrapConfig()
	cfg.TotalReps = 1000000
	_, sockPath := testServer(t, cfg)
	disp, _ := testClient(t, sockPath, 1)

	respType, _, err := disp.SendAndWait(protocol.MsgStartSim, nil,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgAck, respType)

	respType, _, err = disp.SendAndWait(protocol.MsgStopSim, protocol.StopSimPayload{PID: 1}.Marshal(),
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, respType)

	require.Eventually(t, func() bool {
		_, payload, err := disp.SendAndWait(protocol.MsgQueryStatus, protocol.QueryStatusPayload{PID: 1}.Marshal(),
			[]protocol.MessageType{protocol.MsgStatus}, 2*time.Second)
		if err != nil {
			return false
		}
		status, err := protocol.UnmarshalStatus(payload)
		return err == nil && status.State == protocol.WireFinished
	}, 5*time.Second, 50*time.Millisecond)
}

func TestIPC_RequestSnapshotStreamsCompleteAssembly(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	disp, _ := testClient(t, sockPath, 1)

	respType, _, err := disp.SendAndWait(protocol.MsgRequestSnapshot, protocol.RequestSnapshotPayload{PID: 1}.Marshal(),
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgAck, respType)

	require.Eventually(t, func() bool {
		_, ok := disp.Assembler().Completed()
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	assembly, _ := disp.Assembler().Completed()
	assert.Equal(t, uint32(16), assembly.CellCount)
	assert.Len(t, assembly.Fields, 4)
}

func TestIPC_QuitClosesConnectionAndReleasesOwnership(t *testing.T) {
	_, sockPath := testServer(t, wrapConfig())
	disp, _ := testClient(t, sockPath, 1)

	respType, _, err := disp.SendAndWait(protocol.MsgQuit, protocol.QuitPayload{PID: 1, StopIfOwner: false}.Marshal(),
		[]protocol.MessageType{protocol.MsgAck}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, respType)

	require.Eventually(t, func() bool {
		return disp.Stopped()
	}, 2*time.Second, 20*time.Millisecond)

	// a fresh connection should now become owner.
	disp2, _ := testClient(t, sockPath, 2)
	respType, _, err = disp2.SendAndWait(protocol.MsgStartSim, nil,
		[]protocol.MessageType{protocol.MsgAck, protocol.MsgError}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, respType)
}
