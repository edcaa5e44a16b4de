package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ocx/gridwalk/internal/aggregate"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/notify"
	"github.com/ocx/gridwalk/internal/observer"
	"github.com/ocx/gridwalk/internal/persistence"
	"github.com/ocx/gridwalk/internal/protocol"
	"github.com/ocx/gridwalk/internal/simulation"
	"github.com/ocx/gridwalk/internal/snapshot"
	"github.com/ocx/gridwalk/internal/trajectory"
)

// Server wires the control-plane state machine (C6), client registry, world
// holder, simulation manager, persistence backend, and notification fan-out
// into an accept loop and per-connection request dispatch (C8).
type Server struct {
	log      *slog.Logger
	state    *State
	registry *Registry
	world    *WorldHolder
	persist  persistence.Store
	bus      notify.Bus
	obs      *observer.Bridge // nil when the observer bridge is disabled

	poolWorkers     int
	poolQueue       int
	obstaclePercent int
	obstacleSeed    uint32

	listener net.Listener
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// New constructs a server with an initial LOBBY-state world/aggregate pair.
// persist, bus, and obs may be nil-equivalent defaults chosen by the caller
// (obs itself may be nil to disable the observer bridge entirely).
func New(initialCfg SimConfig, obstaclePercent int, obstacleSeed uint32, registryCapacity, poolWorkers, poolQueue int, persist persistence.Store, bus notify.Bus, obs *observer.Bridge, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	world, err := grid.New(initialCfg.Kind, initialCfg.Width, initialCfg.Height)
	if err != nil {
		return nil, fmt.Errorf("server: init world: %w", err)
	}
	if initialCfg.Kind == grid.Obstacles {
		world.GenerateObstacles(obstaclePercent, obstacleSeed)
	}
	agg, err := aggregate.New(initialCfg.Width, initialCfg.Height)
	if err != nil {
		return nil, fmt.Errorf("server: init aggregate: %w", err)
	}

	s := &Server{
		log:             log,
		state:           NewState(initialCfg),
		registry:        NewRegistry(registryCapacity),
		persist:         persist,
		bus:             bus,
		obs:             obs,
		poolWorkers:     poolWorkers,
		poolQueue:       poolQueue,
		obstaclePercent: obstaclePercent,
		obstacleSeed:    obstacleSeed,
	}
	mgr := simulation.New(world, agg, s.broadcastProgress, s.broadcastEnd)
	s.world = NewWorldHolder(world, agg, mgr)
	return s, nil
}

// ListenAndServe unlinks any stale entry at socketPath, binds a Unix domain
// socket there, and accepts connections until the listener is closed by
// Shutdown. Each accepted connection is handled on its own goroutine.
func (s *Server) ListenAndServe(socketPath string) error {
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("server: listen %q: %w", socketPath, err)
	}
	s.listener = ln
	s.log.Info("server: listening", "socket", socketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections, requests the simulation manager
// to stop cooperatively, closes every connected client socket, and waits
// (up to ctx) for all per-connection handler goroutines to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopping.Store(true)

	if _, _, mgr := s.world.Get(); mgr != nil {
		mgr.RequestStop()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.registry.Broadcast(func(conn net.Conn) { conn.Close() })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConn implements one per-connection handler: expect JOIN first,
// reply WELCOME, register the client, then loop reading and dispatching
// requests until a recv/send error or QUIT closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	hdr, err := protocol.RecvHeader(conn)
	if err != nil {
		return
	}
	payload, err := protocol.RecvPayload(conn, hdr.PayloadLen)
	if err != nil {
		return
	}
	if hdr.Type != protocol.MsgJoin {
		return
	}
	join, err := protocol.UnmarshalJoin(payload)
	if err != nil {
		return
	}

	client, _, err := s.registry.Register(conn, join.PID)
	if err != nil {
		s.log.Warn("server: rejecting client, registry at capacity", "pid", join.PID)
		return
	}
	defer s.registry.Remove(client.Handle)

	cfg, _, currentRep, _ := s.state.Snapshot()
	welcome := protocol.WelcomePayload{
		WorldKind:  protocol.WorldKind(cfg.Kind),
		Width:      uint32(cfg.Width),
		Height:     uint32(cfg.Height),
		Probs:      protocol.MoveProbsWire{Up: cfg.Probs.Up, Down: cfg.Probs.Down, Left: cfg.Probs.Left, Right: cfg.Probs.Right},
		K:          cfg.K,
		TotalReps:  cfg.TotalReps,
		CurrentRep: currentRep,
		Mode:       protocol.Mode(s.state.Mode()),
		OriginX:    0,
		OriginY:    0,
	}
	if err := protocol.Send(conn, protocol.MsgWelcome, welcome.Marshal()); err != nil {
		return
	}

	for {
		hdr, err := protocol.RecvHeader(conn)
		if err != nil {
			return
		}
		payload, err := protocol.RecvPayload(conn, hdr.PayloadLen)
		if err != nil {
			return
		}
		if !s.dispatch(conn, client, hdr.Type, payload) {
			return
		}
	}
}

// dispatch routes one request to its handler. It returns false when the
// connection must close (a send/recv error, or a QUIT). Messages of
// unrecognized type, or whose payload fails to unmarshal at the expected
// length, are drained (the exact-length read already happened) and the
// connection continues with no reply, per spec.md §4.8.
func (s *Server) dispatch(conn net.Conn, client *Client, msgType protocol.MessageType, payload []byte) bool {
	switch msgType {
	case protocol.MsgQueryStatus:
		if _, err := protocol.UnmarshalQueryStatus(payload); err != nil {
			return true
		}
		return s.handleQueryStatus(conn)
	case protocol.MsgCreateSim:
		p, err := protocol.UnmarshalCreateSim(payload)
		if err != nil {
			return true
		}
		return s.handleCreateSim(conn, client, p)
	case protocol.MsgLoadWorld:
		p, err := protocol.UnmarshalLoadWorld(payload)
		if err != nil {
			return true
		}
		return s.handleLoadWorld(conn, client, p)
	case protocol.MsgStartSim:
		return s.handleStartSim(conn, client)
	case protocol.MsgRestartSim:
		p, err := protocol.UnmarshalRestartSim(payload)
		if err != nil {
			return true
		}
		return s.handleRestartSim(conn, client, p)
	case protocol.MsgStopSim:
		p, err := protocol.UnmarshalStopSim(payload)
		if err != nil {
			return true
		}
		return s.handleStopSim(conn, client, p)
	case protocol.MsgSaveResults:
		p, err := protocol.UnmarshalSaveResults(payload)
		if err != nil {
			return true
		}
		return s.handleSaveResults(conn, client, p)
	case protocol.MsgLoadResults:
		p, err := protocol.UnmarshalLoadResults(payload)
		if err != nil {
			return true
		}
		return s.handleLoadResults(conn, client, p)
	case protocol.MsgRequestSnapshot:
		p, err := protocol.UnmarshalRequestSnapshot(payload)
		if err != nil {
			return true
		}
		return s.handleRequestSnapshot(conn, client, p)
	case protocol.MsgSetGlobalMode:
		p, err := protocol.UnmarshalSetGlobalMode(payload)
		if err != nil {
			return true
		}
		return s.handleSetGlobalMode(client, p)
	case protocol.MsgQuit:
		p, err := protocol.UnmarshalQuit(payload)
		if err != nil {
			return true
		}
		return s.handleQuit(conn, client, p)
	default:
		return true
	}
}

func (s *Server) ack(conn net.Conn, reqType protocol.MessageType) bool {
	return protocol.Send(conn, protocol.MsgAck, protocol.AckPayload{RequestType: reqType, Status: 0}.Marshal()) == nil
}

func (s *Server) errorReply(conn net.Conn, code protocol.ErrorCode) bool {
	return protocol.Send(conn, protocol.MsgError, protocol.ErrorPayload{Code: code, Message: code.String()}.Marshal()) == nil
}

func (s *Server) handleQueryStatus(conn net.Conn) bool {
	cfg, simState, currentRep, multiUser := s.state.Snapshot()
	status := protocol.StatusPayload{
		State:      protocol.SimState(simState),
		WorldKind:  protocol.WorldKind(cfg.Kind),
		Width:      uint32(cfg.Width),
		Height:     uint32(cfg.Height),
		CurrentRep: currentRep,
		TotalReps:  cfg.TotalReps,
		MultiUser:  multiUser,
		HasOwner:   s.registry.HasOwner(),
	}
	return protocol.Send(conn, protocol.MsgStatus, status.Marshal()) == nil
}

func (s *Server) handleCreateSim(conn net.Conn, client *Client, p protocol.CreateSimPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}
	if p.Width == 0 || p.Height == 0 || p.K == 0 || p.TotalReps == 0 {
		return s.errorReply(conn, protocol.ErrInvalidParameters)
	}
	kind := grid.Kind(p.Kind)
	if kind != grid.Wrap && kind != grid.Obstacles {
		return s.errorReply(conn, protocol.ErrInvalidParameters)
	}
	probs := trajectory.MoveProbs{Up: p.Probs.Up, Down: p.Probs.Down, Left: p.Probs.Left, Right: p.Probs.Right}
	if !probs.Valid() {
		return s.errorReply(conn, protocol.ErrProbabilitySum)
	}

	cfg := SimConfig{Kind: kind, Width: int(p.Width), Height: int(p.Height), Probs: probs, K: p.K, TotalReps: p.TotalReps}
	if !s.state.Reconfigure(cfg) {
		return s.errorReply(conn, protocol.ErrStateConflict)
	}
	s.state.SetMultiUser(p.MultiUser)

	world, err := grid.New(kind, cfg.Width, cfg.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrWorldInitFailure)
	}
	if kind == grid.Obstacles {
		world.GenerateObstacles(s.obstaclePercent, s.obstacleSeed)
	}
	agg, err := aggregate.New(cfg.Width, cfg.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrAggregateInitFailure)
	}
	mgr := simulation.New(world, agg, s.broadcastProgress, s.broadcastEnd)
	s.world.Set(world, agg, mgr)

	return s.ack(conn, protocol.MsgCreateSim)
}

func (s *Server) handleLoadWorld(conn net.Conn, client *Client, p protocol.LoadWorldPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}
	if s.state.SimState() == Running {
		return s.errorReply(conn, protocol.ErrStateConflict)
	}

	rec, err := s.persist.LoadWorld(p.Path)
	if err != nil {
		return s.errorReply(conn, protocol.ErrLoadWorldFailure)
	}
	kind := grid.Kind(rec.World.Kind)
	world, err := grid.New(kind, rec.World.Width, rec.World.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrLoadWorldFailure)
	}
	copy(world.Obstacle, rec.World.Obstacle)
	agg, err := aggregate.New(rec.World.Width, rec.World.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrAggregateInitFailure)
	}
	mgr := simulation.New(world, agg, s.broadcastProgress, s.broadcastEnd)
	s.world.Set(world, agg, mgr)
	s.state.ApplyLoadedWorld(kind, rec.World.Width, rec.World.Height)
	s.state.SetMultiUser(p.MultiUser)

	return s.ack(conn, protocol.MsgLoadWorld)
}

func (s *Server) handleStartSim(conn net.Conn, client *Client) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}
	if !s.state.BeginRunning() {
		return s.errorReply(conn, protocol.ErrStateConflict)
	}
	cfg := s.state.Config()
	_, _, mgr := s.world.Get()
	mgr.Start(simulation.Config{Workers: s.poolWorkers, QueueDepth: s.poolQueue, Probs: cfg.Probs, K: cfg.K, TotalReps: cfg.TotalReps})
	return s.ack(conn, protocol.MsgStartSim)
}

func (s *Server) handleRestartSim(conn net.Conn, client *Client, p protocol.RestartSimPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}
	if p.TotalReps == 0 {
		return s.errorReply(conn, protocol.ErrInvalidParameters)
	}
	if !s.state.BeginRunningWithReps(p.TotalReps) {
		return s.errorReply(conn, protocol.ErrStartFailure)
	}
	cfg := s.state.Config()
	_, _, mgr := s.world.Get()
	mgr.Start(simulation.Config{Workers: s.poolWorkers, QueueDepth: s.poolQueue, Probs: cfg.Probs, K: cfg.K, TotalReps: p.TotalReps})
	return s.ack(conn, protocol.MsgRestartSim)
}

func (s *Server) handleStopSim(conn net.Conn, client *Client, p protocol.StopSimPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}
	_, _, mgr := s.world.Get()
	mgr.RequestStop()
	return s.ack(conn, protocol.MsgStopSim)
}

func (s *Server) handleSaveResults(conn net.Conn, client *Client, p protocol.SaveResultsPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}

	cfg, _, currentRep, _ := s.state.Snapshot()
	world, agg, _ := s.world.Get()

	var totalTrials uint64
	trials := agg.Trials()
	for _, t := range trials {
		totalTrials += uint64(t)
	}
	if totalTrials == 0 {
		return s.errorReply(conn, protocol.ErrNothingToSave)
	}

	rec := persistence.ResultsRecord{
		World: persistence.WorldRecord{
			Kind:     uint8(world.Kind),
			Width:    world.Width,
			Height:   world.Height,
			Obstacle: append([]byte(nil), world.Obstacle...),
		},
		ProbUp: cfg.Probs.Up, ProbDown: cfg.Probs.Down, ProbLeft: cfg.Probs.Left, ProbRight: cfg.Probs.Right,
		K: cfg.K, TotalReps: cfg.TotalReps, CurrentRep: currentRep,
		Trials:    append([]uint32(nil), trials...),
		SumSteps:  append([]uint64(nil), agg.SumSteps()...),
		Successes: append([]uint32(nil), agg.Successes()...),
	}
	if err := s.persist.SaveResults(p.Path, rec); err != nil {
		return s.errorReply(conn, protocol.ErrSaveFailure)
	}
	return s.ack(conn, protocol.MsgSaveResults)
}

func (s *Server) handleLoadResults(conn net.Conn, client *Client, p protocol.LoadResultsPayload) bool {
	if !s.registry.CanControl(client.Handle) {
		return s.errorReply(conn, protocol.ErrPermissionDenied)
	}

	rec, err := s.persist.LoadResults(p.Path)
	if err != nil {
		return s.errorReply(conn, protocol.ErrLoadFailure)
	}
	kind := grid.Kind(rec.World.Kind)
	world, err := grid.New(kind, rec.World.Width, rec.World.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrLoadFailure)
	}
	copy(world.Obstacle, rec.World.Obstacle)
	agg, err := aggregate.New(rec.World.Width, rec.World.Height)
	if err != nil {
		return s.errorReply(conn, protocol.ErrLoadFailure)
	}
	copy(agg.Trials(), rec.Trials)
	copy(agg.SumSteps(), rec.SumSteps)
	copy(agg.Successes(), rec.Successes)

	mgr := simulation.New(world, agg, s.broadcastProgress, s.broadcastEnd)
	s.world.Set(world, agg, mgr)

	cfg := SimConfig{
		Kind: kind, Width: rec.World.Width, Height: rec.World.Height,
		Probs:     trajectory.MoveProbs{Up: rec.ProbUp, Down: rec.ProbDown, Left: rec.ProbLeft, Right: rec.ProbRight},
		K:         rec.K,
		TotalReps: rec.TotalReps,
	}
	s.state.ApplyLoadedResults(cfg, rec.CurrentRep)

	return s.ack(conn, protocol.MsgLoadResults)
}

func (s *Server) handleRequestSnapshot(conn net.Conn, client *Client, p protocol.RequestSnapshotPayload) bool {
	world, agg, _ := s.world.Get()
	if world == nil || agg == nil {
		return s.errorReply(conn, protocol.ErrSnapshotUnavailable)
	}
	if !s.ack(conn, protocol.MsgRequestSnapshot) {
		return false
	}

	fields := protocol.FieldObstacles | protocol.FieldTrials | protocol.FieldSumSteps | protocol.FieldSuccLeqK
	if s.obs != nil {
		s.obs.SnapshotSummary(snapshot.NextID(), uint32(world.CellCount()), fields)
	}
	if err := snapshot.StreamTo(conn, world, agg, fields); err != nil {
		s.log.Warn("server: snapshot stream failed", "pid", client.PID, "error", err)
		return false
	}
	return true
}

func (s *Server) handleSetGlobalMode(client *Client, p protocol.SetGlobalModePayload) bool {
	mode := DisplayMode(p.Mode)
	if mode != ModeInteractive && mode != ModeSummary {
		// SET_GLOBAL_MODE carries no ACK/ERROR reply per spec.md §4.7; an
		// invalid mode is simply not applied.
		return true
	}
	s.state.SetMode(mode)
	s.broadcastGlobalModeChanged(mode, client.PID)
	return true
}

func (s *Server) handleQuit(conn net.Conn, client *Client, p protocol.QuitPayload) bool {
	if p.StopIfOwner && s.registry.CanControl(client.Handle) {
		if _, _, mgr := s.world.Get(); mgr != nil {
			mgr.RequestStop()
		}
	}
	_ = s.ack(conn, protocol.MsgQuit)
	return false
}

// broadcastProgress is the simulation manager's onProgress callback: it fans
// PROGRESS out to every connected client with a best-effort (non-blocking)
// write so a stalled peer never blocks the replication loop, mirrors it to
// the observer bridge, and republishes it on the notification bus.
func (s *Server) broadcastProgress(current, total uint32) {
	s.state.AdvanceRep(current)
	payload := protocol.ProgressPayload{CurrentRep: current, TotalReps: total}.Marshal()
	s.registry.Broadcast(func(conn net.Conn) {
		_ = protocol.SendBestEffort(conn, protocol.MsgProgress, payload)
	})
	if s.obs != nil {
		s.obs.Progress(current, total)
	}
	if s.bus != nil {
		_ = s.bus.Publish(context.Background(), notify.Event{Kind: "progress", Payload: payload})
	}
}

// broadcastEnd is the simulation manager's onEnd callback: it transitions
// the state machine to FINISHED and fans out END.
func (s *Server) broadcastEnd(stopped bool) {
	s.state.Finish()
	reason := protocol.EndDoneAllReps
	if stopped {
		reason = protocol.EndStopped
	}
	payload := protocol.EndPayload{Reason: reason}.Marshal()
	s.registry.Broadcast(func(conn net.Conn) {
		_ = protocol.SendBestEffort(conn, protocol.MsgEnd, payload)
	})
	if s.obs != nil {
		s.obs.End(stopped)
	}
	if s.bus != nil {
		_ = s.bus.Publish(context.Background(), notify.Event{Kind: "end", Payload: payload})
	}
}

func (s *Server) broadcastGlobalModeChanged(mode DisplayMode, pid uint32) {
	payload := protocol.GlobalModeChangedPayload{Mode: protocol.Mode(mode), ChangedByPID: pid}.Marshal()
	s.registry.Broadcast(func(conn net.Conn) {
		_ = protocol.SendBestEffort(conn, protocol.MsgGlobalModeChanged, payload)
	})
	if s.obs != nil {
		s.obs.GlobalModeChanged(uint32(mode), pid)
	}
}
