// Package clientio implements the client-side single-reader dispatcher: it
// owns the only goroutine allowed to read the control socket and offers a
// synchronous request/response primitive over it, serialized against
// concurrent asynchronous server traffic.
package clientio

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ocx/gridwalk/internal/protocol"
	"github.com/ocx/gridwalk/internal/snapshot"
)

// ErrCode mirrors the dispatcher's internal error state; EPIPE is the only
// value spec.md names explicitly.
type ErrCode int

const (
	ErrNone ErrCode = iota
	ErrPipe
)

// Dispatcher owns the read half of the control socket. The foreground
// (interactive/menu) side only ever calls SendAndWait; it never reads
// directly.
type Dispatcher struct {
	conn net.Conn

	mu       sync.Mutex
	cond     *sync.Cond
	waiting  bool
	expected map[protocol.MessageType]bool

	respReady   bool
	respType    protocol.MessageType
	respPayload []byte

	lastErr ErrCode
	stopped bool

	assembler *snapshot.Assembler

	// onAsync is invoked for PROGRESS/END/GLOBAL_MODE_CHANGED; nil means
	// silently consumed, matching spec.md's "must never interleave with the
	// interactive prompt" requirement by default.
	onAsync func(msgType protocol.MessageType, payload []byte)
}

// New builds a dispatcher over an already-connected socket and starts its
// reader goroutine. onAsync may be nil.
func New(conn net.Conn, onAsync func(msgType protocol.MessageType, payload []byte)) *Dispatcher {
	d := &Dispatcher{
		conn:      conn,
		expected:  make(map[protocol.MessageType]bool),
		assembler: snapshot.NewAssembler(),
		onAsync:   onAsync,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.readLoop()
	return d
}

func (d *Dispatcher) readLoop() {
	for {
		msg, err := protocol.RecvMessage(d.conn)
		if err != nil {
			d.mu.Lock()
			d.lastErr = ErrPipe
			d.stopped = true
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}

		switch msg.Type {
		case protocol.MsgProgress, protocol.MsgEnd, protocol.MsgGlobalModeChanged:
			if d.onAsync != nil {
				d.onAsync(msg.Type, msg.Payload)
			}
		case protocol.MsgSnapshotBegin:
			begin, err := protocol.UnmarshalSnapshotBegin(msg.Payload)
			if err == nil {
				d.assembler.Begin(begin)
			}
		case protocol.MsgSnapshotChunk:
			chunk, err := protocol.UnmarshalSnapshotChunk(msg.Payload)
			if err == nil {
				d.assembler.Apply(chunk)
			}
		case protocol.MsgSnapshotEnd:
			d.assembler.Finalize()
		default:
			d.mu.Lock()
			if d.expected[msg.Type] && !d.respReady {
				d.respReady = true
				d.respType = msg.Type
				d.respPayload = msg.Payload
				d.cond.Broadcast()
			}
			d.mu.Unlock()
		}
	}
}

// Assembler exposes the snapshot assembler for callers that want completed
// snapshots (the interactive renderer, out of core scope here).
func (d *Dispatcher) Assembler() *snapshot.Assembler {
	return d.assembler
}

// SendAndWait sends one request and blocks for a response whose type is in
// expected, up to timeout (0 = no timeout). At most one synchronous request
// is in flight at a time; concurrent callers serialize on the dispatcher's
// mutex.
func (d *Dispatcher) SendAndWait(msgType protocol.MessageType, payload []byte, expected []protocol.MessageType, timeout time.Duration) (protocol.MessageType, []byte, error) {
	d.mu.Lock()
	for d.waiting {
		d.cond.Wait()
	}
	if d.stopped {
		d.mu.Unlock()
		return 0, nil, fmt.Errorf("clientio: dispatcher stopped (last_err=%d)", d.lastErr)
	}

	d.waiting = true
	d.expected = make(map[protocol.MessageType]bool, len(expected))
	for _, t := range expected {
		d.expected[t] = true
	}
	d.respReady = false

	sendErr := protocol.Send(d.conn, msgType, payload)
	if sendErr != nil {
		d.waiting = false
		d.cond.Broadcast()
		d.mu.Unlock()
		return 0, nil, sendErr
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for !d.respReady && !d.stopped {
		if deadline.IsZero() {
			d.cond.Wait()
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		waitWithTimeout(d.cond, remaining)
	}

	var (
		respType protocol.MessageType
		respData []byte
		err      error
	)
	if d.respReady {
		respType = d.respType
		respData = d.respPayload
	} else if d.stopped {
		err = fmt.Errorf("clientio: dispatcher stopped mid-wait (last_err=%d)", d.lastErr)
	} else {
		err = fmt.Errorf("clientio: send_and_wait timed out after %s", timeout)
	}

	d.waiting = false
	d.cond.Broadcast()
	d.mu.Unlock()

	return respType, respData, err
}

// Stopped reports whether the reader loop has exited due to a socket error.
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
