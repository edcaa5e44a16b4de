package snapshot

import (
	"context"
	"sync"

	"github.com/ocx/gridwalk/internal/protocol"
)

// Assembly is one in-progress or completed snapshot reconstruction: the
// per-field byte buffers declared by a SNAPSHOT_BEGIN, filled in by
// subsequent SNAPSHOT_CHUNK messages.
type Assembly struct {
	ID             uint64
	Kind           protocol.WorldKind
	CellCount      uint32
	IncludedFields uint32
	Fields         map[protocol.SnapshotField][]byte
}

// fieldByteLen returns the expected byte length of one field's buffer for a
// world of cellCount cells: u8 for obstacles, u32 for trials/successes, u64
// for sum_steps.
func fieldByteLen(field protocol.SnapshotField, cellCount uint32) int {
	switch field {
	case protocol.FieldObstaclesID:
		return int(cellCount)
	case protocol.FieldTrialsID, protocol.FieldSuccLeqKID:
		return int(cellCount) * 4
	case protocol.FieldSumStepsID:
		return int(cellCount) * 8
	default:
		return 0
	}
}

func fieldBit(f protocol.SnapshotField) uint32 {
	switch f {
	case protocol.FieldObstaclesID:
		return protocol.FieldObstacles
	case protocol.FieldTrialsID:
		return protocol.FieldTrials
	case protocol.FieldSumStepsID:
		return protocol.FieldSumSteps
	case protocol.FieldSuccLeqKID:
		return protocol.FieldSuccLeqK
	default:
		return 0
	}
}

var allFields = [...]protocol.SnapshotField{
	protocol.FieldObstaclesID, protocol.FieldTrialsID,
	protocol.FieldSumStepsID, protocol.FieldSuccLeqKID,
}

// Assembler reconstructs chunked snapshots on the client side. Begin/Apply/
// Finalize are driven exclusively by the dispatcher's single reader
// goroutine; Completed/Wait may be called from any goroutine (typically the
// out-of-core renderer).
type Assembler struct {
	mu        sync.Mutex
	active    *Assembly
	completed *Assembly
	doneCh    chan struct{}
}

// NewAssembler builds an idle assembler.
func NewAssembler() *Assembler {
	return &Assembler{doneCh: make(chan struct{})}
}

// Begin starts a new assembly, allocating only the fields declared in the
// included-fields bitmask. Any still-in-progress assembly is discarded.
func (a *Assembler) Begin(begin protocol.SnapshotBeginPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fields := make(map[protocol.SnapshotField][]byte)
	for _, f := range allFields {
		if begin.IncludedFields&fieldBit(f) == 0 {
			continue
		}
		fields[f] = make([]byte, fieldByteLen(f, begin.CellCount))
	}

	a.active = &Assembly{
		ID:             begin.ID,
		Kind:           begin.Kind,
		CellCount:      begin.CellCount,
		IncludedFields: begin.IncludedFields,
		Fields:         fields,
	}
}

// Apply copies one chunk into the active assembly's per-field buffer. A
// chunk whose snapshot_id disagrees with the active assembly is tolerated as
// stale and silently ignored, as is a chunk for a field not declared in
// IncludedFields. The bounds check is overflow-safe: offset+len is compared
// against the field's byte length without relying on unsigned wraparound.
func (a *Assembler) Apply(chunk protocol.SnapshotChunkPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil || chunk.ID != a.active.ID {
		return
	}
	buf, ok := a.active.Fields[chunk.Field]
	if !ok {
		return
	}
	offset := uint64(chunk.OffsetBytes)
	dataLen := uint64(len(chunk.Data))
	end := offset + dataLen
	if end < offset || offset > uint64(len(buf)) || end > uint64(len(buf)) {
		return
	}
	copy(buf[offset:end], chunk.Data)
}

// Finalize marks the active assembly complete, publishes it as Completed,
// and wakes any goroutine blocked in Wait. A Finalize with no active
// assembly (e.g. a stray SNAPSHOT_END) is a no-op.
func (a *Assembler) Finalize() {
	a.mu.Lock()
	if a.active == nil {
		a.mu.Unlock()
		return
	}
	a.completed = a.active
	a.active = nil
	done := a.doneCh
	a.doneCh = make(chan struct{})
	a.mu.Unlock()
	close(done)
}

// Completed returns the most recently finalized assembly, if any.
func (a *Assembler) Completed() (*Assembly, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed == nil {
		return nil, false
	}
	return a.completed, true
}

// Wait blocks until the next Finalize call or ctx cancellation, then returns
// the newly completed assembly.
func (a *Assembler) Wait(ctx context.Context) (*Assembly, error) {
	a.mu.Lock()
	ch := a.doneCh
	a.mu.Unlock()

	select {
	case <-ch:
		completed, _ := a.Completed()
		return completed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FieldByteLength exposes fieldByteLen for tests that check coverage
// completeness against the expected field size.
func FieldByteLength(field protocol.SnapshotField, cellCount uint32) int {
	return fieldByteLen(field, cellCount)
}
