// Package snapshot implements the server-side field-at-a-time chunked
// snapshot streamer (C10) and the client-side assembler that reconstitutes
// chunks back into per-field byte buffers.
package snapshot

import (
	"encoding/binary"
	"net"
	"sync/atomic"

	"github.com/ocx/gridwalk/internal/aggregate"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/metrics"
	"github.com/ocx/gridwalk/internal/protocol"
)

var nextID uint64

// NextID returns a process-wide monotonically increasing snapshot id.
func NextID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// fieldBytes serializes one included field to its wire byte representation:
// u8 for obstacles, u32 for trials/successes, u64 for sum_steps.
func fieldBytes(field protocol.SnapshotField, w *grid.World, agg *aggregate.Store) []byte {
	switch field {
	case protocol.FieldObstaclesID:
		return append([]byte(nil), w.Obstacle...)
	case protocol.FieldTrialsID:
		trials := agg.Trials()
		buf := make([]byte, 4*len(trials))
		for i, v := range trials {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
		return buf
	case protocol.FieldSumStepsID:
		sums := agg.SumSteps()
		buf := make([]byte, 8*len(sums))
		for i, v := range sums {
			binary.LittleEndian.PutUint64(buf[i*8:], v)
		}
		return buf
	case protocol.FieldSuccLeqKID:
		succ := agg.Successes()
		buf := make([]byte, 4*len(succ))
		for i, v := range succ {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
		return buf
	default:
		return nil
	}
}

// fieldsInMask returns the fields set in mask in bit order.
func fieldsInMask(mask uint32) []protocol.SnapshotField {
	var fields []protocol.SnapshotField
	if mask&protocol.FieldObstacles != 0 {
		fields = append(fields, protocol.FieldObstaclesID)
	}
	if mask&protocol.FieldTrials != 0 {
		fields = append(fields, protocol.FieldTrialsID)
	}
	if mask&protocol.FieldSumSteps != 0 {
		fields = append(fields, protocol.FieldSumStepsID)
	}
	if mask&protocol.FieldSuccLeqK != 0 {
		fields = append(fields, protocol.FieldSuccLeqKID)
	}
	return fields
}

// StreamTo streams one snapshot sequentially to a single connection using
// blocking writes — the client is expected to drain promptly via its
// dispatcher. Returns the first write error encountered, if any.
func StreamTo(conn net.Conn, w *grid.World, agg *aggregate.Store, includedFields uint32) error {
	id := NextID()
	cellCount := uint32(w.CellCount())

	fields := fieldsInMask(includedFields)
	var totalSize uint64
	fieldData := make(map[protocol.SnapshotField][]byte, len(fields))
	for _, f := range fields {
		data := fieldBytes(f, w, agg)
		fieldData[f] = data
		totalSize += uint64(len(data))
	}

	begin := protocol.SnapshotBeginPayload{
		ID:             id,
		Size:           totalSize,
		Kind:           protocol.WorldKind(w.Kind),
		CellCount:      cellCount,
		IncludedFields: includedFields,
	}
	if err := protocol.Send(conn, protocol.MsgSnapshotBegin, begin.Marshal()); err != nil {
		return err
	}

	for _, f := range fields {
		data := fieldData[f]
		for offset := 0; offset < len(data) || len(data) == 0; {
			end := offset + protocol.MaxChunkPayload
			if end > len(data) {
				end = len(data)
			}
			chunk := protocol.SnapshotChunkPayload{
				ID:          id,
				Field:       f,
				OffsetBytes: uint32(offset),
				Data:        data[offset:end],
			}
			if err := protocol.Send(conn, protocol.MsgSnapshotChunk, chunk.Marshal()); err != nil {
				return err
			}
			metrics.SnapshotBytesStreamed.Add(float64(end - offset))
			if len(data) == 0 {
				break
			}
			offset = end
			if offset >= len(data) {
				break
			}
		}
	}

	return protocol.Send(conn, protocol.MsgSnapshotEnd, nil)
}

// Broadcast streams a snapshot to every connection in conns, one after another.
// There is no atomicity across fields or across clients; a concurrent
// simulation may update the aggregate mid-stream — an intentional
// visualization-only trade-off. A broken client does not abort the
// broadcast to the others.
func Broadcast(conns []net.Conn, w *grid.World, agg *aggregate.Store, includedFields uint32) {
	for _, conn := range conns {
		_ = StreamTo(conn, w, agg, includedFields)
	}
}
