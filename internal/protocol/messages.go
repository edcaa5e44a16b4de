package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MessageType is the wire-level type code carried in every frame header.
type MessageType uint16

const (
	MsgJoin               MessageType = 1
	MsgWelcome            MessageType = 2
	MsgSetGlobalMode      MessageType = 3
	MsgGlobalModeChanged  MessageType = 4
	MsgProgress           MessageType = 5
	MsgSnapshotBegin      MessageType = 6
	MsgSnapshotChunk      MessageType = 7
	MsgSnapshotEnd        MessageType = 8
	MsgStopSim            MessageType = 9
	MsgEnd                MessageType = 10
	MsgQueryStatus        MessageType = 11
	MsgStatus             MessageType = 12
	MsgCreateSim          MessageType = 13
	MsgLoadWorld          MessageType = 14
	MsgStartSim           MessageType = 15
	MsgRequestSnapshot    MessageType = 16
	MsgRestartSim         MessageType = 17
	MsgLoadResults        MessageType = 18
	MsgSaveResults        MessageType = 19
	MsgQuit               MessageType = 20
	MsgAck                MessageType = 21
	MsgError              MessageType = 255
)

func (t MessageType) String() string {
	switch t {
	case MsgJoin:
		return "JOIN"
	case MsgWelcome:
		return "WELCOME"
	case MsgSetGlobalMode:
		return "SET_GLOBAL_MODE"
	case MsgGlobalModeChanged:
		return "GLOBAL_MODE_CHANGED"
	case MsgProgress:
		return "PROGRESS"
	case MsgSnapshotBegin:
		return "SNAPSHOT_BEGIN"
	case MsgSnapshotChunk:
		return "SNAPSHOT_CHUNK"
	case MsgSnapshotEnd:
		return "SNAPSHOT_END"
	case MsgStopSim:
		return "STOP_SIM"
	case MsgEnd:
		return "END"
	case MsgQueryStatus:
		return "QUERY_STATUS"
	case MsgStatus:
		return "STATUS"
	case MsgCreateSim:
		return "CREATE_SIM"
	case MsgLoadWorld:
		return "LOAD_WORLD"
	case MsgStartSim:
		return "START_SIM"
	case MsgRequestSnapshot:
		return "REQUEST_SNAPSHOT"
	case MsgRestartSim:
		return "RESTART_SIM"
	case MsgLoadResults:
		return "LOAD_RESULTS"
	case MsgSaveResults:
		return "SAVE_RESULTS"
	case MsgQuit:
		return "QUIT"
	case MsgAck:
		return "ACK"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// WorldKind mirrors grid.Kind on the wire.
type WorldKind uint32

const (
	WireWrap      WorldKind = 1
	WireObstacles WorldKind = 2
)

// Mode is the client-visible display mode, carried informationally — it
// never gates server-side capability.
type Mode uint32

const (
	ModeInteractive Mode = 1
	ModeSummary     Mode = 2
)

// SimState mirrors the server state machine's state on the wire.
type SimState uint32

const (
	WireLobby    SimState = 1
	WireRunning  SimState = 2
	WireFinished SimState = 3
)

// Snapshot field bitmask positions.
const (
	FieldObstacles uint32 = 1 << 0
	FieldTrials    uint32 = 1 << 1
	FieldSumSteps  uint32 = 1 << 2
	FieldSuccLeqK  uint32 = 1 << 3
)

// MaxChunkPayload bounds SNAPSHOT_CHUNK's data_len.
const MaxChunkPayload = 4096

// PathBufLen is the fixed size of a NUL-terminated path field.
const PathBufLen = 256

// putPath writes s NUL-terminated into a PathBufLen buffer, truncating if
// necessary; trailing bytes past the NUL are left zeroed.
func putPath(buf []byte, s string) {
	n := copy(buf, s)
	if n < len(buf) {
		buf[n] = 0
	} else {
		buf[len(buf)-1] = 0
	}
}

// getPath reads a NUL-terminated string out of a fixed path buffer, ignoring
// any trailing garbage past the NUL.
func getPath(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func f64bits(f float64) uint64 { return math.Float64bits(f) }
func bitsF64(b uint64) float64 { return math.Float64frombits(b) }

// JoinPayload: C->S, type 1.
type JoinPayload struct {
	PID uint32
}

func (p JoinPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.PID)
	return buf
}

func UnmarshalJoin(b []byte) (JoinPayload, error) {
	if len(b) != 4 {
		return JoinPayload{}, fmt.Errorf("protocol: JOIN payload must be 4 bytes, got %d", len(b))
	}
	return JoinPayload{PID: binary.LittleEndian.Uint32(b)}, nil
}

// MoveProbsWire is the wire form of the four move-direction probabilities.
type MoveProbsWire struct {
	Up, Down, Left, Right float64
}

func (p MoveProbsWire) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f64bits(p.Up))
	binary.LittleEndian.PutUint64(buf[8:16], f64bits(p.Down))
	binary.LittleEndian.PutUint64(buf[16:24], f64bits(p.Left))
	binary.LittleEndian.PutUint64(buf[24:32], f64bits(p.Right))
}

func unmarshalProbs(buf []byte) MoveProbsWire {
	return MoveProbsWire{
		Up:    bitsF64(binary.LittleEndian.Uint64(buf[0:8])),
		Down:  bitsF64(binary.LittleEndian.Uint64(buf[8:16])),
		Left:  bitsF64(binary.LittleEndian.Uint64(buf[16:24])),
		Right: bitsF64(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

const moveProbsSize = 32

// WelcomePayload: S->C, type 2.
type WelcomePayload struct {
	WorldKind  WorldKind
	Width      uint32
	Height     uint32
	Probs      MoveProbsWire
	K          uint64
	TotalReps  uint32
	CurrentRep uint32
	Mode       Mode
	OriginX    uint32
	OriginY    uint32
}

const welcomeSize = 4 + 4 + 4 + moveProbsSize + 8 + 4 + 4 + 4 + 4 + 4

func (p WelcomePayload) Marshal() []byte {
	buf := make([]byte, welcomeSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.WorldKind))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Width)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Height)
	off += 4
	p.Probs.marshalInto(buf[off : off+moveProbsSize])
	off += moveProbsSize
	binary.LittleEndian.PutUint64(buf[off:], p.K)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], p.TotalReps)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.CurrentRep)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.Mode))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.OriginX)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.OriginY)
	return buf
}

func UnmarshalWelcome(b []byte) (WelcomePayload, error) {
	if len(b) != welcomeSize {
		return WelcomePayload{}, fmt.Errorf("protocol: WELCOME payload must be %d bytes, got %d", welcomeSize, len(b))
	}
	off := 0
	p := WelcomePayload{}
	p.WorldKind = WorldKind(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	p.Width = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Height = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Probs = unmarshalProbs(b[off : off+moveProbsSize])
	off += moveProbsSize
	p.K = binary.LittleEndian.Uint64(b[off:])
	off += 8
	p.TotalReps = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.CurrentRep = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Mode = Mode(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	p.OriginX = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.OriginY = binary.LittleEndian.Uint32(b[off:])
	return p, nil
}

// SetGlobalModePayload: C->S, type 3.
type SetGlobalModePayload struct {
	Mode Mode
}

func (p SetGlobalModePayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(p.Mode))
	return buf
}

func UnmarshalSetGlobalMode(b []byte) (SetGlobalModePayload, error) {
	if len(b) != 4 {
		return SetGlobalModePayload{}, fmt.Errorf("protocol: SET_GLOBAL_MODE payload must be 4 bytes, got %d", len(b))
	}
	return SetGlobalModePayload{Mode: Mode(binary.LittleEndian.Uint32(b))}, nil
}

// GlobalModeChangedPayload: S->all, type 4.
type GlobalModeChangedPayload struct {
	Mode        Mode
	ChangedByPID uint32
}

func (p GlobalModeChangedPayload) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Mode))
	binary.LittleEndian.PutUint32(buf[4:8], p.ChangedByPID)
	return buf
}

func UnmarshalGlobalModeChanged(b []byte) (GlobalModeChangedPayload, error) {
	if len(b) != 8 {
		return GlobalModeChangedPayload{}, fmt.Errorf("protocol: GLOBAL_MODE_CHANGED payload must be 8 bytes, got %d", len(b))
	}
	return GlobalModeChangedPayload{
		Mode:         Mode(binary.LittleEndian.Uint32(b[0:4])),
		ChangedByPID: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ProgressPayload: S->all, type 5.
type ProgressPayload struct {
	CurrentRep uint32
	TotalReps  uint32
}

func (p ProgressPayload) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], p.CurrentRep)
	binary.LittleEndian.PutUint32(buf[4:8], p.TotalReps)
	return buf
}

func UnmarshalProgress(b []byte) (ProgressPayload, error) {
	if len(b) != 8 {
		return ProgressPayload{}, fmt.Errorf("protocol: PROGRESS payload must be 8 bytes, got %d", len(b))
	}
	return ProgressPayload{
		CurrentRep: binary.LittleEndian.Uint32(b[0:4]),
		TotalReps:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// SnapshotBeginPayload: S->C, type 6.
type SnapshotBeginPayload struct {
	ID             uint64
	Size           uint64
	Kind           WorldKind
	CellCount      uint32
	IncludedFields uint32
}

const snapshotBeginSize = 8 + 8 + 4 + 4 + 4

func (p SnapshotBeginPayload) Marshal() []byte {
	buf := make([]byte, snapshotBeginSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.ID)
	binary.LittleEndian.PutUint64(buf[8:16], p.Size)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(p.Kind))
	binary.LittleEndian.PutUint32(buf[20:24], p.CellCount)
	binary.LittleEndian.PutUint32(buf[24:28], p.IncludedFields)
	return buf
}

func UnmarshalSnapshotBegin(b []byte) (SnapshotBeginPayload, error) {
	if len(b) != snapshotBeginSize {
		return SnapshotBeginPayload{}, fmt.Errorf("protocol: SNAPSHOT_BEGIN payload must be %d bytes, got %d", snapshotBeginSize, len(b))
	}
	return SnapshotBeginPayload{
		ID:             binary.LittleEndian.Uint64(b[0:8]),
		Size:           binary.LittleEndian.Uint64(b[8:16]),
		Kind:           WorldKind(binary.LittleEndian.Uint32(b[16:20])),
		CellCount:      binary.LittleEndian.Uint32(b[20:24]),
		IncludedFields: binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// SnapshotField identifies which aggregate/world array a chunk belongs to.
type SnapshotField uint32

const (
	FieldObstaclesID SnapshotField = 0
	FieldTrialsID     SnapshotField = 1
	FieldSumStepsID   SnapshotField = 2
	FieldSuccLeqKID   SnapshotField = 3
)

// SnapshotChunkPayload: S->C, type 7. Data is up to MaxChunkPayload bytes;
// the fixed header occupies the first 20 bytes of the payload.
type SnapshotChunkPayload struct {
	ID         uint64
	Field      SnapshotField
	OffsetBytes uint32
	Data       []byte
}

const snapshotChunkHeaderSize = 8 + 4 + 4 + 4

func (p SnapshotChunkPayload) Marshal() []byte {
	buf := make([]byte, snapshotChunkHeaderSize+len(p.Data))
	binary.LittleEndian.PutUint64(buf[0:8], p.ID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Field))
	binary.LittleEndian.PutUint32(buf[12:16], p.OffsetBytes)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(p.Data)))
	copy(buf[snapshotChunkHeaderSize:], p.Data)
	return buf
}

func UnmarshalSnapshotChunk(b []byte) (SnapshotChunkPayload, error) {
	if len(b) < snapshotChunkHeaderSize {
		return SnapshotChunkPayload{}, fmt.Errorf("protocol: SNAPSHOT_CHUNK payload too short: %d bytes", len(b))
	}
	dataLen := binary.LittleEndian.Uint32(b[16:20])
	if int(snapshotChunkHeaderSize+dataLen) != len(b) {
		return SnapshotChunkPayload{}, fmt.Errorf("protocol: SNAPSHOT_CHUNK data_len %d disagrees with payload size %d", dataLen, len(b))
	}
	data := make([]byte, dataLen)
	copy(data, b[snapshotChunkHeaderSize:])
	return SnapshotChunkPayload{
		ID:          binary.LittleEndian.Uint64(b[0:8]),
		Field:       SnapshotField(binary.LittleEndian.Uint32(b[8:12])),
		OffsetBytes: binary.LittleEndian.Uint32(b[12:16]),
		Data:        data,
	}, nil
}

// SNAPSHOT_END (type 8) carries an empty payload; no struct needed.

// StopSimPayload: C->S, type 9.
type StopSimPayload struct {
	PID uint32
}

func (p StopSimPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.PID)
	return buf
}

func UnmarshalStopSim(b []byte) (StopSimPayload, error) {
	if len(b) != 4 {
		return StopSimPayload{}, fmt.Errorf("protocol: STOP_SIM payload must be 4 bytes, got %d", len(b))
	}
	return StopSimPayload{PID: binary.LittleEndian.Uint32(b)}, nil
}

// EndReason distinguishes natural completion from a cooperative stop.
type EndReason uint32

const (
	EndDoneAllReps EndReason = 0
	EndStopped     EndReason = 1
)

// EndPayload: S->all, type 10.
type EndPayload struct {
	Reason EndReason
}

func (p EndPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(p.Reason))
	return buf
}

func UnmarshalEnd(b []byte) (EndPayload, error) {
	if len(b) != 4 {
		return EndPayload{}, fmt.Errorf("protocol: END payload must be 4 bytes, got %d", len(b))
	}
	return EndPayload{Reason: EndReason(binary.LittleEndian.Uint32(b))}, nil
}

// QueryStatusPayload: C->S, type 11.
type QueryStatusPayload struct {
	PID uint32
}

func (p QueryStatusPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.PID)
	return buf
}

func UnmarshalQueryStatus(b []byte) (QueryStatusPayload, error) {
	if len(b) != 4 {
		return QueryStatusPayload{}, fmt.Errorf("protocol: QUERY_STATUS payload must be 4 bytes, got %d", len(b))
	}
	return QueryStatusPayload{PID: binary.LittleEndian.Uint32(b)}, nil
}

// StatusPayload: S->C, type 12. Full status block.
type StatusPayload struct {
	State      SimState
	WorldKind  WorldKind
	Width      uint32
	Height     uint32
	CurrentRep uint32
	TotalReps  uint32
	MultiUser  bool
	HasOwner   bool
}

const statusSize = 4 + 4 + 4 + 4 + 4 + 4 + 1 + 1

func (p StatusPayload) Marshal() []byte {
	buf := make([]byte, statusSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.State))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.WorldKind))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Width)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Height)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.CurrentRep)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.TotalReps)
	off += 4
	if p.MultiUser {
		buf[off] = 1
	}
	off++
	if p.HasOwner {
		buf[off] = 1
	}
	return buf
}

func UnmarshalStatus(b []byte) (StatusPayload, error) {
	if len(b) != statusSize {
		return StatusPayload{}, fmt.Errorf("protocol: STATUS payload must be %d bytes, got %d", statusSize, len(b))
	}
	off := 0
	p := StatusPayload{}
	p.State = SimState(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	p.WorldKind = WorldKind(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	p.Width = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Height = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.CurrentRep = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.TotalReps = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.MultiUser = b[off] != 0
	off++
	p.HasOwner = b[off] != 0
	return p, nil
}

// CreateSimPayload: C->S, type 13.
type CreateSimPayload struct {
	Kind      WorldKind
	Width     uint32
	Height    uint32
	Probs     MoveProbsWire
	K         uint64
	TotalReps uint32
	MultiUser bool
}

const createSimSize = 4 + 4 + 4 + moveProbsSize + 8 + 4 + 1

func (p CreateSimPayload) Marshal() []byte {
	buf := make([]byte, createSimSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.Kind))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Width)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Height)
	off += 4
	p.Probs.marshalInto(buf[off : off+moveProbsSize])
	off += moveProbsSize
	binary.LittleEndian.PutUint64(buf[off:], p.K)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], p.TotalReps)
	off += 4
	if p.MultiUser {
		buf[off] = 1
	}
	return buf
}

func UnmarshalCreateSim(b []byte) (CreateSimPayload, error) {
	if len(b) != createSimSize {
		return CreateSimPayload{}, fmt.Errorf("protocol: CREATE_SIM payload must be %d bytes, got %d", createSimSize, len(b))
	}
	off := 0
	p := CreateSimPayload{}
	p.Kind = WorldKind(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	p.Width = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Height = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.Probs = unmarshalProbs(b[off : off+moveProbsSize])
	off += moveProbsSize
	p.K = binary.LittleEndian.Uint64(b[off:])
	off += 8
	p.TotalReps = binary.LittleEndian.Uint32(b[off:])
	off += 4
	p.MultiUser = b[off] != 0
	return p, nil
}

// LoadWorldPayload: C->S, type 14.
type LoadWorldPayload struct {
	Path      string
	MultiUser bool
}

const loadWorldSize = PathBufLen + 1

func (p LoadWorldPayload) Marshal() []byte {
	buf := make([]byte, loadWorldSize)
	putPath(buf[0:PathBufLen], p.Path)
	if p.MultiUser {
		buf[PathBufLen] = 1
	}
	return buf
}

func UnmarshalLoadWorld(b []byte) (LoadWorldPayload, error) {
	if len(b) != loadWorldSize {
		return LoadWorldPayload{}, fmt.Errorf("protocol: LOAD_WORLD payload must be %d bytes, got %d", loadWorldSize, len(b))
	}
	return LoadWorldPayload{
		Path:      getPath(b[0:PathBufLen]),
		MultiUser: b[PathBufLen] != 0,
	}, nil
}

// START_SIM (type 15) carries an empty payload.

// RequestSnapshotPayload: C->S, type 16.
type RequestSnapshotPayload struct {
	PID uint32
}

func (p RequestSnapshotPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.PID)
	return buf
}

func UnmarshalRequestSnapshot(b []byte) (RequestSnapshotPayload, error) {
	if len(b) != 4 {
		return RequestSnapshotPayload{}, fmt.Errorf("protocol: REQUEST_SNAPSHOT payload must be 4 bytes, got %d", len(b))
	}
	return RequestSnapshotPayload{PID: binary.LittleEndian.Uint32(b)}, nil
}

// RestartSimPayload: C->S, type 17.
type RestartSimPayload struct {
	TotalReps uint32
}

func (p RestartSimPayload) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.TotalReps)
	return buf
}

func UnmarshalRestartSim(b []byte) (RestartSimPayload, error) {
	if len(b) != 4 {
		return RestartSimPayload{}, fmt.Errorf("protocol: RESTART_SIM payload must be 4 bytes, got %d", len(b))
	}
	return RestartSimPayload{TotalReps: binary.LittleEndian.Uint32(b)}, nil
}

// LoadResultsPayload: C->S, type 18.
type LoadResultsPayload struct {
	Path string
}

func (p LoadResultsPayload) Marshal() []byte {
	buf := make([]byte, PathBufLen)
	putPath(buf, p.Path)
	return buf
}

func UnmarshalLoadResults(b []byte) (LoadResultsPayload, error) {
	if len(b) != PathBufLen {
		return LoadResultsPayload{}, fmt.Errorf("protocol: LOAD_RESULTS payload must be %d bytes, got %d", PathBufLen, len(b))
	}
	return LoadResultsPayload{Path: getPath(b)}, nil
}

// SaveResultsPayload: C->S, type 19.
type SaveResultsPayload struct {
	Path string
}

func (p SaveResultsPayload) Marshal() []byte {
	buf := make([]byte, PathBufLen)
	putPath(buf, p.Path)
	return buf
}

func UnmarshalSaveResults(b []byte) (SaveResultsPayload, error) {
	if len(b) != PathBufLen {
		return SaveResultsPayload{}, fmt.Errorf("protocol: SAVE_RESULTS payload must be %d bytes, got %d", PathBufLen, len(b))
	}
	return SaveResultsPayload{Path: getPath(b)}, nil
}

// QuitPayload: C->S, type 20.
type QuitPayload struct {
	PID         uint32
	StopIfOwner bool
}

const quitSize = 4 + 1

func (p QuitPayload) Marshal() []byte {
	buf := make([]byte, quitSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.PID)
	if p.StopIfOwner {
		buf[4] = 1
	}
	return buf
}

func UnmarshalQuit(b []byte) (QuitPayload, error) {
	if len(b) != quitSize {
		return QuitPayload{}, fmt.Errorf("protocol: QUIT payload must be %d bytes, got %d", quitSize, len(b))
	}
	return QuitPayload{
		PID:         binary.LittleEndian.Uint32(b[0:4]),
		StopIfOwner: b[4] != 0,
	}, nil
}

// AckPayload: S->C, type 21.
type AckPayload struct {
	RequestType MessageType
	Status      uint32
}

func (p AckPayload) Marshal() []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.RequestType))
	binary.LittleEndian.PutUint32(buf[2:6], p.Status)
	return buf
}

func UnmarshalAck(b []byte) (AckPayload, error) {
	if len(b) != 6 {
		return AckPayload{}, fmt.Errorf("protocol: ACK payload must be 6 bytes, got %d", len(b))
	}
	return AckPayload{
		RequestType: MessageType(binary.LittleEndian.Uint16(b[0:2])),
		Status:      binary.LittleEndian.Uint32(b[2:6]),
	}, nil
}

// ErrorMsgBufLen is the fixed size of ERROR's NUL-terminated message field.
const ErrorMsgBufLen = 256

// ErrorPayload: S->C, type 255.
type ErrorPayload struct {
	Code    ErrorCode
	Message string
}

const errorPayloadSize = 4 + ErrorMsgBufLen

func (p ErrorPayload) Marshal() []byte {
	buf := make([]byte, errorPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Code))
	putPath(buf[4:], p.Message)
	return buf
}

func UnmarshalError(b []byte) (ErrorPayload, error) {
	if len(b) != errorPayloadSize {
		return ErrorPayload{}, fmt.Errorf("protocol: ERROR payload must be %d bytes, got %d", errorPayloadSize, len(b))
	}
	return ErrorPayload{
		Code:    ErrorCode(binary.LittleEndian.Uint32(b[0:4])),
		Message: getPath(b[4:]),
	}, nil
}
