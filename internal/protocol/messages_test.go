package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPayload_RoundTrip(t *testing.T) {
	p := JoinPayload{PID: 4242}
	got, err := UnmarshalJoin(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUnmarshalJoin_WrongSize(t *testing.T) {
	_, err := UnmarshalJoin([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestWelcomePayload_RoundTrip(t *testing.T) {
	p := WelcomePayload{
		WorldKind:  WireObstacles,
		Width:      64,
		Height:     48,
		Probs:      MoveProbsWire{Up: 0.1, Down: 0.2, Left: 0.3, Right: 0.4},
		K:          100000,
		TotalReps:  500,
		CurrentRep: 12,
		Mode:       ModeSummary,
		OriginX:    0,
		OriginY:    0,
	}
	got, err := UnmarshalWelcome(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestCreateSimPayload_RoundTrip(t *testing.T) {
	p := CreateSimPayload{
		Kind:      WireWrap,
		Width:     16,
		Height:    16,
		Probs:     MoveProbsWire{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25},
		K:         5000,
		TotalReps: 10,
		MultiUser: true,
	}
	got, err := UnmarshalCreateSim(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStatusPayload_RoundTrip(t *testing.T) {
	p := StatusPayload{
		State:      WireRunning,
		WorldKind:  WireObstacles,
		Width:      10,
		Height:     10,
		CurrentRep: 3,
		TotalReps:  20,
		MultiUser:  true,
		HasOwner:   false,
	}
	got, err := UnmarshalStatus(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestLoadWorldPayload_RoundTripWithPathTruncationSafe(t *testing.T) {
	p := LoadWorldPayload{Path: "worlds/save-001.bin", MultiUser: true}
	got, err := UnmarshalLoadWorld(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p.Path, got.Path)
	assert.True(t, got.MultiUser)
}

func TestSnapshotChunkPayload_RoundTrip(t *testing.T) {
	p := SnapshotChunkPayload{
		ID:          77,
		Field:       FieldTrialsID,
		OffsetBytes: 256,
		Data:        []byte{1, 2, 3, 4, 5},
	}
	got, err := UnmarshalSnapshotChunk(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSnapshotChunkPayload_DataLenMismatchErrors(t *testing.T) {
	p := SnapshotChunkPayload{ID: 1, Field: FieldObstaclesID, Data: []byte{1, 2, 3}}
	buf := p.Marshal()
	// corrupt the declared data_len field without resizing the buffer
	buf[16] = 99
	_, err := UnmarshalSnapshotChunk(buf)
	assert.Error(t, err)
}

func TestQuitPayload_RoundTrip(t *testing.T) {
	p := QuitPayload{PID: 9, StopIfOwner: true}
	got, err := UnmarshalQuit(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestErrorPayload_RoundTrip(t *testing.T) {
	p := ErrorPayload{Code: ErrPermissionDenied, Message: "only the owner may do that"}
	got, err := UnmarshalError(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, p.Code, got.Code)
	assert.Equal(t, p.Message, got.Message)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "CREATE_SIM", MsgCreateSim.String())
	assert.Equal(t, "ERROR", MsgError.String())
	assert.Contains(t, MessageType(1000).String(), "UNKNOWN")
}
