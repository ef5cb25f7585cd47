package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
)

func TestDecode_DrawingFrame(t *testing.T) {
	frame := `{"type":"drawing","drawingType":"brush","userId":"u1","roomId":"r1","timestamp":5,
		"payload":{"color":"#ff0000","size":3,"coordinates":[{"x":10,"y":10},{"x":20,"y":20}]}}`

	m, err := Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, TypeDrawing, m.Type)

	op, err := m.Operation()
	require.NoError(t, err)
	assert.Equal(t, domain.KindBrush, op.Kind)
	assert.Equal(t, "#ff0000", op.Payload.Color)
	assert.Equal(t, []domain.Point{{X: 10, Y: 10}, {X: 20, Y: 20}}, op.Payload.Coordinates)
}

func TestOperation_RejectsUnknownKind(t *testing.T) {
	m := Message{Type: TypeDrawing, DrawingType: "spray"}
	_, err := m.Operation()
	assert.Error(t, err)
}

func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"message":"hi"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestPresencePayload(t *testing.T) {
	p := domain.Presence{X: 4, Y: 5, Color: "#00ff00", Tool: domain.ToolEraser}
	m := NewPresence("u1", "r1", p)

	raw, err := Encode(m)
	require.NoError(t, err)
	back, err := Decode(raw)
	require.NoError(t, err)

	got, err := back.Presence()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUserCountKeepsZero(t *testing.T) {
	raw, err := Encode(NewUserCount("r1", 0))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"count":0`)
}
