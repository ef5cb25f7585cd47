package websocket

import (
	"errors"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"retro-paint/internal/dto"
	"retro-paint/internal/service"
)

func TestResolveIdentity(t *testing.T) {
	id, name := resolveIdentity("user-1700000000000-abcdefg", "Pixel")
	assert.Equal(t, "user-1700000000000-abcdefg", id)
	assert.Equal(t, "Pixel", name)

	id, name = resolveIdentity("user-1700000000000-abcdefg", "")
	assert.Equal(t, "user-1700000000000-abcdefg", id)
	assert.Equal(t, "User17000000", name)

	id, name = resolveIdentity("", "")
	assert.True(t, strings.HasPrefix(id, "user-"))
	assert.Len(t, name, len("User")+8)
	assert.False(t, strings.HasPrefix(name, "Useruser"))
	assert.Equal(t, "User"+strings.TrimPrefix(id, "user-")[:8], name)

	_, name = resolveIdentity("abc", "")
	assert.Equal(t, "Userabc", name)
}

func TestRejection(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		closeCode int
	}{
		{service.ErrRoomFull, dto.CodeRoomFull, CloseRoomFull},
		{service.ErrRoomAuth, dto.CodeUnauthorized, CloseUnauthorized},
		{service.ErrRoomNotFound, dto.CodeRoomNotFound, CloseRoomNotFound},
		{errors.New("boom"), dto.CodeInternal, websocket.CloseInternalServerErr},
	}
	for _, tt := range tests {
		code, closeCode := rejection(tt.err)
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.closeCode, closeCode)
	}
}
