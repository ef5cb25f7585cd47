package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/service"
)

func TestTicketService(t *testing.T) {
	_, err := service.NewTicketService("", time.Minute)
	require.Error(t, err, "空密钥应被拒绝")

	tickets, err := service.NewTicketService("k1", time.Minute)
	require.NoError(t, err)

	ticket, exp, err := tickets.Sign("room-a")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	assert.NoError(t, tickets.Verify(ticket, "room-a"))
	assert.ErrorIs(t, tickets.Verify(ticket, "room-b"), service.ErrRoomAuth, "票据不能跨房间使用")
	assert.ErrorIs(t, tickets.Verify("garbage", "room-a"), service.ErrRoomAuth)

	other, err := service.NewTicketService("k2", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(ticket, "room-a"), service.ErrRoomAuth, "不同密钥签发的票据无效")
}

func TestTicketService_Expired(t *testing.T) {
	tickets, err := service.NewTicketService("k1", time.Millisecond)
	require.NoError(t, err)
	ticket, _, err := tickets.Sign("room-a")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond) // exp 精度为秒
	assert.ErrorIs(t, tickets.Verify(ticket, "room-a"), service.ErrRoomAuth)
}
