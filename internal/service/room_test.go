package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
	"retro-paint/internal/repository/mocks"
	"retro-paint/internal/service"
)

func newRoomService(t *testing.T) (*service.RoomService, *mocks.RoomRepository) {
	t.Helper()
	repo := new(mocks.RoomRepository)
	tickets, err := service.NewTicketService("test-secret", time.Minute)
	require.NoError(t, err)
	return service.NewRoomService(repo, tickets), repo
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	cases := []struct {
		name      string
		roomName  string
		maxUsers  int
		isPrivate bool
		password  string
	}{
		{"blank name", "   ", 4, false, ""},
		{"too few users", "demo", 1, false, ""},
		{"too many users", "demo", 51, false, ""},
		{"private without password", "demo", 4, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newRoomService(t)

			room, err := svc.CreateRoom(context.Background(), tc.roomName, tc.maxUsers, tc.isPrivate, tc.password)

			assert.ErrorIs(t, err, service.ErrInvalidRoom)
			assert.Nil(t, room)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestRoomService_CreateRoom_PrivateHashesPassword(t *testing.T) {
	// Arrange
	svc, repo := newRoomService(t)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool {
		return r.Name == "demo" && r.MaxUsers == 2 && r.IsPrivate &&
			bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte("s3cret")) == nil
	})).Return(nil).Once()

	// Act
	room, err := svc.CreateRoom(context.Background(), " demo ", 2, true, "s3cret")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.NotEqual(t, "s3cret", room.PasswordHash)
	assert.False(t, room.CreatedAt.IsZero())
	repo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_PublicIgnoresPassword(t *testing.T) {
	svc, repo := newRoomService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Room")).Return(nil).Once()

	room, err := svc.CreateRoom(context.Background(), "open", 10, false, "ignored")

	require.NoError(t, err)
	assert.Empty(t, room.PasswordHash, "公开房间不保存密码")
	repo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RepositoryFailure(t *testing.T) {
	svc, repo := newRoomService(t)
	repo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	_, err := svc.CreateRoom(context.Background(), "demo", 2, false, "")

	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestRoomService_GetRoomInfo_NotFound(t *testing.T) {
	svc, repo := newRoomService(t)
	repo.On("FindByID", mock.Anything, "missing").Return(nil, repository.ErrRoomNotFound).Once()

	_, err := svc.GetRoomInfo(context.Background(), "missing")

	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func privateRoom(t *testing.T, id, password string) *domain.Room {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.Room{ID: id, Name: "secret", MaxUsers: 4, IsPrivate: true, PasswordHash: string(hash)}
}

func TestRoomService_Admit(t *testing.T) {
	ctx := context.Background()
	svc, repo := newRoomService(t)
	repo.On("FindByID", mock.Anything, "priv").Return(privateRoom(t, "priv", "pw"), nil)
	repo.On("FindByID", mock.Anything, domain.DefaultRoomID).
		Return(&domain.Room{ID: domain.DefaultRoomID, MaxUsers: 50}, nil)

	t.Run("empty id resolves to default room", func(t *testing.T) {
		room, err := svc.Admit(ctx, "", service.Credentials{})
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultRoomID, room.ID)
	})

	t.Run("correct password", func(t *testing.T) {
		_, err := svc.Admit(ctx, "priv", service.Credentials{Password: "pw"})
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Admit(ctx, "priv", service.Credentials{Password: "nope"})
		assert.ErrorIs(t, err, service.ErrRoomAuth)
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := svc.Admit(ctx, "priv", service.Credentials{})
		assert.ErrorIs(t, err, service.ErrRoomAuth)
	})

	t.Run("ticket issued for the room", func(t *testing.T) {
		ticket, exp, err := svc.IssueTicket(ctx, "priv", "pw")
		require.NoError(t, err)
		assert.True(t, exp.After(time.Now()))

		_, err = svc.Admit(ctx, "priv", service.Credentials{Ticket: ticket})
		assert.NoError(t, err)
	})

	t.Run("ticket refused with wrong password", func(t *testing.T) {
		_, _, err := svc.IssueTicket(ctx, "priv", "nope")
		assert.ErrorIs(t, err, service.ErrRoomAuth)
	})
}

func TestRoomService_DeleteRoom_DefaultRoomProtected(t *testing.T) {
	svc, repo := newRoomService(t)

	err := svc.DeleteRoom(context.Background(), domain.DefaultRoomID)

	assert.ErrorIs(t, err, service.ErrInvalidRoom)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRoomService_EnsureDefaultRoom(t *testing.T) {
	svc, repo := newRoomService(t)
	repo.On("FindByID", mock.Anything, domain.DefaultRoomID).Return(nil, repository.ErrRoomNotFound).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool {
		return r.ID == domain.DefaultRoomID && !r.IsPrivate && r.MaxUsers == domain.MaxRoomUsers
	})).Return(nil).Once()

	require.NoError(t, svc.EnsureDefaultRoom(context.Background()))
	repo.AssertExpectations(t)
}
