package service

import (
	"errors"

	"retro-paint/internal/repository"
)

var (
	ErrInvalidRoom      = errors.New("invalid room parameters")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomAuth         = errors.New("room password or ticket rejected")
	ErrInvalidOperation = errors.New("invalid drawing operation")
	ErrInvalidSnapshot  = errors.New("invalid canvas snapshot")
	ErrStoreClosed      = errors.New("canvas store closed")
	ErrInternalServer   = errors.New("internal server error")
)

// mapRepoError 将仓库层错误映射为服务层错误，未识别的错误统一视为内部错误。
func mapRepoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	default:
		return ErrInternalServer
	}
}
