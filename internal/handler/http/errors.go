package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/service"
)

// StatusForError 把服务层错误映射为 HTTP 状态码
func StatusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRoom),
		errors.Is(err, service.ErrInvalidOperation),
		errors.Is(err, service.ErrInvalidSnapshot):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRoomAuth):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRoomFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func HandleServiceError(c *gin.Context, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, status, "An unexpected error occurred")
		return
	}
	ErrorResponse(c, status, err.Error())
}
