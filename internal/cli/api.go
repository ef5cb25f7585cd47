package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"retro-paint/internal/dto"
)

// APIError is a non-2xx answer from the room API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// RoomsAPI talks to the /api/rooms endpoints.
type RoomsAPI struct {
	base string
	http *http.Client
}

func NewRoomsAPI(base string, hc *http.Client) *RoomsAPI {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &RoomsAPI{base: strings.TrimRight(base, "/"), http: hc}
}

func (a *RoomsAPI) List(ctx context.Context) ([]dto.RoomView, error) {
	var rooms []dto.RoomView
	if err := a.do(ctx, http.MethodGet, "/api/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (a *RoomsAPI) Create(ctx context.Context, req dto.CreateRoomRequest) (*dto.RoomView, error) {
	var room dto.RoomView
	if err := a.do(ctx, http.MethodPost, "/api/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (a *RoomsAPI) Get(ctx context.Context, roomID string) (*dto.RoomView, error) {
	var room dto.RoomView
	if err := a.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Ticket exchanges a room password for a short-lived room ticket.
func (a *RoomsAPI) Ticket(ctx context.Context, roomID, password string) (*dto.TicketResponse, error) {
	var t dto.TicketResponse
	path := "/api/rooms/" + url.PathEscape(roomID) + "/ticket"
	if err := a.do(ctx, http.MethodPost, path, dto.TicketRequest{Password: password}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// WebSocketURL derives the ws:// endpoint from the API base URL.
func (a *RoomsAPI) WebSocketURL() (string, error) {
	u, err := url.Parse(a.base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (a *RoomsAPI) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
