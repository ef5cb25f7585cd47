package client

import "retro-paint/internal/domain"

// Reconcile decides which canvas to show after a (re)connect.
// The server snapshot wins when there is no local one or when it is strictly
// newer; otherwise the local snapshot is kept. The second result reports
// whether the server snapshot was adopted.
func Reconcile(local *domain.CanvasSnapshot, server domain.CanvasSnapshot) (domain.CanvasSnapshot, bool) {
	if local == nil || server.LastUpdated > local.LastUpdated {
		return *server.Clone(), true
	}
	return *local.Clone(), false
}
