package client

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"retro-paint/internal/domain"
)

func snap(ts int64, data string) domain.CanvasSnapshot {
	return domain.CanvasSnapshot{ImageData: data, History: []string{data}, LastUpdated: ts}
}

func TestReconcile_NoLocalAdoptsServer(t *testing.T) {
	got, adopted := Reconcile(nil, snap(5, "server"))
	assert.True(t, adopted)
	assert.Equal(t, "server", got.ImageData)
}

func TestReconcile_TieKeepsLocal(t *testing.T) {
	local := snap(7, "local")
	got, adopted := Reconcile(&local, snap(7, "server"))
	assert.False(t, adopted)
	assert.Equal(t, "local", got.ImageData)
}

func TestReconcile_NeverRegresses(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		l, s := rnd.Int63n(1000), rnd.Int63n(1000)
		local := snap(l, "local")
		got, adopted := Reconcile(&local, snap(s, "server"))

		assert.Equal(t, max(l, s), got.LastUpdated)
		assert.Equal(t, s > l, adopted)
	}
}

func TestReconcile_ResultDoesNotAliasInput(t *testing.T) {
	server := snap(9, "a")
	got, _ := Reconcile(nil, server)
	got.History[0] = "mutated"
	assert.Equal(t, "a", server.History[0])
}
