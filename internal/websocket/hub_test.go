// internal/websocket/hub_test.go
package websocket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"billing-service/internal/domain/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatchToBackloggedClientKeepsHubRunning(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// No WritePump drains this client, so its send buffer fills up.
	stuck := NewClient(hub, nil, 1, zap.NewNop())
	hub.Register <- stuck
	require.Eventually(t, func() bool {
		return hub.ConnectedClients(1) == 1
	}, time.Second, 5*time.Millisecond)

	for i := 0; i <= cap(stuck.send); i++ {
		hub.Dispatch(billing.Event{ID: fmt.Sprintf("ev-%d", i), AccountID: 1})
	}

	// The overflow must cut the client loose, not stall the run loop;
	// registrations have to keep going through.
	registered := make(chan struct{})
	go func() {
		hub.Register <- NewClient(hub, nil, 2, zap.NewNop())
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("hub run loop stopped accepting registrations")
	}

	assert.Eventually(t, func() bool {
		select {
		case <-stuck.ctx.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "backlogged client should be canceled")
}

func TestDispatchRoutesByAccount(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	mine := NewClient(hub, nil, 1, zap.NewNop())
	other := NewClient(hub, nil, 2, zap.NewNop())
	hub.Register <- mine
	hub.Register <- other
	require.Eventually(t, func() bool {
		return hub.ConnectedClients(1) == 1 && hub.ConnectedClients(2) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Dispatch(billing.Event{ID: "ev-1", AccountID: 1})

	select {
	case <-mine.send:
	case <-time.After(time.Second):
		t.Fatal("event never reached the owning account's client")
	}

	select {
	case <-other.send:
		t.Fatal("event leaked to another account's client")
	case <-time.After(50 * time.Millisecond):
	}
}
