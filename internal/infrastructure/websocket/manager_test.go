package websocket

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendToUserDuringUnregister(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	// Hammer register/unregister cycles while other goroutines keep sending
	// to the same user. A send landing after the channel close would panic.
	for i := 0; i < 200; i++ {
		client := NewClient("user-1", nil)
		m.Register <- client

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					m.SendToUser("user-1", []byte("payload"))
				}
			}()
		}

		m.Unregister <- client
		wg.Wait()
		<-client.Done()
	}
}

func TestTrySendAfterCloseDropsPayload(t *testing.T) {
	client := NewClient("user-1", nil)

	assert.True(t, client.trySend([]byte("before")))

	client.closeSend()
	client.closeSend() // closing twice is safe

	assert.False(t, client.trySend([]byte("after")))
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	first := NewClient("user-1", nil)
	m.Register <- first

	second := NewClient("user-1", nil)
	m.Register <- second
	<-first.Done()

	assert.False(t, first.trySend([]byte("stale")))
	assert.True(t, second.trySend([]byte("fresh")))

	m.Unregister <- second
	<-second.Done()
}

func TestSendToRoomExcludesSender(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	buyer := NewClient("buyer-1", nil)
	seller := NewClient("seller-1", nil)
	m.Register <- buyer
	m.Register <- seller
	// A third registration fences the loop: once it is accepted, the two
	// registrations before it have been fully processed.
	m.Register <- NewClient("fence", nil)
	m.JoinRoom("conv-1", "buyer-1")
	m.JoinRoom("conv-1", "seller-1")

	m.SendToRoom("conv-1", []byte("hello"), "buyer-1")

	assert.Len(t, seller.Send, 1)
	assert.Empty(t, buyer.Send)
}
