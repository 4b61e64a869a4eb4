package realtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/realtime-backend/client/realtime"
	"github.com/vendora/realtime-backend/contract"
)

func newTestClient(transport realtime.Transport) (*realtime.Client, chan realtime.ConnStatus) {
	c := realtime.NewWithTransport(realtime.Config{
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
	}, transport, testLogger())
	statuses := make(chan realtime.ConnStatus, 32)
	c.OnStatusChange(func(s realtime.ConnStatus) { statuses <- s })
	return c, statuses
}

func TestSessionBinder_DuplicateAuthObservationsYieldOneConnection(t *testing.T) {
	transport := newFakeTransport()
	c, statuses := newTestClient(transport)
	defer c.Close()

	// Two rapid re-renders of the same authenticated state.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SetAuth("U1", "token")
		}()
	}
	wg.Wait()

	waitStatus(t, statuses, realtime.StatusConnected)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, transport.dialCount())
	assert.Equal(t, 1, transport.liveConns())
}

func TestSessionBinder_NoStateLeaksAcrossSessions(t *testing.T) {
	transport := newFakeTransport()
	c, statuses := newTestClient(transport)
	defer c.Close()

	c.SetAuth("U1", "token-1")
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	conn.deliver(t, contract.EventPresenceUpdated, contract.PresencePayload{UserID: "U2", Status: contract.StatusAway})
	conn.deliver(t, contract.EventTypingStart, contract.TypingPayload{UserID: "U3", ConversationID: "C1"})

	require.Eventually(t, func() bool {
		return c.GetPresence("U2") == contract.StatusAway && len(c.GetTypingUsers("C1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Logout clears synchronously, before ClearAuth returns.
	c.ClearAuth()
	assert.Equal(t, contract.StatusOffline, c.GetPresence("U2"))
	assert.Empty(t, c.GetTypingUsers("C1"))

	// A new session, even for a different identity, starts from scratch.
	c.SetAuth("U9", "token-2")
	waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	assert.Equal(t, contract.StatusOffline, c.GetPresence("U2"))
	assert.Empty(t, c.GetTypingUsers("C1"))
}

func TestSessionBinder_LogoutRacingDeliveryLeavesRegistriesEmpty(t *testing.T) {
	transport := newFakeTransport()
	c, statuses := newTestClient(transport)
	defer c.Close()

	c.SetAuth("U1", "token")
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	frame, err := contract.NewFrame(contract.EventPresenceUpdated,
		contract.PresencePayload{UserID: "U2", Status: contract.StatusOnline})
	require.NoError(t, err)

	// Flood presence updates so a frame is likely mid-dispatch when
	// ClearAuth runs.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case conn.reads <- readResult{frame: frame}:
			}
		}
	}()
	time.Sleep(5 * time.Millisecond)

	c.ClearAuth()
	close(stop)

	// Teardown waits out in-flight delivery before clearing, so no
	// update can land in the registry after ClearAuth returns.
	assert.Equal(t, contract.StatusOffline, c.GetPresence("U2"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, contract.StatusOffline, c.GetPresence("U2"))
}

func TestSessionBinder_IdentitySwitchReplacesSession(t *testing.T) {
	transport := newFakeTransport()
	c, statuses := newTestClient(transport)
	defer c.Close()

	c.SetAuth("U1", "token-1")
	first := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	c.SetAuth("U2", "token-2")
	waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	assert.True(t, first.closed())
	assert.Equal(t, 1, transport.liveConns())
	assert.Equal(t, 2, transport.dialCount())
}

func TestSessionBinder_CloseDisconnectsUnconditionally(t *testing.T) {
	transport := newFakeTransport()
	c, statuses := newTestClient(transport)

	c.SetAuth("U1", "token")
	waitStatus(t, statuses, realtime.StatusConnected)

	// Auth-driven disconnect first, then unmount teardown.
	c.ClearAuth()
	require.NotPanics(t, func() { c.Close() })

	assert.Equal(t, realtime.StatusClosed, c.ConnectionStatus())
	assert.Equal(t, 0, transport.liveConns())

	// A binder that is closed ignores late auth observations.
	c.SetAuth("U1", "token")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, transport.dialCount())
}
