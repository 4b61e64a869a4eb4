package realtime_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/realtime-backend/client/realtime"
	"github.com/vendora/realtime-backend/contract"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := realtime.NewBus(testLogger())

	var order []string
	bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {
		order = append(order, "first")
	})
	bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {
		order = append(order, "second")
	})

	bus.Publish(contract.Frame{Event: contract.EventMessageNew})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	bus := realtime.NewBus(testLogger())

	messages := 0
	orders := 0
	bus.Subscribe(contract.EventMessageNew, func(contract.Frame) { messages++ })
	bus.Subscribe(contract.EventOrderUpdate, func(contract.Frame) { orders++ })

	bus.Publish(contract.Frame{Event: contract.EventMessageNew})
	bus.Publish(contract.Frame{Event: contract.EventMessageNew})
	bus.Publish(contract.Frame{Event: contract.EventOrderUpdate})

	assert.Equal(t, 2, messages)
	assert.Equal(t, 1, orders)
}

func TestBus_Unsubscribe(t *testing.T) {
	t.Run("no delivery after unsubscribe returns", func(t *testing.T) {
		bus := realtime.NewBus(testLogger())

		calls := 0
		unsubscribe := bus.Subscribe(contract.EventMessageNew, func(contract.Frame) { calls++ })

		bus.Publish(contract.Frame{Event: contract.EventMessageNew})
		unsubscribe()
		bus.Publish(contract.Frame{Event: contract.EventMessageNew})

		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, bus.SubscriberCount(contract.EventMessageNew))
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		bus := realtime.NewBus(testLogger())

		first := bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {})
		second := bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {})

		first()
		first()

		assert.Equal(t, 1, bus.SubscriberCount(contract.EventMessageNew))
		second()
		assert.Equal(t, 0, bus.SubscriberCount(contract.EventMessageNew))
	})

	t.Run("handler unsubscribing a peer stops its delivery mid-publish", func(t *testing.T) {
		bus := realtime.NewBus(testLogger())

		var unsubscribeSecond func()
		secondCalls := 0
		bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {
			unsubscribeSecond()
		})
		unsubscribeSecond = bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {
			secondCalls++
		})

		bus.Publish(contract.Frame{Event: contract.EventMessageNew})

		assert.Equal(t, 0, secondCalls, "peer was delivered after its unsubscribe returned")
		assert.Equal(t, 1, bus.SubscriberCount(contract.EventMessageNew))
	})

	t.Run("unsubscribe during delivery does not panic", func(t *testing.T) {
		bus := realtime.NewBus(testLogger())

		var unsubscribe func()
		delivered := 0
		unsubscribe = bus.Subscribe(contract.EventMessageNew, func(contract.Frame) {
			delivered++
			unsubscribe()
		})

		require.NotPanics(t, func() {
			bus.Publish(contract.Frame{Event: contract.EventMessageNew})
			bus.Publish(contract.Frame{Event: contract.EventMessageNew})
		})
		assert.Equal(t, 1, delivered)
	})
}

func TestBus_PublishWithoutSubscribersIsSilent(t *testing.T) {
	bus := realtime.NewBus(testLogger())

	require.NotPanics(t, func() {
		bus.Publish(contract.Frame{Event: contract.EventBusinessUpdate})
	})
}
