package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/realtime-backend/client/realtime"
	"github.com/vendora/realtime-backend/contract"
)

func TestPresenceRegistry_Apply(t *testing.T) {
	t.Run("last update wins", func(t *testing.T) {
		reg := realtime.NewPresenceRegistry()

		reg.Apply("U1", contract.StatusOnline)
		reg.Apply("U1", contract.StatusAway)

		assert.Equal(t, contract.StatusAway, reg.Get("U1"))
	})

	t.Run("never observed user is offline", func(t *testing.T) {
		reg := realtime.NewPresenceRegistry()

		reg.Apply("U1", contract.StatusAway)

		assert.Equal(t, contract.StatusAway, reg.Get("U1"))
		assert.Equal(t, contract.StatusOffline, reg.Get("U2"))
	})

	t.Run("record carries update time", func(t *testing.T) {
		reg := realtime.NewPresenceRegistry()

		reg.Apply("U1", contract.StatusOnline)

		rec, ok := reg.Record("U1")
		require.True(t, ok)
		assert.Equal(t, "U1", rec.UserID)
		assert.Equal(t, contract.StatusOnline, rec.Status)
		assert.False(t, rec.UpdatedAt.IsZero())

		_, ok = reg.Record("U2")
		assert.False(t, ok)
	})
}

func TestPresenceRegistry_Clear(t *testing.T) {
	reg := realtime.NewPresenceRegistry()

	reg.Apply("U1", contract.StatusOnline)
	reg.Apply("U2", contract.StatusAway)
	require.Equal(t, 2, reg.Len())

	reg.Clear()

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, contract.StatusOffline, reg.Get("U1"))
	assert.Equal(t, contract.StatusOffline, reg.Get("U2"))
}
