package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAvailability(t *testing.T) {
	cases := []struct {
		quantity, reserved, want int
	}{
		{10, 0, 10},
		{10, 7, 3},
		{10, 10, 0},
		// quantity corrected below what is already held
		{4, 7, 0},
	}
	for _, tc := range cases {
		got := NewAvailability(tc.quantity, tc.reserved)
		require.Equal(t, tc.want, got.Available)
		require.Equal(t, tc.reserved, got.Reserved)
		require.Equal(t, tc.quantity, got.Quantity)
	}
}

func TestCanReserve(t *testing.T) {
	a := NewAvailability(10, 7)
	require.True(t, a.CanReserve(3))
	require.False(t, a.CanReserve(4))
	require.False(t, a.CanReserve(0))
	require.False(t, a.CanReserve(-1))
}
