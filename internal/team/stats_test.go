package team

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRatePercent(t *testing.T) {
	require.Equal(t, 0, ratePercent(0, 0))
	require.Equal(t, 0, ratePercent(0, 5))
	require.Equal(t, 50, ratePercent(1, 2))
	require.Equal(t, 33, ratePercent(1, 3))
	require.Equal(t, 100, ratePercent(7, 7))
}
