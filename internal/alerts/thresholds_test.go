package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

func TestClassify(t *testing.T) {
	th := Thresholds{Low: 10, Critical: 5}
	cases := []struct {
		quantity  int
		want      enums.StockAlertType
		threshold int
		ok        bool
	}{
		{0, enums.StockAlertOutOfStock, 0, true},
		{1, enums.StockAlertCritical, 5, true},
		{5, enums.StockAlertCritical, 5, true},
		{6, enums.StockAlertLowStock, 10, true},
		{10, enums.StockAlertLowStock, 10, true},
		{11, "", 0, false},
		{500, "", 0, false},
	}
	for _, tc := range cases {
		got, ok := Classify(tc.quantity, th)
		require.Equal(t, tc.ok, ok, "quantity %d", tc.quantity)
		require.Equal(t, tc.want, got.Type, "quantity %d", tc.quantity)
		require.Equal(t, tc.threshold, got.Threshold, "quantity %d", tc.quantity)
	}
}

func TestClassifyWithOverride(t *testing.T) {
	th := Thresholds{Low: 10, Critical: 5}

	got, ok := ClassifyWithOverride(15, 20, th)
	require.True(t, ok)
	require.Equal(t, enums.StockAlertLowStock, got.Type)
	require.Equal(t, 20, got.Threshold)

	got, ok = ClassifyWithOverride(3, 20, th)
	require.True(t, ok)
	require.Equal(t, enums.StockAlertCritical, got.Type)

	// a tighter override also caps the critical band
	got, ok = ClassifyWithOverride(3, 2, th)
	require.False(t, ok)

	got, ok = ClassifyWithOverride(2, 2, th)
	require.True(t, ok)
	require.Equal(t, enums.StockAlertCritical, got.Type)
	require.Equal(t, 2, got.Threshold)
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	require.Equal(t, DefaultThresholds, Resolve(nil, DefaultThresholds))

	cfg := &models.AlertConfig{LowStockThreshold: 3, CriticalThreshold: 1}
	require.Equal(t, Thresholds{Low: 3, Critical: 1}, Resolve(cfg, DefaultThresholds))

	broken := &models.AlertConfig{LowStockThreshold: 1, CriticalThreshold: 4}
	require.Equal(t, DefaultThresholds, Resolve(broken, DefaultThresholds))
}

func TestThresholdsFromConfig(t *testing.T) {
	got := ThresholdsFromConfig(config.AlertsConfig{DefaultLowThreshold: 20, DefaultCriticalThreshold: 2})
	require.Equal(t, Thresholds{Low: 20, Critical: 2}, got)

	got = ThresholdsFromConfig(config.AlertsConfig{DefaultLowThreshold: 1, DefaultCriticalThreshold: 2})
	require.Equal(t, DefaultThresholds, got)
}
