package fusionsolar

import (
	"context"
	"testing"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/pkg/fusionsolar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSource(t *testing.T, portal *fusionsolar.TestPortal) *Source {
	client, err := fusionsolar.NewClient(fusionsolar.Config{
		Username:       portal.Username,
		Password:       portal.Password,
		BaseURL:        portal.URL(),
		RequestTimeout: 2 * time.Second,
	}, zap.Must(zap.NewDevelopment()))
	require.NoError(t, err)
	return NewSource(client, zap.Must(zap.NewDevelopment()))
}

func TestFetchTelemetry(t *testing.T) {

	portal := fusionsolar.NewTestPortal()
	defer portal.Close()

	ctx := context.Background()
	session, err := testSource(t, portal).Login(ctx)
	require.NoError(t, err)

	raw, err := session.FetchTelemetry(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, "NE=1001", portal.LastStationDn())
	assert.Equal(t, domain.Known(4.75), raw.CurrentPowerKw)
	assert.Equal(t, domain.Known(21.4), raw.EnergyTodayKwh)
	assert.Equal(t, domain.Known(10234.5), raw.EnergyTotalKwh)
	assert.Equal(t, "El Sebadal", raw.StationName)
	assert.Equal(t, domain.Known(3.25), raw.StationCurrentPower, "decimal comma")
	assert.Equal(t, domain.Known(1.2), raw.ProductPowerValue)
	assert.Equal(t, "2024-06-21 13:35", raw.ProductPowerTime)
	assert.Equal(t, domain.Known(2.6), raw.TotalUsePower)
	assert.Equal(t, domain.Known(1.9), raw.TotalSelfUsePower)
	assert.Equal(t, domain.Known(0.25), raw.BuyPowerRatio)
	assert.False(t, raw.ChargeDischargePower.Valid)
	assert.False(t, raw.BatterySoc.Valid)

	require.NoError(t, session.Close(ctx))
	assert.Equal(t, 1, portal.Logouts())
}

func TestFetchTelemetryClampsPlantIndex(t *testing.T) {

	portal := fusionsolar.NewTestPortal()
	defer portal.Close()

	ctx := context.Background()
	session, err := testSource(t, portal).Login(ctx)
	require.NoError(t, err)

	raw, err := session.FetchTelemetry(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, "NE=1002", portal.LastStationDn())
	assert.Equal(t, "Nave 2", raw.StationName)
	assert.Equal(t, domain.Known(1.5), raw.StationCurrentPower)
}

func TestFetchTelemetryNoPlants(t *testing.T) {

	portal := fusionsolar.NewTestPortal()
	defer portal.Close()
	portal.Stations = nil

	ctx := context.Background()
	session, err := testSource(t, portal).Login(ctx)
	require.NoError(t, err)

	_, err = session.FetchTelemetry(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrNoPlants)
}

func TestFetchTelemetryExpiredSession(t *testing.T) {

	portal := fusionsolar.NewTestPortal()
	defer portal.Close()

	ctx := context.Background()
	session, err := testSource(t, portal).Login(ctx)
	require.NoError(t, err)

	portal.ExpireSessions()

	_, err = session.FetchTelemetry(ctx, 0)
	assert.ErrorIs(t, err, fusionsolar.ErrSessionExpired)
}

func TestToRawTelemetryScalarProductPower(t *testing.T) {

	raw := toRawTelemetry(nil, fusionsolar.Station{Name: "x", CurrentPower: nil}, map[string]any{
		KEY_PRODUCT_POWER:          "0,7",
		KEY_CHARGE_DISCHARGE_POWER: fusionsolar.LastValue{Value: "-0.4", Time: "13:40"},
		KEY_BATTERY_SOC:            fusionsolar.MISSING_VALUE,
	})

	assert.Equal(t, domain.Known(0.7), raw.ProductPowerValue)
	assert.Equal(t, "", raw.ProductPowerTime)
	assert.Equal(t, domain.Known(-0.4), raw.ChargeDischargePower)
	assert.False(t, raw.BatterySoc.Valid)
	assert.False(t, raw.CurrentPowerKw.Valid)
	assert.False(t, raw.StationCurrentPower.Valid)
}
