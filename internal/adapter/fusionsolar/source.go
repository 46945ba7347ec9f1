package fusionsolar

import (
	"context"
	"fmt"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
	"github.com/sebadal-solar/fusionsolar2json/pkg/fusionsolar"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// energy-balance keys read into the raw telemetry
const (
	KEY_PRODUCT_POWER          = "productPower"
	KEY_TOTAL_USE_POWER        = "totalUsePower"
	KEY_TOTAL_SELF_USE_POWER   = "totalSelfUsePower"
	KEY_BUY_POWER_RATIO        = "buyPowerRatio"
	KEY_CHARGE_DISCHARGE_POWER = "chargeDischargePower"
	KEY_BATTERY_SOC            = "batterySoc"
)

type Source struct {
	client *fusionsolar.Client
	logger *zap.Logger
}

func NewSource(client *fusionsolar.Client, logger *zap.Logger) *Source {
	return &Source{
		client: client,
		logger: logger,
	}
}

func (s *Source) Login(ctx context.Context) (port.TelemetrySession, error) {
	session, err := s.client.Login(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		session: session,
		logger:  s.logger,
	}, nil
}

type Session struct {
	session *fusionsolar.Session
	logger  *zap.Logger
}

// FetchTelemetry reads the fleet kpi, the station list and the energy balance
// of the station at plantIndex. An out of range index selects the nearest
// station.
func (s *Session) FetchTelemetry(ctx context.Context, plantIndex uint) (*domain.RawTelemetry, error) {
	var stations []fusionsolar.Station
	var kpi *fusionsolar.PowerStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stations, err = s.session.StationList(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		kpi, err = s.session.PowerStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(stations) == 0 {
		return nil, domain.ErrNoPlants
	}

	idx := lo.Clamp(int(plantIndex), 0, len(stations)-1)
	if idx != int(plantIndex) {
		s.logger.Warn("plant index out of range, clamped",
			zap.Uint("plant_index", plantIndex), zap.Int("used", idx), zap.Int("plants", len(stations)))
	}
	station := stations[idx]

	balance, err := s.session.EnergyBalance(ctx, station.Dn)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", station.Dn, err)
	}

	raw := toRawTelemetry(kpi, station, fusionsolar.LastPlantData(balance))
	return &raw, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.session.Logout(ctx)
}

func toRawTelemetry(kpi *fusionsolar.PowerStatus, station fusionsolar.Station, last map[string]any) domain.RawTelemetry {
	raw := domain.RawTelemetry{
		StationName:          station.Name,
		StationCurrentPower:  domain.NewReading(station.CurrentPower),
		TotalUsePower:        domain.NewReading(lastValue(last[KEY_TOTAL_USE_POWER])),
		TotalSelfUsePower:    domain.NewReading(lastValue(last[KEY_TOTAL_SELF_USE_POWER])),
		BuyPowerRatio:        domain.NewReading(lastValue(last[KEY_BUY_POWER_RATIO])),
		ChargeDischargePower: domain.NewReading(lastValue(last[KEY_CHARGE_DISCHARGE_POWER])),
		BatterySoc:           domain.NewReading(lastValue(last[KEY_BATTERY_SOC])),
	}
	if kpi != nil {
		raw.CurrentPowerKw = domain.NewReading(kpi.CurrentPower)
		raw.EnergyTodayKwh = domain.NewReading(kpi.DailyEnergy)
		raw.EnergyTotalKwh = domain.NewReading(kpi.CumulativeEnergy)
	}
	switch pp := last[KEY_PRODUCT_POWER].(type) {
	case fusionsolar.LastValue:
		raw.ProductPowerValue = domain.NewReading(pp.Value)
		raw.ProductPowerTime = pp.Time
	default:
		raw.ProductPowerValue = domain.NewReading(pp)
	}
	return raw
}

// lastValue unwraps series values, scalars are returned as is
func lastValue(v any) any {
	if lv, ok := v.(fusionsolar.LastValue); ok {
		return lv.Value
	}
	return v
}

// ensure interface compliance
var _ port.TelemetrySource = (*Source)(nil)
var _ port.TelemetrySession = (*Session)(nil)
