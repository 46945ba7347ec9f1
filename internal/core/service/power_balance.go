package service

import (
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
)

const (
	// buyPowerRatio values up to this bound are a fraction of the load,
	// above it they are an absolute kW figure. The slack over 1.0 absorbs
	// measurement overshoot of a true ratio.
	BUY_POWER_RATIO_CEILING = 1.2

	POWER_DECIMALS = 3
	RATIO_DECIMALS = 4
	SOC_DECIMALS   = 1
)

type DefaultPowerBalanceReconciler struct {
	BuyPowerRatioCeiling float64
}

func NewPowerBalanceReconciler() *DefaultPowerBalanceReconciler {
	return &DefaultPowerBalanceReconciler{
		BuyPowerRatioCeiling: BUY_POWER_RATIO_CEILING,
	}
}

// Reconcile derives a complete power balance from partial telemetry. It never
// fails: missing or malformed fields count as zero and every output is kept
// inside its documented range.
func (r *DefaultPowerBalanceReconciler) Reconcile(raw domain.RawTelemetry, at time.Time) domain.PowerBalance {
	fleetKw := raw.CurrentPowerKw.Or(0)

	// per station power intermittently reads 0 while the fleet figure is fine
	solarKw := raw.StationCurrentPower.Or(0)
	if solarKw <= 0 {
		solarKw = fleetKw
	}

	loadKw := raw.TotalUsePower.Or(0)

	selfUseKw := raw.TotalSelfUsePower.Or(0)
	if selfUseKw <= 0 && loadKw > 0 && solarKw > 0 {
		selfUseKw = math.Min(loadKw, solarKw)
	}

	gridImportKw := r.gridImport(raw.BuyPowerRatio.Or(0), loadKw)

	// export is decided on the reported load, before the residual fallback
	gridExportKw := 0.0
	if solarKw > 0 && loadKw >= 0 {
		gridExportKw = math.Max(0, solarKw-selfUseKw)
	}

	// load not covered by solar comes from the grid
	if loadKw > 0 && gridImportKw <= 0 {
		gridImportKw = math.Max(0, loadKw-selfUseKw)
	}

	if loadKw <= 0 {
		loadKw = math.Max(0, selfUseKw+gridImportKw)
	}

	return domain.PowerBalance{
		SolarKw:           power(solarKw),
		LoadKw:            power(loadKw),
		SelfUseKw:         power(selfUseKw),
		GridImportKw:      power(gridImportKw),
		GridExportKw:      power(gridExportKw),
		BatteryKw:         round(raw.ChargeDischargePower.Or(0), POWER_DECIMALS),
		BatterySocPercent: round(lo.Clamp(raw.BatterySoc.Or(0), 0, 100), SOC_DECIMALS),
		SelfUseRatio:      ratio(selfUseKw, solarKw),
		AutonomyRatio:     ratio(selfUseKw, loadKw),
		EnergyTodayKwh:    power(raw.EnergyTodayKwh.Or(0)),
		EnergyTotalKwh:    power(raw.EnergyTotalKwh.Or(0)),
		Timestamp:         at,

		StationName:        raw.StationName,
		FleetPowerKw:       power(fleetKw),
		LastProductionKw:   power(raw.ProductPowerValue.Or(0)),
		LastProductionTime: raw.ProductPowerTime,
	}
}

func (r *DefaultPowerBalanceReconciler) gridImport(buyPowerRatio, loadKw float64) float64 {
	ceiling := r.BuyPowerRatioCeiling
	if ceiling <= 0 {
		ceiling = BUY_POWER_RATIO_CEILING
	}
	if buyPowerRatio > 0 && buyPowerRatio <= ceiling {
		return loadKw * lo.Clamp(buyPowerRatio, 0, 1)
	}
	return math.Max(0, buyPowerRatio)
}

func power(v float64) float64 {
	return round(math.Max(0, v), POWER_DECIMALS)
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return round(lo.Clamp(num/den, 0, 1), RATIO_DECIMALS)
}

func round(v float64, decimals int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		// only reachable by overflowing sums of huge readings
		return 0
	}
	p := math.Pow10(decimals)
	if math.IsInf(v*p, 0) {
		// far beyond the precision of the decimals anyway
		return v
	}
	r := math.Round(v*p) / p
	if r == 0 {
		// avoid serializing -0
		return 0
	}
	return r
}

// ensure interface compliance
var _ port.PowerBalanceReconciler = (*DefaultPowerBalanceReconciler)(nil)
