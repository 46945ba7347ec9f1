package domain

import (
	"time"
)

// PowerBalance is the reconciled view of one poll. All power and energy
// values are in kW / kWh, non negative except BatteryKw which keeps the sign
// reported by the inverter.
type PowerBalance struct {
	SolarKw           float64
	LoadKw            float64
	SelfUseKw         float64
	GridImportKw      float64
	GridExportKw      float64
	BatteryKw         float64
	BatterySocPercent float64
	SelfUseRatio      float64
	AutonomyRatio     float64
	EnergyTodayKwh    float64
	EnergyTotalKwh    float64
	Timestamp         time.Time

	// passed through from the raw telemetry for the snapshot
	StationName        string
	FleetPowerKw       float64
	LastProductionKw   float64
	LastProductionTime string
}

// Snapshot is the persisted document. Field names are consumed by existing
// dashboards and must not change.
type Snapshot struct {
	Total     SnapshotTotal   `json:"total"`
	Station   SnapshotStation `json:"sebadal"`
	UpdatedAt string          `json:"actualizado"`
}

type SnapshotTotal struct {
	PowerKw        float64 `json:"potencia"`
	EnergyTodayKwh float64 `json:"energia_hoy"`
	EnergyTotalKwh float64 `json:"energia_total"`
}

type SnapshotStation struct {
	PowerKw            float64 `json:"potencia"`
	LastProductionKw   float64 `json:"ultima_produccion_valor"`
	LastProductionTime string  `json:"ultima_produccion_hora"`
	LoadKw             float64 `json:"uso_total"`
	SelfUseKw          float64 `json:"autoconsumo"`
	GridImportKw       float64 `json:"compra_red"`
	GridExportKw       float64 `json:"exportacion_red"`
	BatteryKw          float64 `json:"bateria_kw"`
	BatterySocPercent  float64 `json:"bateria_soc"`
	SelfUseRatio       float64 `json:"ratio_autoconsumo"`
	AutonomyRatio      float64 `json:"ratio_autonomia"`
}

// SNAPSHOT_TIME_LAYOUT is the local wall clock layout of Snapshot.UpdatedAt.
const SNAPSHOT_TIME_LAYOUT = time.DateTime

func (pb PowerBalance) Snapshot() Snapshot {
	return Snapshot{
		Total: SnapshotTotal{
			PowerKw:        pb.FleetPowerKw,
			EnergyTodayKwh: pb.EnergyTodayKwh,
			EnergyTotalKwh: pb.EnergyTotalKwh,
		},
		Station: SnapshotStation{
			PowerKw:            pb.SolarKw,
			LastProductionKw:   pb.LastProductionKw,
			LastProductionTime: pb.LastProductionTime,
			LoadKw:             pb.LoadKw,
			SelfUseKw:          pb.SelfUseKw,
			GridImportKw:       pb.GridImportKw,
			GridExportKw:       pb.GridExportKw,
			BatteryKw:          pb.BatteryKw,
			BatterySocPercent:  pb.BatterySocPercent,
			SelfUseRatio:       pb.SelfUseRatio,
			AutonomyRatio:      pb.AutonomyRatio,
		},
		UpdatedAt: pb.Timestamp.Format(SNAPSHOT_TIME_LAYOUT),
	}
}

// PollCycleResult is the outcome of one poll cycle, published on the event
// stream whether the cycle succeeded or not.
type PollCycleResult struct {
	CycleId   string
	StartedAt time.Time
	Duration  time.Duration
	Balance   *PowerBalance
	Err       error
}

func (r PollCycleResult) Ok() bool {
	return r.Err == nil && r.Balance != nil
}
