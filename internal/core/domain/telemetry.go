package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/spf13/cast"
)

var (
	// ErrNoPlants is returned by a telemetry source when the account has no
	// station to reconcile. It fails the cycle but keeps the session.
	ErrNoPlants = errors.New("no plants found")
)

// Reading is a numeric telemetry field as reported by the remote API. A
// reading is Valid only when the reported value could be coerced to a finite
// number.
type Reading struct {
	Value float64
	Valid bool
}

// NewReading coerces an arbitrary reported value. nil, booleans, empty or
// unparsable strings and non finite numbers yield an invalid reading.
// Strings are trimmed and a decimal comma is accepted.
func NewReading(v any) Reading {
	switch t := v.(type) {
	case nil, bool:
		return Reading{}
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		if s == "" {
			return Reading{}
		}
		v = s
	case json.Number:
		v = t.String()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Reading{}
	}
	return Reading{Value: f, Valid: true}
}

// Known returns a valid reading holding f.
func Known(f float64) Reading {
	return NewReading(f)
}

// Or returns the reading value, or def if the reading is not valid.
func (r Reading) Or(def float64) float64 {
	if r.Valid {
		return r.Value
	}
	return def
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		// anything that is not JSON at all is still just a missing value
		*r = Reading{}
		return nil
	}
	*r = NewReading(raw)
	return nil
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Coerce applies the reading coercion rule to v and falls back to def.
func Coerce(v any, def float64) float64 {
	return NewReading(v).Or(def)
}

// RawTelemetry is one poll worth of partially populated telemetry. Every
// numeric field goes through NewReading once, when the record is built.
type RawTelemetry struct {
	// fleet wide totals
	CurrentPowerKw Reading `json:"currentPowerKw"`
	EnergyTodayKwh Reading `json:"energyTodayKwh"`
	EnergyTotalKwh Reading `json:"energyTotalKwh"`

	// selected station
	StationName         string  `json:"stationName,omitempty"`
	StationCurrentPower Reading `json:"stationCurrentPower"`
	ProductPowerValue   Reading `json:"productPowerValue"`
	ProductPowerTime    string  `json:"productPowerTime"`
	TotalUsePower       Reading `json:"totalUsePower"`
	TotalSelfUsePower   Reading `json:"totalSelfUsePower"`
	BuyPowerRatio       Reading `json:"buyPowerRatio"`

	// battery, absent when no battery is installed
	ChargeDischargePower Reading `json:"chargeDischargePower"`
	BatterySoc           Reading `json:"batterySoc"`
}
