package fusionsolar

import (
	"fmt"
)

const (
	// MISSING_VALUE marks a series slot without a measurement.
	MISSING_VALUE = "--"

	xAxisKey = "xAxis"
)

// Numeric values are kept as decoded (json.Number, string or nil): the
// portal mixes all of them and coercion is up to the caller.

type Station struct {
	Dn           string `json:"dn"`
	Name         string `json:"name"`
	CurrentPower any    `json:"currentPower"`
}

type stationListRequest struct {
	CurPage           int     `json:"curPage"`
	PageSize          int     `json:"pageSize"`
	GridConnectedTime string  `json:"gridConnectedTime"`
	QueryTime         int64   `json:"queryTime"`
	TimeZone          float64 `json:"timeZone"`
	SortId            string  `json:"sortId"`
	SortDir           string  `json:"sortDir"`
	Locale            string  `json:"locale"`
}

type stationListData struct {
	List  []Station `json:"list"`
	Total any       `json:"total"`
}

// PowerStatus is the fleet wide kpi, in kW and kWh.
type PowerStatus struct {
	CurrentPower     any `json:"currentPower"`
	DailyEnergy      any `json:"dailyEnergy"`
	CumulativeEnergy any `json:"cumulativeEnergy"`
}

// EnergyBalance is the raw energy-balance document of a station. Keys holding
// a list as long as "xAxis" are time series, the rest are scalars.
type EnergyBalance map[string]any

// LastValue is the latest measured slot of a series.
type LastValue struct {
	Value any
	Time  string
}

// LastPlantData reduces an energy balance to its latest values: every series
// becomes the last slot that is not MISSING_VALUE (with its xAxis label) and
// every scalar is copied as is. Series without a measured slot are omitted.
func LastPlantData(eb EnergyBalance) map[string]any {
	out := make(map[string]any, len(eb))

	xAxis, _ := eb[xAxisKey].([]any)

	for key, v := range eb {
		if key == xAxisKey {
			continue
		}
		series, ok := v.([]any)
		if !ok || len(xAxis) == 0 || len(series) != len(xAxis) {
			out[key] = v
			continue
		}
		if last, ok := lastMeasured(series, xAxis); ok {
			out[key] = last
		}
	}
	return out
}

func lastMeasured(series, xAxis []any) (LastValue, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] == nil {
			continue
		}
		if s, ok := series[i].(string); ok && s == MISSING_VALUE {
			continue
		}
		return LastValue{
			Value: series[i],
			Time:  fmt.Sprint(xAxis[i]),
		}, true
	}
	return LastValue{}, false
}
