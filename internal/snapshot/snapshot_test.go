package snapshot

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBalance() domain.PowerBalance {
	return domain.PowerBalance{
		SolarKw:            3.25,
		LoadKw:             2.6,
		SelfUseKw:          1.9,
		GridImportKw:       0.65,
		GridExportKw:       1.35,
		BatteryKw:          -0.4,
		BatterySocPercent:  80.5,
		SelfUseRatio:       0.5846,
		AutonomyRatio:      0.7308,
		EnergyTodayKwh:     21.4,
		EnergyTotalKwh:     10234.5,
		Timestamp:          time.Date(2024, 6, 21, 13, 45, 10, 0, time.Local),
		StationName:        "El Sebadal",
		FleetPowerKw:       4.75,
		LastProductionKw:   1.2,
		LastProductionTime: "2024-06-21 13:35 <último>",
	}
}

func TestEncode(t *testing.T) {

	data, err := Encode(testBalance().Snapshot())
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n    \"total\": {\n        \"potencia\": 4.75,"), text)
	assert.Contains(t, text, `"ultima_produccion_hora": "2024-06-21 13:35 <último>"`, "no HTML or unicode escaping")

	var back domain.Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, testBalance().Snapshot(), back)
}

func TestWriteJSON(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "datos.json")

	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))
	require.NoError(t, WriteJSON(path, testBalance().Snapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	expected, err := Encode(testBalance().Snapshot())
	require.NoError(t, err)
	assert.Equal(t, expected, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteJSONMissingDirectory(t *testing.T) {

	path := filepath.Join(t.TempDir(), "missing", "datos.json")

	err := WriteJSON(path, testBalance().Snapshot())
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDashboard(t *testing.T) {

	var buf bytes.Buffer
	require.NoError(t, NewDashboard(testBalance(), 60).Render(&buf))

	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)

	assert.Equal(t, "Monitor Solar en Tiempo Real", doc.Find("title").Text())
	refresh, ok := doc.Find(`meta[http-equiv="refresh"]`).Attr("content")
	assert.True(t, ok)
	assert.Equal(t, "60", refresh)

	assert.Contains(t, doc.Find("#lastUpdate").Text(), "2024-06-21 13:45:10")

	fleet := doc.Find("#fleet")
	assert.Contains(t, fleet.Find("h2").Text(), "Todas las plantas")
	assert.Equal(t, "4.750", fleet.Find(`[data-field="potencia"]`).Text())
	assert.Equal(t, "21.400", fleet.Find(`[data-field="energia_hoy"]`).Text())

	station := doc.Find("#station")
	assert.Contains(t, station.Find("h2").Text(), "El Sebadal")
	assert.Equal(t, "3.250", station.Find(`[data-field="potencia"]`).Text())
	assert.Equal(t, "0.650", station.Find(`[data-field="compra_red"]`).Text())
	assert.Equal(t, "-0.400", station.Find(`[data-field="bateria_kw"]`).Text())
	assert.Equal(t, "80.5", station.Find(`[data-field="bateria_soc"]`).Text())
	assert.Equal(t, "58.46", station.Find(`[data-field="ratio_autoconsumo"]`).Text())
	assert.Equal(t, "2024-06-21 13:35 <último>", station.Find(`[data-field="ultima_produccion_hora"]`).Text(), "text is escaped, not interpreted")
}

func TestDashboardWithoutRefresh(t *testing.T) {

	pb := testBalance()
	pb.StationName = ""
	pb.LastProductionTime = ""

	var buf bytes.Buffer
	require.NoError(t, NewDashboard(pb, 0).Render(&buf))

	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.Find(`meta[http-equiv="refresh"]`).Length())
	assert.Contains(t, doc.Find("#station h2").Text(), DEFAULT_STATION_TITLE)
	assert.Equal(t, 0, doc.Find(`[data-field="ultima_produccion_hora"]`).Length())
}

func TestWriteDashboard(t *testing.T) {

	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, WriteDashboard(path, NewDashboard(testBalance(), 30)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("#station").Length())
}
