package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.ContainerStatus
	}{
		{"In Transit", models.StatusInTransit},
		{"ON VESSEL", models.StatusInTransit},
		{"at sea", models.StatusInTransit},
		{"in_transit", models.StatusInTransit},
		{"IN-TRANSIT", models.StatusInTransit},
		{"Sailing", models.StatusInTransit},
		{"Discharged", models.StatusAtPort},
		{"at port", models.StatusAtPort},
		{"In Terminal", models.StatusAtPort},
		{"Delivered", models.StatusDelivered},
		{"empty returned", models.StatusEmpty},
		{"Full", models.StatusLoaded},
		{"Loaded", models.StatusLoaded},
		{"GATE OUT", models.StatusGateOut},
		{"gate_in", models.StatusGateIn},
		{"Customs hold", models.StatusUnknown},
		{"", models.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.in))
		})
	}
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want *models.Location
	}{
		{"nil", nil, nil},
		{"blank", "  ", nil},
		{"city and code", "Rotterdam NLRTM", &models.Location{Code: "NLRTM", Name: "Rotterdam", Type: "port"}},
		{"code in parens", "SHANGHAI (CNSHA)", &models.Location{Code: "CNSHA", Name: "SHANGHAI", Type: "port"}},
		{"code only", "DEHAM", &models.Location{Code: "DEHAM", Name: "Hamburg", Type: "port"}},
		{"unknown code only", "XXABC", &models.Location{Code: "XXABC", Name: "XXABC", Type: "port"}},
		{"free text", "Depot 4, Felixstowe", &models.Location{Name: "Depot 4, Felixstowe", Type: "location"}},
		{"lowercase code is not detected", "rotterdam nlrtm", &models.Location{Name: "rotterdam nlrtm", Type: "location"}},
		{"object", map[string]interface{}{"code": "sgsin", "name": "Singapore"}, &models.Location{Code: "SGSIN", Name: "Singapore", Type: "port"}},
		{"object with type", map[string]interface{}{"name": "Yard 7", "type": "terminal"}, &models.Location{Name: "Yard 7", Type: "terminal"}},
		{"object with code in name", map[string]interface{}{"city": "Antwerp BEANR"}, &models.Location{Code: "BEANR", Name: "Antwerp", Type: "port"}},
		{"empty object", map[string]interface{}{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLocation(tt.in))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"rfc3339", "2026-03-01T08:30:00Z", "2026-03-01T08:30:00Z"},
		{"offset", "2026-03-01T10:30:00+02:00", "2026-03-01T08:30:00Z"},
		{"fractional", "2026-03-01T08:30:00.123Z", "2026-03-01T08:30:00Z"},
		{"no zone", "2026-03-01T08:30:00", "2026-03-01T08:30:00Z"},
		{"space", "2026-03-01 08:30", "2026-03-01T08:30:00Z"},
		{"date only", "2026-03-01", "2026-03-01T00:00:00Z"},
		{"day first", "01/03/2026", "2026-03-01T00:00:00Z"},
		{"month name", "01-Mar-2026", "2026-03-01T00:00:00Z"},
		{"epoch seconds", float64(1772353800), "2026-03-01T08:30:00Z"},
		{"epoch millis", float64(1772353800000), "2026-03-01T08:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDate(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	for _, bad := range []interface{}{nil, "", "soon", "32/13/2026", true, float64(-1)} {
		assert.Nil(t, NormalizeDate(bad), "%v", bad)
	}
}

func TestStandardizationStage(t *testing.T) {
	batch := newBatch(models.RawRecord{
		"containerNumber": " msku1234567 ",
		"status":          "ON VESSEL",
		"currentLocation": "Rotterdam NLRTM",
		"eta":             "2026-03-20",
		"vessel":          " MAERSK EMDEN ",
		"extra":           "kept in raw data",
	})
	batch.Source = "maersk-api"

	require.NoError(t, NewStandardizationStage().Process(context.Background(), batch))
	require.Len(t, batch.Records, 1)
	assert.Nil(t, batch.Raw)

	rec := batch.Records[0]
	assert.Equal(t, "MSKU1234567", rec.ContainerNumber)
	assert.Equal(t, models.StatusInTransit, rec.Status)
	assert.Equal(t, "maersk", rec.Carrier)
	assert.Equal(t, "maersk-api", rec.Source)
	assert.Equal(t, testNow, rec.LastUpdated)
	assert.Equal(t, "NLRTM", rec.CurrentLocation.Code)
	assert.Equal(t, "2026-03-20T00:00:00Z", *rec.ETA)
	assert.Nil(t, rec.ETD)
	assert.Nil(t, rec.Origin)
	assert.Equal(t, "MAERSK EMDEN", rec.Vessel)
	assert.Equal(t, "kept in raw data", rec.RawData["extra"])
}
