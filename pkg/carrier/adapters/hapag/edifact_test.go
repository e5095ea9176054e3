package hapag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

const interchange = "UNA:+.? '\n" +
	"UNB+UNOC:3+HLCU+FREIGHTSYNC+240310:1430+42'\n" +
	"UNH+1+IFTSTA:D:99B:UN'\n" +
	"BGM+23+STATUS42+9'\n" +
	"CNI+1+BKG1'\n" +
	"RFF+BN:HLCUBK123'\n" +
	"RFF+BM:HLCUHAM240301'\n" +
	"TDT+20+412W+1++HLC:172+++9501344:146::HAMBURG EXPRESS'\n" +
	"LOC+9+CNSHA:139:6:Shanghai'\n" +
	"STS+1+DIS'\n" +
	"EQD+CN+HLXU 1234567'\n" +
	"LOC+175+NLRTM:139:6:Rotterdam'\n" +
	"DTM+178:202403101400:203'\n" +
	"STS+1+XYZ:::Customs hold?'s release pending'\n" +
	"EQD+CN+HLXU7654321'\n" +
	"DTM+132:20240312:102'\n" +
	"STS+1+GOT'\n" +
	"LOC+175+NLRTM:139:6'\n" +
	"UNT+17+1'\n" +
	"UNZ+1+42'\n"

func TestParseIFTSTA(t *testing.T) {
	records, err := parseIFTSTA(interchange)
	require.NoError(t, err)
	require.Len(t, records, 2, "the event without equipment is dropped")

	assert.Equal(t, models.RawRecord{
		"containerNumber": "HLXU1234567",
		"status":          "Discharged",
		"bookingNumber":   "HLCUBK123",
		"billOfLading":    "HLCUHAM240301",
		"voyage":          "412W",
		"vessel":          "HAMBURG EXPRESS",
		"origin":          "Shanghai CNSHA",
		"currentLocation": "Rotterdam NLRTM",
		"ata":             "2024-03-10T14:00:00Z",
	}, records[0])

	assert.Equal(t, "HLXU7654321", records[1]["containerNumber"])
	assert.Equal(t, "Customs hold's release pending", records[1]["status"])
	assert.Equal(t, "2024-03-12T00:00:00Z", records[1]["eta"])
	assert.Equal(t, "Shanghai CNSHA", records[1]["origin"])
	assert.NotContains(t, records[1], "ata")
}

func TestParseIFTSTA_WrongMessageType(t *testing.T) {
	_, err := parseIFTSTA("UNH+1+IFTMIN:D:99B:UN'BGM+340'UNT+2+1'")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Contains(t, err.Error(), `expected IFTSTA message, got "IFTMIN"`)
}

func TestParseIFTSTA_Malformed(t *testing.T) {
	_, err := parseIFTSTA("UNH+1+IFTSTA:D:99B:UN'STS+1+DIS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ends inside a segment")

	_, err = parseIFTSTA("STS+1+DIS'EQD+CN+HLXU1234567'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message header")
}

func TestParseIFTSTA_Empty(t *testing.T) {
	records, err := parseIFTSTA("  \n")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseEDIFACT_CustomDelimiters(t *testing.T) {
	segments, err := parseEDIFACT("UNA|*.\\ ~UNH*1*IFTSTA|D~EQD*CN*ABCU1234567~")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "IFTSTA", segments[0].component(1, 0))
	assert.Equal(t, "D", segments[0].component(1, 1))
	assert.Equal(t, "ABCU1234567", segments[1].component(1, 0))
	assert.Equal(t, "", segments[1].component(5, 0))
}

func TestEDIDate(t *testing.T) {
	got, ok := ediDate("20240310143015", "204")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-10T14:30:15Z", got)

	got, ok = ediDate("202403101430", "")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-10T14:30:00Z", got)

	_, ok = ediDate("2024-03-10", "")
	assert.False(t, ok)
}
