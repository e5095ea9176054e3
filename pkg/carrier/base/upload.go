package base

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// fieldAliases maps normalized document labels to canonical field names.
var fieldAliases = map[string]string{
	"container":           models.FieldContainerNumber,
	"container no":        models.FieldContainerNumber,
	"container number":    models.FieldContainerNumber,
	"containernumber":     models.FieldContainerNumber,
	"cntr":                models.FieldContainerNumber,
	"cntr no":             models.FieldContainerNumber,
	"equipment":           models.FieldContainerNumber,
	"status":              models.FieldStatus,
	"container status":    models.FieldStatus,
	"event":               models.FieldStatus,
	"location":            models.FieldCurrentLocation,
	"current location":    models.FieldCurrentLocation,
	"currentlocation":     models.FieldCurrentLocation,
	"port":                models.FieldCurrentLocation,
	"origin":              models.FieldOrigin,
	"pol":                 models.FieldOrigin,
	"port of loading":     models.FieldOrigin,
	"destination":         models.FieldDestination,
	"pod":                 models.FieldDestination,
	"port of discharge":   models.FieldDestination,
	"eta":                 models.FieldETA,
	"estimated arrival":   models.FieldETA,
	"etd":                 models.FieldETD,
	"estimated departure": models.FieldETD,
	"ata":                 models.FieldATA,
	"actual arrival":      models.FieldATA,
	"atd":                 models.FieldATD,
	"actual departure":    models.FieldATD,
	"vessel":              models.FieldVessel,
	"vessel name":         models.FieldVessel,
	"ship":                models.FieldVessel,
	"voyage":              models.FieldVoyage,
	"voyage no":           models.FieldVoyage,
	"voyage number":       models.FieldVoyage,
	"booking":             models.FieldBookingNumber,
	"booking no":          models.FieldBookingNumber,
	"booking number":      models.FieldBookingNumber,
	"bookingnumber":       models.FieldBookingNumber,
	"bl":                  models.FieldBillOfLading,
	"b/l":                 models.FieldBillOfLading,
	"bl no":               models.FieldBillOfLading,
	"b/l no":              models.FieldBillOfLading,
	"bill of lading":      models.FieldBillOfLading,
	"billoflading":        models.FieldBillOfLading,
}

// CanonicalField maps a document label to a canonical field name. Unknown
// labels are returned trimmed and unchanged.
func CanonicalField(label string) string {
	if f, ok := fieldAliases[normalizeLabel(label)]; ok {
		return f
	}
	return strings.TrimSpace(label)
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.NewReplacer(".", "", "#", "", "_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

// ParseUpload turns an uploaded document into raw records. The text is
// extracted first; a delimited table with a recognizable header is read row
// by row, anything else is parsed as key: value lines.
func ParseUpload(file core.UploadFile) ([]models.RawRecord, error) {
	text := ExtractText(file.Data)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "uploaded document contains no text").
			WithDetail("file", file.Name)
	}

	if records, ok := parseTable(text); ok {
		return records, nil
	}
	return ParseKeyValueText(text), nil
}

// ExtractText returns the document's text. Valid UTF-8 is kept as is (minus
// a byte order mark); otherwise bytes are read OCR-style, keeping printable
// ASCII and line breaks and blanking the rest.
func ExtractText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return strings.ReplaceAll(string(data), "\r\n", "\n")
	}

	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch {
		case c == '\n' || c == '\t':
			b.WriteByte(c)
		case c == '\r':
			// dropped; \n carries the line break
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// ParseKeyValueText parses "Label: value" lines. A blank line, or a second
// container number, starts a new record. Lines without a separator are ignored.
func ParseKeyValueText(text string) []models.RawRecord {
	records := make([]models.RawRecord, 0)
	current := models.RawRecord{}

	flush := func() {
		if len(current) > 0 {
			records = append(records, current)
			current = models.RawRecord{}
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}

		idx := strings.IndexAny(line, ":=")
		if idx <= 0 {
			continue
		}
		key := CanonicalField(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if value == "" {
			continue
		}

		if key == models.FieldContainerNumber {
			if _, seen := current[models.FieldContainerNumber]; seen {
				flush()
			}
			value = strings.ToUpper(strings.ReplaceAll(value, " ", ""))
		}
		current[key] = value
	}
	flush()

	return records
}

// parseTable reads comma, semicolon or tab separated text whose header row
// names a container column.
func parseTable(text string) ([]models.RawRecord, bool) {
	lines := strings.SplitN(strings.TrimLeftFunc(text, unicode.IsSpace), "\n", 2)
	header := lines[0]

	var sep rune
	for _, candidate := range []rune{',', ';', '\t'} {
		if strings.Count(header, string(candidate)) >= 1 {
			sep = candidate
			break
		}
	}
	if sep == 0 {
		return nil, false
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil || len(rows) < 1 {
		return nil, false
	}

	columns := make([]string, len(rows[0]))
	hasContainer := false
	for i, h := range rows[0] {
		columns[i] = CanonicalField(h)
		if columns[i] == models.FieldContainerNumber {
			hasContainer = true
		}
	}
	if !hasContainer {
		return nil, false
	}

	records := make([]models.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := models.RawRecord{}
		for i, cell := range row {
			if i >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if columns[i] == models.FieldContainerNumber {
				cell = strings.ToUpper(strings.ReplaceAll(cell, " ", ""))
			}
			rec[columns[i]] = cell
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, true
}
