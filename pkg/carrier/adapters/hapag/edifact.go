package hapag

import (
	"strings"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// segment is one EDIFACT segment: a tag and its data elements, each split
// into components.
type segment struct {
	Tag      string
	Elements [][]string
}

// component returns element e, component c, or "".
func (s segment) component(e, c int) string {
	if e >= len(s.Elements) || c >= len(s.Elements[e]) {
		return ""
	}
	return s.Elements[e][c]
}

type delimiters struct {
	component byte
	element   byte
	release   byte
	segment   byte
}

var defaultDelimiters = delimiters{component: ':', element: '+', release: '?', segment: '\''}

// parseEDIFACT splits an interchange into segments, honoring a UNA service
// string advice and the release character.
func parseEDIFACT(data string) ([]segment, error) {
	d := defaultDelimiters
	data = strings.TrimLeft(data, " \r\n\t\ufeff")
	if strings.HasPrefix(data, "UNA") {
		if len(data) < 9 {
			return nil, errors.New(errors.ErrorTypeData, "truncated UNA service string advice")
		}
		d = delimiters{component: data[3], element: data[4], release: data[6], segment: data[8]}
		data = data[9:]
	}

	segments := make([]segment, 0)
	var (
		elements [][]string
		comps    []string
		cur      strings.Builder
	)
	endComponent := func() {
		comps = append(comps, cur.String())
		cur.Reset()
	}
	endElement := func() {
		endComponent()
		elements = append(elements, comps)
		comps = nil
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == d.release && i+1 < len(data):
			i++
			cur.WriteByte(data[i])
		case c == d.component:
			endComponent()
		case c == d.element:
			endElement()
		case c == d.segment:
			endElement()
			tag := strings.TrimSpace(strings.Join(elements[0], ""))
			if tag != "" {
				segments = append(segments, segment{Tag: tag, Elements: elements[1:]})
			}
			elements = nil
		case c == '\r' || c == '\n':
			// line breaks between segments are not data
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(elements) > 0 {
		return nil, errors.New(errors.ErrorTypeData, "EDIFACT interchange ends inside a segment")
	}
	return segments, nil
}

// IFTSTA status event codes and the status text standardization understands.
var statusCodes = map[string]string{
	"GIN": "Gate In",
	"GOT": "Gate Out",
	"LOA": "Loaded",
	"DIS": "Discharged",
	"ARR": "Arrived",
	"DEP": "In Transit",
	"DLV": "Delivered",
	"EMT": "Empty",
	"TSP": "In Transit",
}

// DTM qualifiers for the four milestone dates.
var dateQualifiers = map[string]string{
	"132": models.FieldETA,
	"133": models.FieldETD,
	"178": models.FieldATA,
	"186": models.FieldATD,
}

// LOC qualifiers for locations.
var locationQualifiers = map[string]string{
	"175": models.FieldCurrentLocation,
	"165": models.FieldCurrentLocation,
	"5":   models.FieldOrigin,
	"9":   models.FieldOrigin,
	"7":   models.FieldDestination,
	"8":   models.FieldDestination,
	"11":  models.FieldDestination,
}

// parseIFTSTA reads IFTSTA status messages into raw records. CNI opens a
// consignment whose TDT, RFF and LOC details are shared by its status events;
// each STS opens a record that EQD, LOC and DTM segments after it fill in.
// Events without an equipment number are dropped.
func parseIFTSTA(data string) ([]models.RawRecord, error) {
	segments, err := parseEDIFACT(data)
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0)
	var (
		shared  models.RawRecord
		current models.RawRecord
		sawUNH  bool
	)
	flush := func() {
		if current != nil {
			if _, ok := current[models.FieldContainerNumber]; ok {
				records = append(records, current)
			}
		}
		current = nil
	}
	target := func() models.RawRecord {
		if current != nil {
			return current
		}
		if shared == nil {
			shared = models.RawRecord{}
		}
		return shared
	}

	for _, seg := range segments {
		switch seg.Tag {
		case "UNH":
			if msgType := seg.component(1, 0); msgType != "IFTSTA" {
				return nil, errors.Newf(errors.ErrorTypeData, "expected IFTSTA message, got %q", msgType)
			}
			sawUNH = true
			flush()
			shared = nil
		case "CNI":
			flush()
			shared = models.RawRecord{}
		case "STS":
			flush()
			current = models.RawRecord{}
			for k, v := range shared {
				current[k] = v
			}
			code := seg.component(1, 0)
			if status, ok := statusCodes[code]; ok {
				current[models.FieldStatus] = status
			} else if text := seg.component(1, 3); text != "" {
				current[models.FieldStatus] = text
			} else if code != "" {
				current[models.FieldStatus] = code
			}
		case "EQD":
			if seg.component(0, 0) == "CN" {
				target()[models.FieldContainerNumber] = strings.ToUpper(strings.ReplaceAll(seg.component(1, 0), " ", ""))
			}
		case "RFF":
			switch seg.component(0, 0) {
			case "BN":
				target()[models.FieldBookingNumber] = seg.component(0, 1)
			case "BM":
				target()[models.FieldBillOfLading] = seg.component(0, 1)
			}
		case "TDT":
			rec := target()
			if voyage := seg.component(1, 0); voyage != "" {
				rec[models.FieldVoyage] = voyage
			}
			if vessel := vesselName(seg); vessel != "" {
				rec[models.FieldVessel] = vessel
			}
		case "LOC":
			field, ok := locationQualifiers[seg.component(0, 0)]
			if !ok {
				continue
			}
			code := seg.component(1, 0)
			name := seg.component(1, 3)
			if text := strings.TrimSpace(name + " " + code); text != "" {
				target()[field] = text
			}
		case "DTM":
			field, ok := dateQualifiers[seg.component(0, 0)]
			if !ok {
				continue
			}
			if when, ok := ediDate(seg.component(0, 1), seg.component(0, 2)); ok {
				target()[field] = when
			}
		case "UNT":
			flush()
		}
	}
	flush()

	if !sawUNH && len(segments) > 0 {
		return nil, errors.New(errors.ErrorTypeData, "EDIFACT interchange contains no message header")
	}
	return records, nil
}

// vesselName is the last component of TDT's transport identification element.
func vesselName(seg segment) string {
	if len(seg.Elements) < 8 {
		return ""
	}
	comps := seg.Elements[7]
	for i := len(comps) - 1; i >= 0; i-- {
		if name := strings.TrimSpace(comps[i]); name != "" && i > 0 {
			return name
		}
	}
	return ""
}

// ediDate converts DTM values in formats 102 (CCYYMMDD), 203 (CCYYMMDDHHMM)
// and 204 (CCYYMMDDHHMMSS) to RFC 3339 UTC.
func ediDate(value, format string) (string, bool) {
	layouts := map[string]string{
		"102": "20060102",
		"203": "200601021504",
		"204": "20060102150405",
	}
	layout, ok := layouts[format]
	if !ok {
		switch len(value) {
		case 8:
			layout = layouts["102"]
		case 12:
			layout = layouts["203"]
		default:
			return "", false
		}
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}
