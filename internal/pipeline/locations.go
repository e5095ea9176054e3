package pipeline

import (
	"regexp"
	"strings"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

const (
	locationTypePort     = "port"
	locationTypeLocation = "location"
)

// unlocodePattern finds a standalone UN/LOCODE: two letter country code plus
// a three character location part.
var unlocodePattern = regexp.MustCompile(`\b([A-Z]{2}[A-Z2-9]{3})\b`)

type port struct {
	name   string
	coords models.Coordinates
}

// knownPorts carries static coordinates for the main container ports.
var knownPorts = map[string]port{
	"CNSHA": {"Shanghai", models.Coordinates{Lat: 31.2304, Lng: 121.4737}},
	"CNNGB": {"Ningbo", models.Coordinates{Lat: 29.8683, Lng: 121.544}},
	"CNSZX": {"Shenzhen", models.Coordinates{Lat: 22.5431, Lng: 114.0579}},
	"CNTAO": {"Qingdao", models.Coordinates{Lat: 36.0671, Lng: 120.3826}},
	"SGSIN": {"Singapore", models.Coordinates{Lat: 1.2644, Lng: 103.8222}},
	"HKHKG": {"Hong Kong", models.Coordinates{Lat: 22.3193, Lng: 114.1694}},
	"KRPUS": {"Busan", models.Coordinates{Lat: 35.1796, Lng: 129.0756}},
	"NLRTM": {"Rotterdam", models.Coordinates{Lat: 51.9244, Lng: 4.4777}},
	"BEANR": {"Antwerp", models.Coordinates{Lat: 51.2194, Lng: 4.4025}},
	"DEHAM": {"Hamburg", models.Coordinates{Lat: 53.5511, Lng: 9.9937}},
	"GBFXT": {"Felixstowe", models.Coordinates{Lat: 51.9617, Lng: 1.3513}},
	"ESVLC": {"Valencia", models.Coordinates{Lat: 39.4699, Lng: -0.3763}},
	"AEJEA": {"Jebel Ali", models.Coordinates{Lat: 25.0118, Lng: 55.0618}},
	"USLAX": {"Los Angeles", models.Coordinates{Lat: 33.7405, Lng: -118.2728}},
	"USLGB": {"Long Beach", models.Coordinates{Lat: 33.7701, Lng: -118.1937}},
	"USNYC": {"New York", models.Coordinates{Lat: 40.6681, Lng: -74.0451}},
	"USSAV": {"Savannah", models.Coordinates{Lat: 32.0809, Lng: -81.0912}},
}

// PortCoordinates returns the static coordinates for a known port code.
func PortCoordinates(code string) (models.Coordinates, bool) {
	p, ok := knownPorts[code]
	return p.coords, ok
}

// NormalizeLocation turns free text or a {code,name,type} object into a
// Location. Nil and blank input yield nil.
func NormalizeLocation(v interface{}) *models.Location {
	switch val := v.(type) {
	case nil:
		return nil
	case *models.Location:
		if val == nil {
			return nil
		}
		c := *val
		return &c
	case map[string]interface{}:
		return locationFromObject(val)
	case models.RawRecord:
		return locationFromObject(val)
	default:
		return locationFromText(base.Str(v))
	}
}

func locationFromText(text string) *models.Location {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	loc := matchCode(text)
	if loc == nil {
		return &models.Location{Name: text, Type: locationTypeLocation}
	}
	return loc
}

// matchCode prefers a token that is a known port, then any code shaped token.
func matchCode(text string) *models.Location {
	matches := unlocodePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	pick := matches[0]
	for _, m := range matches {
		if _, known := knownPorts[text[m[0]:m[1]]]; known {
			pick = m
			break
		}
	}

	code := text[pick[0]:pick[1]]
	name := strings.TrimSpace(text[:pick[0]] + " " + text[pick[1]:])
	name = strings.Trim(name, " ,;:-()[]/")
	name = strings.Join(strings.Fields(strings.NewReplacer("()", "", "[]", "").Replace(name)), " ")
	if name == "" {
		if p, ok := knownPorts[code]; ok {
			name = p.name
		} else {
			name = code
		}
	}
	return &models.Location{Code: code, Name: name, Type: locationTypePort}
}

func locationFromObject(obj map[string]interface{}) *models.Location {
	code := strings.ToUpper(strings.TrimSpace(first(obj, "code", "unlocode", "UNLocationCode", "locode")))
	name := strings.TrimSpace(first(obj, "name", "city", "locationName", "cityName"))
	typ := strings.TrimSpace(first(obj, "type"))

	if code == "" && name == "" {
		return nil
	}
	if code != "" && !unlocodePattern.MatchString(code) {
		// not a UN/LOCODE; try the name text instead
		if name == "" {
			name = code
		}
		code = ""
	}
	if code == "" {
		if loc := matchCode(name); loc != nil {
			return loc
		}
	}
	if name == "" {
		if p, ok := knownPorts[code]; ok {
			name = p.name
		} else {
			name = code
		}
	}
	if typ == "" {
		typ = locationTypeLocation
		if code != "" {
			typ = locationTypePort
		}
	}
	return &models.Location{Code: code, Name: name, Type: typ}
}

func first(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := base.Str(obj[k]); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
