package cmacgm

import (
	"strings"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

var eventFields = map[string]string{
	models.FieldContainerNumber: "equipmentReference",
	models.FieldStatus:          "description",
	models.FieldVessel:          "transportCall.vessel.vesselName",
	models.FieldVoyage:          "transportCall.exportVoyageNumber",
	models.FieldBookingNumber:   "documentReferences.0.documentReferenceValue",
}

func transformEventsData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, "")
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec := base.MapFields(item, eventFields)
		if _, ok := rec[models.FieldStatus]; !ok {
			if code := base.Str(item["equipmentEventTypeCode"]); code != "" {
				rec[models.FieldStatus] = code
			}
		}
		loc := strings.TrimSpace(base.Str(lookup(item, "eventLocation.locationName")) + " " +
			base.Str(lookup(item, "eventLocation.UNLocationCode")))
		if loc != "" {
			rec[models.FieldCurrentLocation] = loc
		}
		records = append(records, rec)
	}
	return records, nil
}

// transformWebData maps the scraped moves table onto a record. The portal
// lists moves newest first, so only the first data row is kept.
func transformWebData(container string, rows [][]string) []models.RawRecord {
	if len(rows) < 2 {
		return []models.RawRecord{}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = webColumn(h)
	}

	rec := models.RawRecord{models.FieldContainerNumber: strings.ToUpper(container)}
	for i, cell := range rows[1] {
		if i >= len(header) || header[i] == "" || strings.TrimSpace(cell) == "" {
			continue
		}
		rec[header[i]] = strings.TrimSpace(cell)
	}
	return []models.RawRecord{rec}
}

func webColumn(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "date":
		return "moveDate"
	case "moves", "move", "status":
		return models.FieldStatus
	case "location":
		return models.FieldCurrentLocation
	case "vessel", "vessel/voyage":
		return models.FieldVessel
	case "voyage":
		return models.FieldVoyage
	}
	return base.CanonicalField(label)
}

func lookup(item map[string]interface{}, path string) interface{} {
	v, _ := base.Lookup(item, path)
	return v
}
