package maersk

import (
	"strings"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

var trackingFields = map[string]string{
	models.FieldContainerNumber: "container_num",
	models.FieldStatus:          "status",
	models.FieldETA:             "eta_final_delivery",
	models.FieldETD:             "etd",
	models.FieldATA:             "ata",
	models.FieldATD:             "atd",
	models.FieldVessel:          "vessel.name",
	models.FieldVoyage:          "vessel.voyage",
	models.FieldBookingNumber:   "booking_ref",
	models.FieldBillOfLading:    "bill_of_lading",
}

// DCSA equipment event codes to status text understood downstream.
var eventStatus = map[string]string{
	"LOAD": "Loaded",
	"DISC": "Discharged",
	"GTIN": "Gate In",
	"GTOT": "Gate Out",
	"ARRI": "Arrived",
	"DEPA": "In Transit",
	"STUF": "Loaded",
	"STRP": "Empty",
}

func transformTrackingData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, "containers")
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec := base.MapFields(item, trackingFields)
		setLocation(rec, models.FieldCurrentLocation, item, "location")
		setLocation(rec, models.FieldOrigin, item, "origin")
		setLocation(rec, models.FieldDestination, item, "destination")
		records = append(records, rec)
	}
	return records, nil
}

func transformEventsData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, "events")
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec := base.MapFields(item, map[string]string{
			models.FieldContainerNumber: "equipmentReference",
			models.FieldVessel:          "transportCall.vessel.vesselName",
			models.FieldVoyage:          "transportCall.carrierVoyageNumber",
		})

		code := base.Str(item["equipmentEventTypeCode"])
		if status, ok := eventStatus[code]; ok {
			rec[models.FieldStatus] = status
		} else if code != "" {
			rec[models.FieldStatus] = code
		}
		setLocation(rec, models.FieldCurrentLocation, item, "eventLocation")

		// Actual arrivals and departures carry their own timestamp field.
		when := base.Str(item["eventDateTime"])
		if when != "" {
			actual := base.Str(item["eventClassifierCode"]) == "ACT"
			switch code {
			case "ARRI", "DISC":
				if actual {
					rec[models.FieldATA] = when
				} else {
					rec[models.FieldETA] = when
				}
			case "DEPA", "LOAD":
				if actual {
					rec[models.FieldATD] = when
				} else {
					rec[models.FieldETD] = when
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func transformSchedulesData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, "schedules")
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec := base.MapFields(item, map[string]string{
			models.FieldContainerNumber: "containerNumber",
			models.FieldStatus:          "status",
			models.FieldVessel:          "transportPlan.vesselName",
			models.FieldVoyage:          "transportPlan.voyage",
			models.FieldETD:             "transportPlan.plannedDeparture",
			models.FieldETA:             "transportPlan.plannedArrival",
		})
		setLocation(rec, models.FieldOrigin, item, "transportPlan.pol")
		setLocation(rec, models.FieldDestination, item, "transportPlan.pod")
		records = append(records, rec)
	}
	return records, nil
}

// setLocation renders a Maersk location object as "City CODE" so the port
// code survives into standardization.
func setLocation(rec models.RawRecord, field string, item map[string]interface{}, path string) {
	v, ok := base.Lookup(item, path)
	if !ok {
		return
	}
	loc, ok := v.(map[string]interface{})
	if !ok {
		if s := base.Str(v); s != "" {
			rec[field] = s
		}
		return
	}

	name := base.Str(loc["city"])
	if name == "" {
		name = base.Str(loc["locationName"])
	}
	code := base.Str(loc["unlocode"])
	if code == "" {
		code = base.Str(loc["UNLocationCode"])
	}

	if text := strings.TrimSpace(name + " " + code); text != "" {
		rec[field] = text
	}
}
