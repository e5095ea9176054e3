package msc

import (
	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

var containerFields = map[string]string{
	models.FieldContainerNumber: "ContainerNumber",
	models.FieldStatus:          "LatestMove.Description",
	models.FieldCurrentLocation: "LatestMove.Location",
	models.FieldETA:             "PodEtaDate",
	models.FieldVessel:          "LatestMove.Vessel",
	models.FieldVoyage:          "LatestMove.Voyage",
}

// transformTrackingData flattens MSC's bill-of-lading grouping into one
// record per container, copying the shipment level fields onto each.
func transformTrackingData(payload interface{}) ([]models.RawRecord, error) {
	bills, err := base.Items(payload, "Data.BillOfLadings")
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(bills))
	for _, bill := range bills {
		shared := base.MapFields(bill, map[string]string{
			models.FieldBillOfLading:  "BillOfLadingNumber",
			models.FieldBookingNumber: "BookingNumber",
			models.FieldOrigin:        "GeneralTrackingInfo.PortOfLoad",
			models.FieldDestination:   "GeneralTrackingInfo.PortOfDischarge",
			models.FieldETD:           "GeneralTrackingInfo.ShippedDate",
		})

		containers, err := base.Items(bill, "ContainersInfo")
		if err != nil {
			return nil, err
		}
		for _, c := range containers {
			rec := base.MapFields(c, containerFields)
			for k, v := range shared {
				if _, ok := rec[k]; !ok {
					rec[k] = v
				}
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
