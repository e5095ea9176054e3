package pipeline

import (
	"time"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newBatch(raw ...models.RawRecord) *Batch {
	return &Batch{
		CarrierID: "maersk",
		Partition: "tenant-1",
		Source:    "maersk",
		Now:       testNow,
		Raw:       raw,
	}
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339) }
