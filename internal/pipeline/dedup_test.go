package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/dedupstore"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

func sighting(status models.ContainerStatus, vessel string) *models.CanonicalRecord {
	return &models.CanonicalRecord{
		ContainerNumber: "MSKU1234567",
		Carrier:         "maersk",
		Status:          status,
		Vessel:          vessel,
		ETA:             models.StringPtr("2026-03-20T00:00:00Z"),
		LastUpdated:     testNow,
	}
}

func runDedup(t *testing.T, stage *DedupStage, partition string, now time.Time, recs ...*models.CanonicalRecord) []*models.CanonicalRecord {
	t.Helper()
	batch := newBatch()
	batch.Partition = partition
	batch.Now = now
	batch.Records = recs
	require.NoError(t, stage.Process(context.Background(), batch))
	return batch.Records
}

func TestDedupSuppressesInsignificantRepeats(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, nil, nil)

	out := runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusInTransit, "EMDEN"))
	require.Len(t, out, 1)
	assert.Empty(t, out[0].UpdateHistory)

	out = runDedup(t, stage, "tenant-1", testNow.Add(time.Hour), sighting(models.StatusInTransit, "EMMA"))
	assert.Empty(t, out, "vessel alone is not significant")

	later := testNow.Add(2 * time.Hour)
	out = runDedup(t, stage, "tenant-1", later, sighting(models.StatusAtPort, ""))
	require.Len(t, out, 1)
	rec := out[0]
	assert.Equal(t, models.StatusAtPort, rec.Status)
	assert.Equal(t, "EMMA", rec.Vessel, "empty fields keep the stored value")
	require.Len(t, rec.UpdateHistory, 1)
	assert.Equal(t, later, rec.UpdateHistory[0].Timestamp)
	assert.Equal(t, map[string]models.FieldChange{
		"status": {From: models.StatusInTransit, To: models.StatusAtPort},
	}, rec.UpdateHistory[0].Changes)
}

func TestDedupWithinOneBatch(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, nil, nil)

	out := runDedup(t, stage, "tenant-1", testNow,
		sighting(models.StatusInTransit, "EMDEN"),
		sighting(models.StatusInTransit, "EMDEN"),
		sighting(models.StatusDelivered, "EMDEN"),
	)
	require.Len(t, out, 2)
	assert.Equal(t, models.StatusInTransit, out[0].Status)
	assert.Equal(t, models.StatusDelivered, out[1].Status)
}

func TestDedupPartitionsAreIsolated(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, nil, nil)

	require.Len(t, runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusInTransit, "")), 1)
	require.Len(t, runDedup(t, stage, "tenant-2", testNow, sighting(models.StatusInTransit, "")), 1)
}

func TestDedupDifferentCarrierIsDifferentKey(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, nil, nil)

	a := sighting(models.StatusInTransit, "")
	b := sighting(models.StatusInTransit, "")
	b.Carrier = "msc"
	assert.Len(t, runDedup(t, stage, "tenant-1", testNow, a, b), 2)
}

func TestDedupPurgesStaleEntries(t *testing.T) {
	store := dedupstore.NewMemoryStore()
	stage := NewDedupStage(store, 7*day, nil, nil)

	require.Len(t, runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusInTransit, "")), 1)

	later := testNow.Add(8 * day)
	out := runDedup(t, stage, "tenant-1", later, sighting(models.StatusInTransit, ""))
	require.Len(t, out, 1, "stale entry purged so the sighting is new again")
	assert.Empty(t, out[0].UpdateHistory)
	assert.Equal(t, 1, store.Len("tenant-1"))
}

func TestDedupConfigurableSignificantFields(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, []string{"vessel"}, nil)

	require.Len(t, runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusInTransit, "EMDEN")), 1)
	assert.Empty(t, runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusAtPort, "EMDEN")))

	out := runDedup(t, stage, "tenant-1", testNow, sighting(models.StatusAtPort, "EMMA"))
	require.Len(t, out, 1)
	assert.Contains(t, out[0].UpdateHistory[0].Changes, "vessel")
}

func TestDiffRecordsLocations(t *testing.T) {
	prev := sighting(models.StatusAtPort, "")
	prev.CurrentLocation = &models.Location{Code: "NLRTM", Name: "Rotterdam", Type: "port"}
	next := prev.Clone()
	assert.Empty(t, diffRecords(prev, next))

	next.CurrentLocation = &models.Location{Code: "BEANR", Name: "Antwerp", Type: "port"}
	changes := diffRecords(prev, next)
	require.Contains(t, changes, "currentLocation")
	assert.Equal(t, "NLRTM", changes["currentLocation"].From.(*models.Location).Code)
}

func TestDedupConcurrentRunsOnSameKey(t *testing.T) {
	store := dedupstore.NewMemoryStore()
	stage := NewDedupStage(store, 7*day, nil, nil)

	const workers = 16
	run := func(recFor func(i int) *models.CanonicalRecord) int {
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				batch := newBatch()
				batch.Records = []*models.CanonicalRecord{recFor(i)}
				assert.NoError(t, stage.Process(context.Background(), batch))
				mu.Lock()
				total += len(batch.Records)
				mu.Unlock()
			}(i)
		}
		wg.Wait()
		return total
	}

	emitted := run(func(int) *models.CanonicalRecord { return sighting(models.StatusInTransit, "EMDEN") })
	assert.Equal(t, 1, emitted, "only one run sees the first sighting")

	emitted = run(func(i int) *models.CanonicalRecord {
		rec := sighting(models.StatusInTransit, "EMDEN")
		rec.ETA = models.StringPtr(fmt.Sprintf("2026-04-%02dT00:00:00Z", i+1))
		return rec
	})
	assert.Equal(t, workers, emitted)

	stored, err := store.Get(context.Background(), "tenant-1", sighting(models.StatusInTransit, "").DedupKey())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.UpdateHistory, workers, "no update is lost")
}

func TestDedupClearsRiskWhenLeavingPort(t *testing.T) {
	stage := NewDedupStage(dedupstore.NewMemoryStore(), 7*day, nil, nil)

	remaining := 1
	atPort := sighting(models.StatusAtPort, "")
	atPort.ATA = models.StringPtr("2026-03-06T00:00:00Z")
	atPort.FreeTimeEnd = models.StringPtr("2026-03-11T00:00:00Z")
	atPort.FreeTimeRemaining = &remaining
	atPort.DDRisk = models.DDRiskHigh
	require.Len(t, runDedup(t, stage, "tenant-1", testNow, atPort), 1)

	// a later at-port sighting without free time keeps the stored figures
	again := sighting(models.StatusAtPort, "EMMA")
	again.ATA = atPort.ATA
	require.Empty(t, runDedup(t, stage, "tenant-1", testNow.Add(time.Hour), again))

	out := runDedup(t, stage, "tenant-1", testNow.Add(2*time.Hour), sighting(models.StatusGateOut, ""))
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusGateOut, out[0].Status)
	assert.Empty(t, out[0].DDRisk)
	assert.Nil(t, out[0].FreeTimeEnd)
	assert.Nil(t, out[0].FreeTimeRemaining)
}
