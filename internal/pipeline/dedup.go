package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/dedupstore"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// DefaultSignificantFields are the fields whose change re-emits a record.
var DefaultSignificantFields = []string{
	models.FieldStatus,
	models.FieldCurrentLocation,
	models.FieldETA,
	models.FieldATA,
}

// trackedField reads one comparable field of a canonical record. Pointer
// values are dereferenced so diffs carry plain values.
type trackedField struct {
	name string
	get  func(*models.CanonicalRecord) interface{}
}

var trackedFields = []trackedField{
	{models.FieldStatus, func(r *models.CanonicalRecord) interface{} { return r.Status }},
	{models.FieldCurrentLocation, func(r *models.CanonicalRecord) interface{} { return r.CurrentLocation }},
	{models.FieldOrigin, func(r *models.CanonicalRecord) interface{} { return r.Origin }},
	{models.FieldDestination, func(r *models.CanonicalRecord) interface{} { return r.Destination }},
	{models.FieldETA, func(r *models.CanonicalRecord) interface{} { return deref(r.ETA) }},
	{models.FieldETD, func(r *models.CanonicalRecord) interface{} { return deref(r.ETD) }},
	{models.FieldATA, func(r *models.CanonicalRecord) interface{} { return deref(r.ATA) }},
	{models.FieldATD, func(r *models.CanonicalRecord) interface{} { return deref(r.ATD) }},
	{models.FieldVessel, func(r *models.CanonicalRecord) interface{} { return r.Vessel }},
	{models.FieldVoyage, func(r *models.CanonicalRecord) interface{} { return r.Voyage }},
	{models.FieldBookingNumber, func(r *models.CanonicalRecord) interface{} { return r.BookingNumber }},
	{models.FieldBillOfLading, func(r *models.CanonicalRecord) interface{} { return r.BillOfLading }},
}

// DedupStage merges repeat sightings of a container into the stored record.
// A repeat is emitted only when a significant field changed; the diff of each
// emitted repeat is appended to its update history. Other repeats update the
// stored record silently. Runs against the same partition are serialized.
type DedupStage struct {
	store       dedupstore.Store
	ttl         time.Duration
	significant map[string]bool
	logger      *zap.Logger
	locks       *partitionLocks
}

// partitionLocks hands out one mutex per partition and drops it once no run
// holds or waits for it.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*partitionLock
}

type partitionLock struct {
	sync.Mutex
	refs int
}

func (p *partitionLocks) lock(partition string) func() {
	p.mu.Lock()
	l, ok := p.locks[partition]
	if !ok {
		l = &partitionLock{}
		p.locks[partition] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, partition)
		}
		p.mu.Unlock()
	}
}

// NewDedupStage creates the duplicate detection stage. An empty significant
// list selects DefaultSignificantFields.
func NewDedupStage(store dedupstore.Store, ttl time.Duration, significant []string, l *zap.Logger) *DedupStage {
	if len(significant) == 0 {
		significant = DefaultSignificantFields
	}
	if l == nil {
		l = zap.NewNop()
	}
	set := make(map[string]bool, len(significant))
	for _, f := range significant {
		set[f] = true
	}
	return &DedupStage{
		store:       store,
		ttl:         ttl,
		significant: set,
		logger:      l,
		locks:       &partitionLocks{locks: make(map[string]*partitionLock)},
	}
}

// Name implements Stage.
func (s *DedupStage) Name() string { return "dedup" }

// Process implements Stage.
func (s *DedupStage) Process(ctx context.Context, batch *Batch) error {
	unlock := s.locks.lock(batch.Partition)
	defer unlock()

	purged, err := s.store.Purge(ctx, batch.Partition, batch.Now.Add(-s.ttl))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to purge dedup state")
	}
	if purged > 0 {
		s.logger.Debug("purged stale dedup entries",
			zap.String("partition", batch.Partition),
			zap.Int("count", purged))
	}

	emitted := make([]*models.CanonicalRecord, 0, len(batch.Records))
	for _, rec := range batch.Records {
		key := rec.DedupKey()
		existing, err := s.store.Get(ctx, batch.Partition, key)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to read dedup state").
				WithDetail("key", key)
		}

		if existing == nil {
			if err := s.store.Put(ctx, batch.Partition, key, rec); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write dedup state").
					WithDetail("key", key)
			}
			emitted = append(emitted, rec)
			continue
		}

		merged := mergeRecords(existing, rec)
		changes := diffRecords(existing, merged)
		emit := s.isSignificant(changes)
		if emit {
			merged.UpdateHistory = append(merged.UpdateHistory, models.UpdateEntry{
				Timestamp: batch.Now,
				Changes:   changes,
			})
		}

		if err := s.store.Put(ctx, batch.Partition, key, merged); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write dedup state").
				WithDetail("key", key)
		}
		if emit {
			emitted = append(emitted, merged)
		}
	}

	batch.Records = emitted
	return nil
}

func (s *DedupStage) isSignificant(changes map[string]models.FieldChange) bool {
	for field := range changes {
		if s.significant[field] {
			return true
		}
	}
	return false
}

// mergeRecords lays next over prev. Fields next leaves empty keep prev's value,
// except free time and D&D risk, which only carry over while the container
// is still at port.
func mergeRecords(prev, next *models.CanonicalRecord) *models.CanonicalRecord {
	m := next.Clone()
	old := prev.Clone()

	if m.CurrentLocation == nil {
		m.CurrentLocation = old.CurrentLocation
	}
	if m.Origin == nil {
		m.Origin = old.Origin
	}
	if m.Destination == nil {
		m.Destination = old.Destination
	}
	if m.ETA == nil {
		m.ETA = old.ETA
	}
	if m.ETD == nil {
		m.ETD = old.ETD
	}
	if m.ATA == nil {
		m.ATA = old.ATA
	}
	if m.ATD == nil {
		m.ATD = old.ATD
	}
	if m.Vessel == "" {
		m.Vessel = old.Vessel
	}
	if m.Voyage == "" {
		m.Voyage = old.Voyage
	}
	if m.BookingNumber == "" {
		m.BookingNumber = old.BookingNumber
	}
	if m.BillOfLading == "" {
		m.BillOfLading = old.BillOfLading
	}
	if m.TransitDays == nil {
		m.TransitDays = old.TransitDays
	}
	if m.FreeTimeEnd == nil && m.Status == models.StatusAtPort {
		m.FreeTimeEnd = old.FreeTimeEnd
		m.FreeTimeRemaining = old.FreeTimeRemaining
		m.DDRisk = old.DDRisk
	}
	m.UpdateHistory = old.UpdateHistory
	return m
}

func diffRecords(prev, next *models.CanonicalRecord) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)
	for _, f := range trackedFields {
		from, to := f.get(prev), f.get(next)
		if !sameValue(from, to) {
			changes[f.name] = models.FieldChange{From: from, To: to}
		}
	}
	return changes
}

func sameValue(a, b interface{}) bool {
	la, aIsLoc := a.(*models.Location)
	lb, bIsLoc := b.(*models.Location)
	if aIsLoc && bIsLoc {
		return la.Equal(lb)
	}
	return a == b
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
