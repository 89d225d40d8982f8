// Package disks turns Activity Log disk operations and inventory rows into
// the disk changes report.
package disks

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/helpers"
	"github.com/praetorian-inc/diskaudit/pkg/activitylog"
	"github.com/praetorian-inc/diskaudit/pkg/extract"
	"github.com/praetorian-inc/diskaudit/pkg/inventory"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

const (
	fieldSize       = "diskSizeGB"
	fieldSku        = "sku.name"
	fieldEncryption = "encryption.type"
	fieldLocation   = "location"
)

// Aggregator accumulates disk change records. It is not safe for concurrent
// use; the audit feeds it from a single goroutine.
type Aggregator struct {
	records []types.DiskChangeRecord
	logger  *slog.Logger
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger.With("component", "DiskAggregator")}
}

// ClassifyOperation maps an operation name to a change type by its suffix.
// Anything unrecognised is treated as an update.
func ClassifyOperation(operation string) types.DiskChangeType {
	op := strings.ToLower(operation)
	switch {
	case strings.HasSuffix(op, "/delete"):
		return types.DiskDeleted
	case strings.HasSuffix(op, "/create"):
		return types.DiskCreated
	case strings.HasSuffix(op, "/write"):
		return types.DiskUpdated
	default:
		return types.DiskUpdated
	}
}

// AddActivityEvents appends one record per event, in the order given.
func (a *Aggregator) AddActivityEvents(events []activitylog.Event) int {
	for _, e := range events {
		a.records = append(a.records, recordFromEvent(e))
	}
	if len(events) > 0 {
		a.logger.Debug("Added activity log disk events", "count", len(events))
	}
	return len(events)
}

func recordFromEvent(e activitylog.Event) types.DiskChangeRecord {
	id := helpers.ParseResourceID(e.ResourceID)

	rec := types.DiskChangeRecord{
		ChangeType:          ClassifyOperation(e.Operation),
		DiskName:            id.Name,
		SubscriptionID:      firstNonEmpty(id.SubscriptionID, e.SubscriptionID),
		ResourceGroup:       firstNonEmpty(id.ResourceGroup, e.ResourceGroup),
		EventTime:           e.Time,
		Operation:           e.Operation,
		Caller:              e.Caller,
		RequestedSizeGB:     bodyInt(e, fieldSize),
		RequestedSku:        bodyString(e, fieldSku),
		RequestedEncryption: bodyString(e, fieldEncryption),
		Source:              types.SourceActivityLog,
		ResourceID:          e.ResourceID,
		CorrelationID:       e.CorrelationID,
	}
	if loc := bodyString(e, fieldLocation); loc != nil {
		rec.Location = *loc
	}
	return rec
}

func bodyInt(e activitylog.Event, field string) *int64 {
	if v := extract.Int(e.RequestBody, field); v != nil {
		return v
	}
	return extract.Int(e.ResponseBody, field)
}

func bodyString(e activitylog.Event, field string) *string {
	if v := extract.String(e.RequestBody, field); v != nil {
		return v
	}
	return extract.String(e.ResponseBody, field)
}

type diskKey struct {
	subscription  string
	resourceGroup string
	name          string
}

// Backfill adds a Graph-sourced Created record for every inventory row created
// at or after since that has no Created record yet. The match is exact, so a
// row differing only in case from an existing record is added again.
func (a *Aggregator) Backfill(rows []inventory.Row, since time.Time) int {
	seen := make(map[diskKey]struct{})
	for _, r := range a.records {
		if r.ChangeType == types.DiskCreated {
			seen[diskKey{r.SubscriptionID, r.ResourceGroup, r.DiskName}] = struct{}{}
		}
	}

	added := 0
	for _, row := range rows {
		if row.TimeCreated == nil || row.TimeCreated.Before(since) {
			continue
		}
		key := diskKey{row.SubscriptionID, row.ResourceGroup, row.DiskName}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		rec := types.DiskChangeRecord{
			ChangeType:      types.DiskCreated,
			DiskName:        row.DiskName,
			SubscriptionID:  row.SubscriptionID,
			ResourceGroup:   row.ResourceGroup,
			Location:        row.Location,
			EventTime:       *row.TimeCreated,
			Operation:       "Microsoft.Compute/disks/write",
			RequestedSizeGB: int64Ptr(row.DiskSizeGB),
			Source:          types.SourceGraph,
			ResourceID:      row.ResourceID,
		}
		if row.Sku != "" {
			rec.RequestedSku = stringPtr(row.Sku)
		}
		if row.EncryptionType != "" {
			rec.RequestedEncryption = stringPtr(row.EncryptionType)
		}
		a.records = append(a.records, rec)
		added++
	}
	a.logger.Debug("Backfilled created disks from inventory", "rows", len(rows), "added", added)
	return added
}

// Enrich copies the current state of each disk onto its records. Location is
// replaced whenever the inventory knows it; the current size, SKU and owner are
// only set on records that do not have them yet.
func (a *Aggregator) Enrich(rows []inventory.Row) int {
	lookup := make(map[diskKey]inventory.Row, len(rows))
	for _, row := range rows {
		k := foldKey(row.SubscriptionID, row.ResourceGroup, row.DiskName)
		if _, dup := lookup[k]; !dup {
			lookup[k] = row
		}
	}

	enriched := 0
	for i := range a.records {
		rec := &a.records[i]
		row, ok := lookup[foldKey(rec.SubscriptionID, rec.ResourceGroup, rec.DiskName)]
		if !ok {
			continue
		}
		if row.Location != "" {
			rec.Location = row.Location
		}
		if rec.CurrentSizeGB == nil {
			rec.CurrentSizeGB = int64Ptr(row.DiskSizeGB)
		}
		if rec.CurrentSku == nil && row.Sku != "" {
			rec.CurrentSku = stringPtr(row.Sku)
		}
		if rec.ManagedBy == nil {
			rec.ManagedBy = stringPtr(row.ManagedBy)
		}
		enriched++
	}
	a.logger.Debug("Enriched disk changes", "inventory", len(rows), "matched", enriched)
	return enriched
}

// Changes returns a copy of the records ordered by event time. Records with
// equal times keep the order they were added in.
func (a *Aggregator) Changes() []types.DiskChangeRecord {
	out := make([]types.DiskChangeRecord, len(a.records))
	copy(out, a.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out
}

func (a *Aggregator) Len() int {
	return len(a.records)
}

func foldKey(sub, rg, name string) diskKey {
	return diskKey{strings.ToLower(sub), strings.ToLower(rg), strings.ToLower(name)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// int64Ptr copies v so records never share the inventory row's value.
func int64Ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func stringPtr(s string) *string {
	return &s
}
