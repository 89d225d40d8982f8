// Package attach reconstructs disk attach and detach events by diffing the
// managed disks each virtual machine write referenced.
package attach

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/praetorian-inc/diskaudit/internal/helpers"
	"github.com/praetorian-inc/diskaudit/pkg/activitylog"
	"github.com/praetorian-inc/diskaudit/pkg/extract"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// Tracker collects VM disk snapshots keyed by VM. The first snapshot of a VM
// is only a baseline: disks it references are never reported as attached.
type Tracker struct {
	snapshots map[string][]types.VmDiskSnapshot
	logger    *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		snapshots: make(map[string][]types.VmDiskSnapshot),
		logger:    logger.With("component", "AttachTracker"),
	}
}

func (t *Tracker) Observe(s types.VmDiskSnapshot) {
	key := s.Key()
	t.snapshots[key] = append(t.snapshots[key], s)
}

// ObserveEvent records the disks referenced by a VM write. The response body
// holds the resulting VM model, so it is preferred over the request. Writes
// that reference no managed disks are skipped and reported as false.
func (t *Tracker) ObserveEvent(e activitylog.Event) bool {
	refs := extract.DiskReferences(e.ResponseBody)
	if len(refs) == 0 {
		refs = extract.DiskReferences(e.RequestBody)
	}
	if len(refs) == 0 {
		t.logger.Debug("VM write without disk references", "resource", e.ResourceID, "correlation", e.CorrelationID)
		return false
	}

	id := helpers.ParseResourceID(e.ResourceID)
	t.Observe(types.VmDiskSnapshot{
		Time:           e.Time,
		VMName:         id.Name,
		SubscriptionID: firstNonEmpty(id.SubscriptionID, e.SubscriptionID),
		ResourceGroup:  firstNonEmpty(id.ResourceGroup, e.ResourceGroup),
		DiskIDs:        refs,
		CorrelationID:  e.CorrelationID,
	})
	return true
}

// ObserveEvents feeds every event to ObserveEvent and returns how many were
// recorded.
func (t *Tracker) ObserveEvents(events []activitylog.Event) int {
	n := 0
	for _, e := range events {
		if t.ObserveEvent(e) {
			n++
		}
	}
	return n
}

// VMs returns how many distinct VMs have at least one snapshot.
func (t *Tracker) VMs() int {
	return len(t.snapshots)
}

// Diff compares each VM's consecutive snapshots. A disk that appears is
// Attached at the later snapshot. A disk that disappears is Detached with the
// later snapshot's time and correlation id but the earlier snapshot's VM
// attribution. Disk ids are compared without case, as ARM treats them, and
// each id is reported with the first spelling the tracker saw for it.
func (t *Tracker) Diff() []types.AttachChangeRecord {
	keys := make([]string, 0, len(t.snapshots))
	for key := range t.snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	spelling := make(map[string]string)
	var out []types.AttachChangeRecord
	for _, key := range keys {
		ordered := make([]types.VmDiskSnapshot, len(t.snapshots[key]))
		copy(ordered, t.snapshots[key])
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Time.Before(ordered[j].Time)
		})

		sets := make([]map[string]struct{}, len(ordered))
		for i, snap := range ordered {
			sets[i] = foldIDs(snap.DiskIDs, spelling)
		}

		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1], ordered[i]

			for _, id := range sortedIDs(sets[i]) {
				if _, ok := sets[i-1][id]; ok {
					continue
				}
				out = append(out, types.AttachChangeRecord{
					ChangeType:     types.DiskAttached,
					VMName:         cur.VMName,
					SubscriptionID: cur.SubscriptionID,
					ResourceGroup:  cur.ResourceGroup,
					DiskID:         spelling[id],
					EventTime:      cur.Time,
					Source:         types.SourceActivityLog,
					CorrelationID:  cur.CorrelationID,
				})
			}
			for _, id := range sortedIDs(sets[i-1]) {
				if _, ok := sets[i][id]; ok {
					continue
				}
				out = append(out, types.AttachChangeRecord{
					ChangeType:     types.DiskDetached,
					VMName:         prev.VMName,
					SubscriptionID: prev.SubscriptionID,
					ResourceGroup:  prev.ResourceGroup,
					DiskID:         spelling[id],
					EventTime:      cur.Time,
					Source:         types.SourceActivityLog,
					CorrelationID:  cur.CorrelationID,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EventTime.Equal(b.EventTime) {
			return a.EventTime.Before(b.EventTime)
		}
		if ka, kb := vmKey(a), vmKey(b); ka != kb {
			return ka < kb
		}
		if a.DiskID != b.DiskID {
			return a.DiskID < b.DiskID
		}
		return a.ChangeType < b.ChangeType
	})
	t.logger.Debug("Computed attach changes", "vms", len(t.snapshots), "changes", len(out))
	return out
}

func vmKey(r types.AttachChangeRecord) string {
	return strings.ToLower(r.SubscriptionID + "|" + r.ResourceGroup + "|" + r.VMName)
}

// foldIDs lower-cases a snapshot's disk ids, recording the first spelling of
// each one. Ids are visited in sorted order so the recorded spelling does not
// depend on map iteration.
func foldIDs(ids map[string]struct{}, spelling map[string]string) map[string]struct{} {
	folded := make(map[string]struct{}, len(ids))
	for _, id := range sortedIDs(ids) {
		k := strings.ToLower(id)
		folded[k] = struct{}{}
		if _, ok := spelling[k]; !ok {
			spelling[k] = id
		}
	}
	return folded
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
