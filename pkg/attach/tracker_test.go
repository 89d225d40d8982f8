package attach

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/logs"
	"github.com/praetorian-inc/diskaudit/pkg/activitylog"
	"github.com/praetorian-inc/diskaudit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func snapshot(vm string, at time.Time, corr string, ids ...string) types.VmDiskSnapshot {
	return types.VmDiskSnapshot{
		Time:           at,
		VMName:         vm,
		SubscriptionID: "sub-1",
		ResourceGroup:  "rg-app",
		DiskIDs:        set(ids...),
		CorrelationID:  corr,
	}
}

func vmPayload(ids ...string) string {
	var data []string
	for _, id := range ids[1:] {
		data = append(data, fmt.Sprintf(`{"lun":%d,"managedDisk":{"id":%q}}`, len(data), id))
	}
	return fmt.Sprintf(`{"properties":{"storageProfile":{"osDisk":{"managedDisk":{"id":%q}},"dataDisks":[%s]}}}`,
		ids[0], strings.Join(data, ","))
}

func vmEvent(at time.Time, corr, response string) activitylog.Event {
	return activitylog.Event{
		Time:           at,
		SubscriptionID: "sub-1",
		ResourceGroup:  "RG-APP",
		ResourceID:     "/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/virtualMachines/vm1",
		ResourceType:   activitylog.VMResourceType,
		Operation:      "Microsoft.Compute/virtualMachines/write",
		Status:         "Succeeded",
		CorrelationID:  corr,
		ResponseBody:   response,
	}
}

func TestDiffAttachAndDetach(t *testing.T) {
	tr := NewTracker(logs.Discard())
	tr.Observe(snapshot("vm1", t2, "corr-2", "B", "C"))
	tr.Observe(snapshot("vm1", t1, "corr-1", "A", "B"))

	changes := tr.Diff()
	require.Len(t, changes, 2)

	// Same time and VM, so ordered by disk id.
	detached, attached := changes[0], changes[1]
	assert.Equal(t, types.DiskAttached, attached.ChangeType)
	assert.Equal(t, "C", attached.DiskID)
	assert.Equal(t, t2, attached.EventTime)
	assert.Equal(t, "corr-2", attached.CorrelationID)

	assert.Equal(t, types.DiskDetached, detached.ChangeType)
	assert.Equal(t, "A", detached.DiskID)
	assert.Equal(t, t2, detached.EventTime)
	assert.Equal(t, "corr-2", detached.CorrelationID)

	for _, c := range changes {
		assert.NotEqual(t, "B", c.DiskID)
		assert.Equal(t, types.SourceActivityLog, c.Source)
	}
}

func TestDiffDetachUsesPreviousAttribution(t *testing.T) {
	tr := NewTracker(logs.Discard())
	prev := snapshot("VM1", t0, "corr-0", "A")
	prev.ResourceGroup = "RG-APP"
	tr.Observe(prev)
	tr.Observe(snapshot("vm1", t1, "corr-1", "B"))

	changes := tr.Diff()
	require.Len(t, changes, 2)

	var detached types.AttachChangeRecord
	for _, c := range changes {
		if c.ChangeType == types.DiskDetached {
			detached = c
		}
	}
	assert.Equal(t, "VM1", detached.VMName)
	assert.Equal(t, "RG-APP", detached.ResourceGroup)
	assert.Equal(t, t1, detached.EventTime)
	assert.Equal(t, "corr-1", detached.CorrelationID)
}

func TestDiffSingleSnapshot(t *testing.T) {
	tr := NewTracker(logs.Discard())
	tr.Observe(snapshot("vm1", t0, "corr-0", "OS", "DATA1"))
	assert.Empty(t, tr.Diff())
	assert.Equal(t, 1, tr.VMs())
}

func TestDiffKeepsVMsApart(t *testing.T) {
	tr := NewTracker(logs.Discard())
	tr.Observe(snapshot("vm1", t0, "a", "X"))
	tr.Observe(snapshot("vm2", t1, "b", "Y"))
	assert.Empty(t, tr.Diff())
	assert.Equal(t, 2, tr.VMs())
}

func TestDiffOrdering(t *testing.T) {
	tr := NewTracker(logs.Discard())
	tr.Observe(snapshot("vm2", t0, "a", "OS2"))
	tr.Observe(snapshot("vm2", t1, "b", "OS2", "D2", "D1"))
	tr.Observe(snapshot("vm1", t0, "c", "OS1"))
	tr.Observe(snapshot("vm1", t1, "d", "OS1", "D3"))

	changes := tr.Diff()
	require.Len(t, changes, 3)
	assert.Equal(t, "vm1", changes[0].VMName)
	assert.Equal(t, "D3", changes[0].DiskID)
	assert.Equal(t, "D1", changes[1].DiskID)
	assert.Equal(t, "D2", changes[2].DiskID)
	for i := 1; i < len(changes); i++ {
		assert.False(t, changes[i].EventTime.Before(changes[i-1].EventTime))
	}
}

func TestObserveEventsThreeWrites(t *testing.T) {
	const (
		osDisk = "/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/disks/os"
		data1  = "/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/disks/data1"
		data2  = "/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/disks/data2"
	)
	tr := NewTracker(logs.Discard())
	n := tr.ObserveEvents([]activitylog.Event{
		vmEvent(t0, "corr-0", vmPayload(osDisk)),
		vmEvent(t1, "corr-1", vmPayload(osDisk, data1)),
		vmEvent(t2, "corr-2", vmPayload(osDisk, data1, data2)),
	})
	assert.Equal(t, 3, n)

	changes := tr.Diff()
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, types.DiskAttached, c.ChangeType)
		assert.Equal(t, "vm1", c.VMName)
		assert.Equal(t, "sub-1", c.SubscriptionID)
		assert.Equal(t, "rg-app", c.ResourceGroup)
	}
	assert.Equal(t, data1, changes[0].DiskID)
	assert.Equal(t, t1, changes[0].EventTime)
	assert.Equal(t, data2, changes[1].DiskID)
	assert.Equal(t, t2, changes[1].EventTime)
}

func TestObserveEventFallsBackToRequest(t *testing.T) {
	tr := NewTracker(logs.Discard())
	e := vmEvent(t0, "corr-0", "")
	e.RequestBody = vmPayload("OS")
	assert.True(t, tr.ObserveEvent(e))

	empty := vmEvent(t1, "corr-1", `{"properties":{"hardwareProfile":{"vmSize":"Standard_D2s_v5"}}}`)
	assert.False(t, tr.ObserveEvent(empty))

	tr.Observe(snapshot("vm1", t2, "corr-2", "OS", "NEW"))
	changes := tr.Diff()
	require.Len(t, changes, 1)
	assert.Equal(t, "NEW", changes[0].DiskID)
	assert.Equal(t, t2, changes[0].EventTime)
}

func TestDiffDiskIDsCoverSnapshots(t *testing.T) {
	tr := NewTracker(logs.Discard())
	tr.Observe(snapshot("vm1", t0, "a", "A", "B"))
	tr.Observe(snapshot("vm1", t1, "b", "C"))
	tr.Observe(snapshot("vm1", t2, "c", "A"))

	seen := set("A", "B", "C")
	for _, c := range tr.Diff() {
		_, ok := seen[c.DiskID]
		assert.True(t, ok, c.DiskID)
	}
}

func TestDiffIgnoresDiskIDCasing(t *testing.T) {
	const (
		osLower = "/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/disks/os"
		osUpper = "/subscriptions/sub-1/resourceGroups/RG-APP/providers/Microsoft.Compute/disks/os"
		data1   = "/subscriptions/sub-1/resourceGroups/RG-APP/providers/Microsoft.Compute/disks/data1"
		data1Lc = "/subscriptions/sub-1/resourceGroups/rg-app/providers/microsoft.compute/disks/data1"
	)
	tr := NewTracker(logs.Discard())
	tr.ObserveEvents([]activitylog.Event{
		vmEvent(t0, "corr-0", vmPayload(osLower)),
		vmEvent(t1, "corr-1", vmPayload(osUpper, data1)),
		vmEvent(t2, "corr-2", vmPayload(osUpper)),
	})

	changes := tr.Diff()
	require.Len(t, changes, 2)

	assert.Equal(t, types.DiskAttached, changes[0].ChangeType)
	assert.Equal(t, data1, changes[0].DiskID)
	assert.Equal(t, t1, changes[0].EventTime)

	assert.Equal(t, types.DiskDetached, changes[1].ChangeType)
	assert.Equal(t, data1, changes[1].DiskID)
	assert.Equal(t, t2, changes[1].EventTime)

	for _, c := range changes {
		assert.NotEqual(t, osUpper, c.DiskID)
		assert.NotEqual(t, osLower, c.DiskID)
	}

	// The first spelling seen is reported, even when a later write differs.
	tr.Observe(snapshot("vm2", t0, "a", "X"))
	tr.Observe(snapshot("vm2", t1, "b", "X", data1Lc))
	for _, c := range tr.Diff() {
		if c.VMName == "vm2" {
			assert.Equal(t, data1, c.DiskID)
		}
	}
}
