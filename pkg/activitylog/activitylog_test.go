package activitylog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/praetorian-inc/diskaudit/internal/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	windowStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	window      = Window{Start: windowStart, End: windowEnd}
)

func TestQueryMatches(t *testing.T) {
	base := Event{
		Time:           windowStart.Add(time.Hour),
		SubscriptionID: "sub-1",
		ResourceType:   "Microsoft.Compute/virtualMachines",
		Operation:      "Microsoft.Compute/virtualMachines/write",
		Status:         "Succeeded",
	}

	testCases := []struct {
		name     string
		query    Query
		mutate   func(e *Event)
		expected bool
	}{
		{name: "vm write", query: VMWriteQuery("sub-1", window), expected: true},
		{name: "status case ignored", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Status = "succeeded" }, expected: true},
		{name: "started is skipped", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Status = "Started" }, expected: false},
		{name: "failed is skipped", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Status = "Failed" }, expected: false},
		{name: "start is inclusive", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Time = windowStart }, expected: true},
		{name: "end is exclusive", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Time = windowEnd }, expected: false},
		{name: "before window", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Time = windowStart.Add(-time.Second) }, expected: false},
		{name: "open ended window", query: VMWriteQuery("sub-1", Window{Start: windowStart}), mutate: func(e *Event) { e.Time = windowEnd.AddDate(1, 0, 0) }, expected: true},
		{name: "vm delete is not a write", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.Operation = "Microsoft.Compute/virtualMachines/delete" }, expected: false},
		{name: "resource type case ignored", query: VMWriteQuery("sub-1", window), mutate: func(e *Event) { e.ResourceType = "microsoft.compute/VIRTUALMACHINES" }, expected: true},
		{name: "disk query rejects vm", query: DiskQuery("sub-1", window), expected: false},
		{name: "disk query takes any operation", query: DiskQuery("sub-1", window), mutate: func(e *Event) {
			e.ResourceType = DiskResourceType
			e.Operation = "Microsoft.Compute/disks/beginGetAccess/action"
		}, expected: true},
		{name: "other subscription", query: VMWriteQuery("sub-2", window), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := base
			if tc.mutate != nil {
				tc.mutate(&e)
			}
			assert.Equal(t, tc.expected, tc.query.Matches(e))
		})
	}
}

func TestFilter(t *testing.T) {
	f := Filter(DiskQuery("sub-1", window))
	assert.Equal(t, "eventTimestamp ge '2024-03-01T00:00:00Z' and eventTimestamp le '2024-04-01T00:00:00Z' and resourceProvider eq 'Microsoft.Compute'", f)
}

type failingReader struct{ err error }

func (r failingReader) Read(ctx context.Context, q Query) ([]Event, error) { return nil, r.err }

func TestCollectWrapsFailure(t *testing.T) {
	boom := errors.New("AuthorizationFailed")
	res := Collect(context.Background(), failingReader{err: boom}, DiskQuery("sub-1", window))

	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, res.Events)
	assert.Equal(t, "sub-1", res.SubscriptionID)
	assert.Equal(t, KindDisk, res.Kind)
}

func eventData(sub, resourceType, op, status string, ts time.Time, body string) *armmonitor.EventData {
	d := &armmonitor.EventData{
		SubscriptionID: to.Ptr(sub),
		ResourceType:   &armmonitor.LocalizableString{Value: to.Ptr(resourceType)},
		OperationName:  &armmonitor.LocalizableString{Value: to.Ptr(op)},
		Status:         &armmonitor.LocalizableString{Value: to.Ptr(status)},
		EventTimestamp: to.Ptr(ts),
		Caller:         to.Ptr("alice@contoso.com"),
		CorrelationID:  to.Ptr("corr-1"),
		ResourceID:     to.Ptr("/subscriptions/" + sub + "/resourceGroups/rg/providers/" + resourceType + "/x"),
	}
	if body != "" {
		d.Properties = map[string]*string{"responseBody": to.Ptr(body)}
	}
	return d
}

func TestFromEventData(t *testing.T) {
	ts := windowStart.Add(2 * time.Hour)
	d := eventData("sub-1", DiskResourceType, "Microsoft.Compute/disks/write", "Succeeded", ts, `{"a":1}`)
	d.Properties["RequestBody"] = to.Ptr(`{"b":2}`)
	d.ResourceGroupName = to.Ptr("rg")

	e := fromEventData(d)
	assert.Equal(t, ts, e.Time)
	assert.Equal(t, "sub-1", e.SubscriptionID)
	assert.Equal(t, "rg", e.ResourceGroup)
	assert.Equal(t, DiskResourceType, e.ResourceType)
	assert.Equal(t, "Microsoft.Compute/disks/write", e.Operation)
	assert.Equal(t, "Succeeded", e.Status)
	assert.Equal(t, "alice@contoso.com", e.Caller)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, `{"b":2}`, e.RequestBody)
	assert.Equal(t, `{"a":1}`, e.ResponseBody)

	assert.Equal(t, Event{}, fromEventData(nil))
}

func TestAzureReaderPagesAndFilters(t *testing.T) {
	pages := [][]*armmonitor.EventData{
		{
			eventData("sub-1", VMResourceType, "Microsoft.Compute/virtualMachines/write", "Started", windowStart.Add(time.Hour), ""),
			eventData("sub-1", VMResourceType, "Microsoft.Compute/virtualMachines/write", "Succeeded", windowStart.Add(time.Hour), ""),
		},
		{
			eventData("sub-1", DiskResourceType, "Microsoft.Compute/disks/write", "Succeeded", windowStart.Add(2*time.Hour), ""),
			eventData("sub-1", VMResourceType, "Microsoft.Compute/virtualMachines/write", "Succeeded", windowStart.Add(3*time.Hour), ""),
		},
	}

	var gotFilter string
	r := &AzureReader{
		logger: logs.Discard(),
		newPager: func(subscriptionID, filter string) (*runtime.Pager[armmonitor.ActivityLogsClientListResponse], error) {
			gotFilter = filter
			i := 0
			return runtime.NewPager(runtime.PagingHandler[armmonitor.ActivityLogsClientListResponse]{
				More: func(armmonitor.ActivityLogsClientListResponse) bool { return i < len(pages) },
				Fetcher: func(ctx context.Context, _ *armmonitor.ActivityLogsClientListResponse) (armmonitor.ActivityLogsClientListResponse, error) {
					page := pages[i]
					i++
					return armmonitor.ActivityLogsClientListResponse{
						EventDataCollection: armmonitor.EventDataCollection{Value: page},
					}, nil
				},
			}), nil
		},
	}

	events, err := r.Read(context.Background(), VMWriteQuery("sub-1", window))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, windowStart.Add(time.Hour), events[0].Time)
	assert.Equal(t, windowStart.Add(3*time.Hour), events[1].Time)
	assert.Contains(t, gotFilter, "resourceProvider eq 'Microsoft.Compute'")
}

func TestAzureReaderPageError(t *testing.T) {
	r := &AzureReader{
		logger: logs.Discard(),
		newPager: func(subscriptionID, filter string) (*runtime.Pager[armmonitor.ActivityLogsClientListResponse], error) {
			return runtime.NewPager(runtime.PagingHandler[armmonitor.ActivityLogsClientListResponse]{
				More: func(armmonitor.ActivityLogsClientListResponse) bool { return true },
				Fetcher: func(ctx context.Context, _ *armmonitor.ActivityLogsClientListResponse) (armmonitor.ActivityLogsClientListResponse, error) {
					return armmonitor.ActivityLogsClientListResponse{}, errors.New("throttled")
				},
			}), nil
		},
	}

	events, err := r.Read(context.Background(), DiskQuery("sub-1", window))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Nil(t, events)
}

const exportRecordA = `{"caller":"alice@contoso.com","correlationId":"c1","eventTimestamp":"2024-03-02T10:00:00Z","operationName":{"value":"Microsoft.Compute/disks/write","localizedValue":"Create or Update Managed Disk"},"resourceGroupName":"rg-app","resourceId":"/subscriptions/sub-1/resourceGroups/rg-app/providers/Microsoft.Compute/disks/data1","resourceType":{"value":"Microsoft.Compute/disks"},"status":{"value":"Succeeded"},"subscriptionId":"sub-1","properties":{"requestbody":"{\"properties\":{\"diskSizeGB\":128}}"}}`
const exportRecordB = `{"caller":"bob@contoso.com","correlationId":"c2","eventTimestamp":"2024-03-03T10:00:00Z","operationName":{"value":"Microsoft.Compute/virtualMachines/write"},"resourceGroupName":"rg-app","resourceId":"/subscriptions/sub-2/resourceGroups/rg-app/providers/Microsoft.Compute/virtualMachines/vm1","resourceType":{"value":"Microsoft.Compute/virtualMachines"},"status":{"value":"Succeeded"},"subscriptionId":"sub-2"}`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileReaderFormats(t *testing.T) {
	formats := map[string]string{
		"array":   "[" + exportRecordA + "," + exportRecordB + "]",
		"wrapper": `{"value": [` + exportRecordA + "," + exportRecordB + `]}`,
		"lines":   exportRecordA + "\n\n" + exportRecordB + "\n",
	}

	for name, content := range formats {
		t.Run(name, func(t *testing.T) {
			r, err := NewFileReader(writeExport(t, content), logs.Discard())
			require.NoError(t, err)

			disks, err := r.Read(context.Background(), DiskQuery("sub-1", window))
			require.NoError(t, err)
			require.Len(t, disks, 1)
			assert.Equal(t, "c1", disks[0].CorrelationID)
			assert.Equal(t, `{"properties":{"diskSizeGB":128}}`, disks[0].RequestBody)
			assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), disks[0].Time)

			vms, err := r.Read(context.Background(), VMWriteQuery("sub-2", window))
			require.NoError(t, err)
			require.Len(t, vms, 1)
			assert.Equal(t, "bob@contoso.com", vms[0].Caller)

			none, err := r.Read(context.Background(), VMWriteQuery("sub-1", window))
			require.NoError(t, err)
			assert.Empty(t, none)

			subs, err := r.ListSubscriptions(context.Background())
			require.NoError(t, err)
			require.Len(t, subs, 2)
			assert.Equal(t, "sub-1", subs[0].ID)
			assert.Equal(t, "sub-2", subs[1].ID)
		})
	}
}

func TestFileReaderErrors(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "missing.json"), logs.Discard())
	assert.Error(t, err)

	_, err = NewFileReader(writeExport(t, "not json"), logs.Discard())
	assert.Error(t, err)

	_, err = NewFileReader(writeExport(t, exportRecordA+"\n{broken"), logs.Discard())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "line 2"))

	r, err := NewFileReader(writeExport(t, "  "), logs.Discard())
	require.NoError(t, err)
	events, err := r.Read(context.Background(), DiskQuery("sub-1", window))
	require.NoError(t, err)
	assert.Empty(t, events)
}
