// Package activitylog reads control-plane operation records for managed disks
// and virtual machines from the Azure Activity Log.
package activitylog

import (
	"context"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
)

const (
	DiskResourceType = "Microsoft.Compute/disks"
	VMResourceType   = "Microsoft.Compute/virtualMachines"

	statusSucceeded = "Succeeded"
)

// Kind labels which of the two per-subscription reads a result belongs to.
type Kind string

const (
	KindDisk    Kind = "disk"
	KindVMWrite Kind = "vm-write"
)

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}

// Event is the subset of an Activity Log record the audit uses.
type Event struct {
	Time           time.Time
	SubscriptionID string
	ResourceGroup  string
	ResourceID     string
	ResourceType   string
	Operation      string
	Status         string
	Caller         string
	CorrelationID  string
	RequestBody    string
	ResponseBody   string
}

// Query selects successful events of one resource type within a window.
type Query struct {
	SubscriptionID  string
	Kind            Kind
	Window          Window
	ResourceType    string
	OperationSuffix string
}

// DiskQuery selects every successful managed disk operation.
func DiskQuery(subscriptionID string, w Window) Query {
	return Query{
		SubscriptionID: subscriptionID,
		Kind:           KindDisk,
		Window:         w,
		ResourceType:   DiskResourceType,
	}
}

// VMWriteQuery selects successful virtual machine write operations.
func VMWriteQuery(subscriptionID string, w Window) Query {
	return Query{
		SubscriptionID:  subscriptionID,
		Kind:            KindVMWrite,
		Window:          w,
		ResourceType:    VMResourceType,
		OperationSuffix: "/write",
	}
}

// Matches applies the query to an event. Comparisons ignore case because the
// Activity Log is not consistent about it.
func (q Query) Matches(e Event) bool {
	if !strings.EqualFold(e.Status, statusSucceeded) {
		return false
	}
	if !q.Window.Contains(e.Time) {
		return false
	}
	if q.SubscriptionID != "" && e.SubscriptionID != "" && !strings.EqualFold(q.SubscriptionID, e.SubscriptionID) {
		return false
	}
	if !strings.EqualFold(e.ResourceType, q.ResourceType) {
		return false
	}
	if q.OperationSuffix != "" && !strings.HasSuffix(strings.ToLower(e.Operation), strings.ToLower(q.OperationSuffix)) {
		return false
	}
	return true
}

// Reader returns the events selected by a query.
type Reader interface {
	Read(ctx context.Context, q Query) ([]Event, error)
}

// Result is the outcome of one read for one subscription. A failed read
// carries Err and no events; the caller decides how to report it.
type Result struct {
	SubscriptionID string
	Kind           Kind
	Events         []Event
	Err            error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

// Collect runs one query and wraps the outcome. No retry is attempted.
func Collect(ctx context.Context, r Reader, q Query) Result {
	events, err := r.Read(ctx, q)
	if err != nil {
		return Result{SubscriptionID: q.SubscriptionID, Kind: q.Kind, Err: err}
	}
	return Result{SubscriptionID: q.SubscriptionID, Kind: q.Kind, Events: events}
}

// fromEventData flattens an SDK record. Request and response bodies live in
// the free-form properties bag under inconsistent key casing.
func fromEventData(d *armmonitor.EventData) Event {
	var e Event
	if d == nil {
		return e
	}
	if d.EventTimestamp != nil {
		e.Time = d.EventTimestamp.UTC()
	}
	e.SubscriptionID = deref(d.SubscriptionID)
	e.ResourceGroup = deref(d.ResourceGroupName)
	e.ResourceID = deref(d.ResourceID)
	e.ResourceType = localizable(d.ResourceType)
	e.Operation = localizable(d.OperationName)
	e.Status = localizable(d.Status)
	e.Caller = deref(d.Caller)
	e.CorrelationID = deref(d.CorrelationID)

	for k, v := range d.Properties {
		switch strings.ToLower(k) {
		case "requestbody":
			e.RequestBody = deref(v)
		case "responsebody":
			e.ResponseBody = deref(v)
		}
	}
	return e
}

func localizable(s *armmonitor.LocalizableString) string {
	if s == nil {
		return ""
	}
	return deref(s.Value)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
