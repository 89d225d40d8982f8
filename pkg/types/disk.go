package types

import (
	"strings"
	"time"
)

// ResourceIdentifier is the decomposition of an ARM resource path. Missing
// segments are left empty.
type ResourceIdentifier struct {
	SubscriptionID string
	ResourceGroup  string
	Provider       string
	Type           string
	Name           string
}

type DiskChangeType string

const (
	DiskCreated DiskChangeType = "Created"
	DiskUpdated DiskChangeType = "Updated"
	DiskDeleted DiskChangeType = "Deleted"
)

type AttachChangeType string

const (
	DiskAttached AttachChangeType = "Attached"
	DiskDetached AttachChangeType = "Detached"
)

// Source records where a change row was derived from.
type Source string

const (
	SourceActivityLog Source = "ActivityLog"
	SourceGraph       Source = "Graph"
)

// DiskChangeRecord is one row of the disk changes report.
type DiskChangeRecord struct {
	ChangeType          DiskChangeType
	DiskName            string
	SubscriptionID      string
	ResourceGroup       string
	Location            string
	EventTime           time.Time
	Operation           string
	Caller              string
	RequestedSizeGB     *int64
	RequestedSku        *string
	RequestedEncryption *string
	Source              Source
	ResourceID          string
	CorrelationID       string

	// Set by enrichment from the current inventory.
	CurrentSizeGB *int64
	CurrentSku    *string
	ManagedBy     *string
}

// Enriched reports whether any inventory field has been set on the record.
func (r *DiskChangeRecord) Enriched() bool {
	return r.CurrentSizeGB != nil || r.CurrentSku != nil || r.ManagedBy != nil
}

// VmDiskSnapshot is the set of managed disk ids referenced by one VM write.
type VmDiskSnapshot struct {
	Time           time.Time
	VMName         string
	SubscriptionID string
	ResourceGroup  string
	DiskIDs        map[string]struct{}
	CorrelationID  string
}

// Key groups snapshots of the same VM. Azure names are case-insensitive.
func (s VmDiskSnapshot) Key() string {
	return strings.ToLower(s.SubscriptionID + "|" + s.ResourceGroup + "|" + s.VMName)
}

// AttachChangeRecord is one row of the attach/detach report.
type AttachChangeRecord struct {
	ChangeType     AttachChangeType
	VMName         string
	SubscriptionID string
	ResourceGroup  string
	DiskID         string
	EventTime      time.Time
	Source         Source
	CorrelationID  string
}

// DiskInventoryRow is a point-in-time view of a managed disk from an inventory
// source. It is only used for backfill and enrichment.
type DiskInventoryRow struct {
	DiskName       string
	SubscriptionID string
	ResourceGroup  string
	Location       string
	ManagedBy      string
	DiskSizeGB     *int64
	Sku            string
	TimeCreated    *time.Time
	OSType         string
	EncryptionType string
	ResourceID     string
}

// Subscription is an Azure subscription the audit can run against.
type Subscription struct {
	ID          string
	DisplayName string
}
