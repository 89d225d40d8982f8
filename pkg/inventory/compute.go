package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute"
	"github.com/praetorian-inc/diskaudit/internal/helpers"
)

type diskPagerFactory func(subscriptionID string) (*runtime.Pager[armcompute.DisksClientListResponse], error)

// ComputeInventory lists disks through the Compute Disks API, one subscription
// at a time. It needs no Resource Graph access, at the cost of one list call
// per subscription.
type ComputeInventory struct {
	newPager diskPagerFactory
	logger   *slog.Logger
}

func NewComputeInventory(cred azcore.TokenCredential, logger *slog.Logger) *ComputeInventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComputeInventory{
		newPager: func(subscriptionID string) (*runtime.Pager[armcompute.DisksClientListResponse], error) {
			client, err := armcompute.NewDisksClient(subscriptionID, cred, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create disks client: %w", err)
			}
			return client.NewListPager(nil), nil
		},
		logger: logger.With("component", "ComputeInventory"),
	}
}

func (c *ComputeInventory) Name() string { return string(ModeCompute) }

func (c *ComputeInventory) RecentlyCreated(ctx context.Context, subscriptions []string, since time.Time) ([]Row, error) {
	all, err := c.Disks(ctx, subscriptions)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range all {
		if r.TimeCreated != nil && !r.TimeCreated.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Disks lists every subscription. A subscription that fails is logged and
// skipped; the call only fails when every subscription failed.
func (c *ComputeInventory) Disks(ctx context.Context, subscriptions []string) ([]Row, error) {
	var (
		rows     []Row
		failures int
		lastErr  error
	)
	for _, sub := range subscriptions {
		subRows, err := c.listSubscription(ctx, sub)
		if err != nil {
			failures++
			lastErr = err
			c.logger.Warn("Failed to list disks", "subscription", sub, "error", err)
			continue
		}
		rows = append(rows, subRows...)
	}
	if len(subscriptions) > 0 && failures == len(subscriptions) {
		return nil, fmt.Errorf("failed to list disks in all %d subscriptions: %w", failures, lastErr)
	}
	return rows, nil
}

func (c *ComputeInventory) listSubscription(ctx context.Context, subscriptionID string) ([]Row, error) {
	pager, err := c.newPager(subscriptionID)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get next page of disks: %w", err)
		}
		for _, disk := range page.Value {
			if disk == nil {
				continue
			}
			row := rowFromDisk(disk)
			if row.SubscriptionID == "" {
				row.SubscriptionID = subscriptionID
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func rowFromDisk(disk *armcompute.Disk) Row {
	var row Row
	if disk.ID != nil {
		row.ResourceID = *disk.ID
		id := helpers.ParseResourceID(row.ResourceID)
		row.SubscriptionID = id.SubscriptionID
		row.ResourceGroup = id.ResourceGroup
	}
	if disk.Name != nil {
		row.DiskName = *disk.Name
	}
	if disk.Location != nil {
		row.Location = *disk.Location
	}
	if disk.ManagedBy != nil {
		row.ManagedBy = *disk.ManagedBy
	}
	if disk.SKU != nil && disk.SKU.Name != nil {
		row.Sku = string(*disk.SKU.Name)
	}
	if p := disk.Properties; p != nil {
		if p.DiskSizeGB != nil {
			size := int64(*p.DiskSizeGB)
			row.DiskSizeGB = &size
		}
		if p.TimeCreated != nil {
			created := p.TimeCreated.UTC()
			row.TimeCreated = &created
		}
		if p.OSType != nil {
			row.OSType = string(*p.OSType)
		}
		if p.Encryption != nil && p.Encryption.Type != nil {
			row.EncryptionType = string(*p.Encryption.Type)
		}
	}
	return row
}
