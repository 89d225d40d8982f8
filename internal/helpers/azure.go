package helpers

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// NewAzureCredential returns a DefaultAzureCredential scoped to the tenant.
// An empty tenant leaves the choice to the environment.
func NewAzureCredential(tenantID string) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Azure credentials: %w", err)
	}
	return cred, nil
}

// SubscriptionLister lists the subscriptions visible to a credential.
type SubscriptionLister struct {
	cred azcore.TokenCredential
}

func NewSubscriptionLister(cred azcore.TokenCredential) *SubscriptionLister {
	return &SubscriptionLister{cred: cred}
}

// ListSubscriptions pages through every subscription the caller can see. This
// is the first authenticated call of a run, so a failure here usually means the
// session itself is unusable.
func (l *SubscriptionLister) ListSubscriptions(ctx context.Context) ([]types.Subscription, error) {
	subClient, err := armsubscriptions.NewClient(l.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	var subs []types.Subscription
	pager := subClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		for _, sub := range page.Value {
			if sub.SubscriptionID == nil {
				continue
			}
			s := types.Subscription{ID: *sub.SubscriptionID, DisplayName: *sub.SubscriptionID}
			if sub.DisplayName != nil {
				s.DisplayName = *sub.DisplayName
			}
			subs = append(subs, s)
		}
	}
	return subs, nil
}
