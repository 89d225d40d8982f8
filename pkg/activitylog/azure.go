package activitylog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
)

// pagerFactory returns the Activity Log pager for one subscription. It exists
// so tests can substitute canned pages.
type pagerFactory func(subscriptionID, filter string) (*runtime.Pager[armmonitor.ActivityLogsClientListResponse], error)

// AzureReader reads from the Azure Monitor Activity Log API.
type AzureReader struct {
	newPager pagerFactory
	logger   *slog.Logger
}

// NewAzureReader creates a reader that builds one Activity Log client per
// subscription from the shared credential.
func NewAzureReader(cred azcore.TokenCredential, logger *slog.Logger) *AzureReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureReader{
		newPager: func(subscriptionID, filter string) (*runtime.Pager[armmonitor.ActivityLogsClientListResponse], error) {
			client, err := armmonitor.NewActivityLogsClient(subscriptionID, cred, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create activity log client: %w", err)
			}
			return client.NewListPager(filter, nil), nil
		},
		logger: logger.With("component", "ActivityLogReader"),
	}
}

// Filter builds the server-side filter. The API cannot filter on resource type
// and status together, so those are applied client side by Query.Matches.
func Filter(q Query) string {
	end := q.Window.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	provider := q.ResourceType
	if i := strings.Index(provider, "/"); i > 0 {
		provider = provider[:i]
	}
	return fmt.Sprintf("eventTimestamp ge '%s' and eventTimestamp le '%s' and resourceProvider eq '%s'",
		q.Window.Start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), provider)
}

func (r *AzureReader) Read(ctx context.Context, q Query) ([]Event, error) {
	filter := Filter(q)
	r.logger.Debug("Querying activity log", "subscription", q.SubscriptionID, "kind", q.Kind, "filter", filter)

	pager, err := r.newPager(q.SubscriptionID, filter)
	if err != nil {
		return nil, err
	}

	var events []Event
	scanned := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list activity log for subscription %s: %w", q.SubscriptionID, err)
		}
		for _, d := range page.Value {
			scanned++
			e := fromEventData(d)
			if e.SubscriptionID == "" {
				e.SubscriptionID = q.SubscriptionID
			}
			if q.Matches(e) {
				events = append(events, e)
			}
		}
	}

	r.logger.Debug("Activity log read", "subscription", q.SubscriptionID, "kind", q.Kind, "scanned", scanned, "matched", len(events))
	return events, nil
}
