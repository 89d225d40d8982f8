package helpers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
)

// ARGPageSize is the largest page the Resource Graph API returns.
const ARGPageSize int32 = 1000

// ARGQueryOptions represents options for executing an ARG query
type ARGQueryOptions struct {
	// Subscriptions to query. If nil, queries all accessible subscriptions
	Subscriptions []string
	// Maximum number of records per page. If 0, uses ARGPageSize
	Top int32
	// Continuation token from the previous page
	SkipToken string
}

type resourcesClient interface {
	Resources(ctx context.Context, query armresourcegraph.QueryRequest, options *armresourcegraph.ClientResourcesOptions) (armresourcegraph.ClientResourcesResponse, error)
}

// ARGClient wraps the ARG client for easier use
type ARGClient struct {
	client resourcesClient
	logger *slog.Logger
}

// NewARGClient creates a new ARG client from an existing credential
func NewARGClient(cred azcore.TokenCredential, logger *slog.Logger) (*ARGClient, error) {
	client, err := armresourcegraph.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARG client: %w", err)
	}
	return newARGClient(client, logger), nil
}

func newARGClient(client resourcesClient, logger *slog.Logger) *ARGClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ARGClient{
		client: client,
		logger: logger.With("component", "ARGClient"),
	}
}

// ExecuteQuery runs a single page of an ARG query
func (c *ARGClient) ExecuteQuery(ctx context.Context, query string, opts *ARGQueryOptions) (*armresourcegraph.ClientResourcesResponse, error) {
	if opts == nil {
		opts = &ARGQueryOptions{}
	}

	top := opts.Top
	if top <= 0 || top > ARGPageSize {
		top = ARGPageSize
	}
	options := &armresourcegraph.QueryRequestOptions{
		ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
		Top:          to.Ptr(top),
	}
	if opts.SkipToken != "" {
		options.SkipToken = to.Ptr(opts.SkipToken)
	}

	var subPtrs []*string
	for _, sub := range opts.Subscriptions {
		subPtrs = append(subPtrs, to.Ptr(sub))
	}

	request := armresourcegraph.QueryRequest{
		Query:         to.Ptr(query),
		Options:       options,
		Subscriptions: subPtrs,
	}

	response, err := c.client.Resources(ctx, request, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ARG query: %w", err)
	}

	return &response, nil
}

// ExecutePaginatedQuery executes an ARG query and follows the skip token until
// the service stops returning one
func (c *ARGClient) ExecutePaginatedQuery(ctx context.Context, query string, opts *ARGQueryOptions, callback func(response *armresourcegraph.ClientResourcesResponse) error) error {
	if opts == nil {
		opts = &ARGQueryOptions{}
	}

	currentOpts := *opts
	for page := 1; ; page++ {
		response, err := c.ExecuteQuery(ctx, query, &currentOpts)
		if err != nil {
			return err
		}

		if err := callback(response); err != nil {
			return err
		}

		if response.SkipToken == nil || *response.SkipToken == "" {
			c.logger.Debug("ARG query complete", "pages", page)
			return nil
		}
		currentOpts.SkipToken = *response.SkipToken
	}
}

// QueryAll returns every row of a query across all pages.
func (c *ARGClient) QueryAll(ctx context.Context, query string, subscriptions []string) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.ExecutePaginatedQuery(ctx, query, &ARGQueryOptions{Subscriptions: subscriptions}, func(response *armresourcegraph.ClientResourcesResponse) error {
		page, err := ProcessQueryResponse(response)
		if err != nil {
			return err
		}
		rows = append(rows, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ProcessQueryResponse converts an object-array response into rows
func ProcessQueryResponse(response *armresourcegraph.ClientResourcesResponse) ([]map[string]any, error) {
	if response == nil || response.Data == nil {
		return nil, nil
	}

	data, ok := response.Data.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response data type %T", response.Data)
	}

	rows := make([]map[string]any, 0, len(data))
	for _, row := range data {
		item, ok := row.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, item)
	}
	return rows, nil
}
