package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/helpers"
	"github.com/praetorian-inc/diskaudit/pkg/templates"
)

// Querier runs a Resource Graph query to completion. helpers.ARGClient is the
// production implementation.
type Querier interface {
	QueryAll(ctx context.Context, query string, subscriptions []string) ([]map[string]any, error)
}

// requiredColumns are the projected columns a row cannot be built without. A
// template overridden from --template-dir must still declare them.
var requiredColumns = map[string][]string{
	templates.RecentlyCreatedDisks: {"name", "subscriptionId", "resourceGroup", "timeCreated"},
	templates.DiskMetadata:         {"name", "subscriptionId", "resourceGroup"},
}

// GraphInventory answers inventory questions with Azure Resource Graph.
type GraphInventory struct {
	querier   Querier
	templates *templates.TemplateLoader
	logger    *slog.Logger
}

func NewGraphInventory(q Querier, loader *templates.TemplateLoader, logger *slog.Logger) *GraphInventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphInventory{
		querier:   q,
		templates: loader,
		logger:    logger.With("component", "GraphInventory"),
	}
}

func (g *GraphInventory) Name() string { return string(ModeGraph) }

func (g *GraphInventory) RecentlyCreated(ctx context.Context, subscriptions []string, since time.Time) ([]Row, error) {
	rows, err := g.run(ctx, templates.RecentlyCreatedDisks, templates.QueryParams{Start: since.UTC().Format(time.RFC3339)}, subscriptions)
	if err != nil {
		return nil, err
	}

	// The query already filters, but rows without a parseable creation time
	// cannot be placed in the window.
	out := rows[:0]
	for _, r := range rows {
		if r.TimeCreated != nil && !r.TimeCreated.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *GraphInventory) Disks(ctx context.Context, subscriptions []string) ([]Row, error) {
	return g.run(ctx, templates.DiskMetadata, templates.QueryParams{}, subscriptions)
}

func (g *GraphInventory) run(ctx context.Context, templateID string, params templates.QueryParams, subscriptions []string) ([]Row, error) {
	tmpl, err := g.templates.Get(templateID)
	if err != nil {
		return nil, err
	}
	if missing := tmpl.MissingColumns(requiredColumns[templateID]...); len(missing) > 0 {
		return nil, fmt.Errorf("template %s does not declare required columns: %s", templateID, strings.Join(missing, ", "))
	}
	query, err := tmpl.Render(params)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Running inventory query", "template", templateID, "subscriptions", len(subscriptions))
	raw, err := g.querier.QueryAll(ctx, query, subscriptions)
	if err != nil {
		return nil, fmt.Errorf("inventory query %s failed: %w", templateID, err)
	}

	rows := make([]Row, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, rowFromGraph(item))
	}
	g.logger.Debug("Inventory query complete", "template", templateID, "rows", len(rows))
	return rows, nil
}

func rowFromGraph(item map[string]any) Row {
	row := Row{
		ResourceID:     stringValue(item, "id"),
		DiskName:       stringValue(item, "name"),
		SubscriptionID: stringValue(item, "subscriptionId"),
		ResourceGroup:  stringValue(item, "resourceGroup"),
		Location:       stringValue(item, "location"),
		ManagedBy:      stringValue(item, "managedBy"),
		DiskSizeGB:     intValue(item, "diskSizeGB"),
		Sku:            stringValue(item, "sku"),
		OSType:         stringValue(item, "osType"),
		EncryptionType: stringValue(item, "encryptionType"),
	}
	if ts := stringValue(item, "timeCreated"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			parsed = parsed.UTC()
			row.TimeCreated = &parsed
		}
	}
	if row.ResourceGroup == "" && row.ResourceID != "" {
		row.ResourceGroup = helpers.ExtractResourceGroup(row.ResourceID)
	}
	return row
}

func stringValue(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// intValue returns nil when the column is absent, null, non-numeric or out of
// range, so a missing size is not mistaken for zero.
func intValue(m map[string]any, key string) *int64 {
	var n int64
	switch v := m[key].(type) {
	case float64:
		i, ok := helpers.FloatToInt64(v)
		if !ok {
			return nil
		}
		n = i
	case int64:
		n = v
	case int:
		n = int64(v)
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}
