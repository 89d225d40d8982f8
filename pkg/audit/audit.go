// Package audit runs the disk audit over a set of subscriptions: read the
// Activity Log, diff VM disk sets, backfill and enrich from inventory.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/message"
	"github.com/praetorian-inc/diskaudit/pkg/activitylog"
	"github.com/praetorian-inc/diskaudit/pkg/attach"
	"github.com/praetorian-inc/diskaudit/pkg/disks"
	"github.com/praetorian-inc/diskaudit/pkg/inventory"
	"github.com/praetorian-inc/diskaudit/pkg/metrics"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// Runner holds the collaborators of one audit. A nil Inventory disables
// backfill and enrichment. A nil Metrics records nothing.
type Runner struct {
	Subscriptions []types.Subscription
	Logs          activitylog.Reader
	Inventory     inventory.Inventory
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Report is everything one run produced. Results holds one entry per
// subscription and query kind, failed ones included.
type Report struct {
	DiskChanges   []types.DiskChangeRecord
	AttachChanges []types.AttachChangeRecord
	Results       []activitylog.Result
	InventoryUsed string
}

// Failures returns the reads that failed.
func (r *Report) Failures() []activitylog.Result {
	var out []activitylog.Result
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Run processes subscriptions one after another. A failed read is logged and
// counts as no events for that subscription; only cancellation stops the run.
func (r *Runner) Run(ctx context.Context, w activitylog.Window) (*Report, error) {
	if len(r.Subscriptions) == 0 {
		return nil, ErrNoSubscriptions
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()
	r.Metrics.Subscriptions(len(r.Subscriptions))

	agg := disks.NewAggregator(logger)
	tracker := attach.NewTracker(logger)
	report := &Report{}

	for i, sub := range r.Subscriptions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("audit interrupted: %w", err)
		}
		message.Info("[%d/%d] %s (%s)", i+1, len(r.Subscriptions), sub.DisplayName, sub.ID)
		log := logger.With("subscription", sub.ID)

		diskRes := r.read(ctx, log, activitylog.DiskQuery(sub.ID, w))
		agg.AddActivityEvents(diskRes.Events)

		vmRes := r.read(ctx, log, activitylog.VMWriteQuery(sub.ID, w))
		observed := tracker.ObserveEvents(vmRes.Events)
		log.Debug("Recorded VM disk snapshots", "events", len(vmRes.Events), "snapshots", observed)

		report.Results = append(report.Results, diskRes, vmRes)
	}

	if r.Inventory != nil {
		report.InventoryUsed = r.applyInventory(ctx, logger, agg, w, IDs(r.Subscriptions))
	} else {
		logger.Info("Inventory disabled, created disks come from the Activity Log only")
	}

	report.DiskChanges = agg.Changes()
	report.AttachChanges = tracker.Diff()

	for _, c := range report.DiskChanges {
		r.Metrics.DiskChange(string(c.ChangeType), string(c.Source))
	}
	for _, c := range report.AttachChanges {
		r.Metrics.AttachChange(string(c.ChangeType))
	}
	r.Metrics.RunFinished(started, time.Now())

	logger.Info("Audit complete",
		"subscriptions", len(r.Subscriptions),
		"disk_changes", len(report.DiskChanges),
		"attach_changes", len(report.AttachChanges),
		"failed_reads", len(report.Failures()),
		"vms", tracker.VMs(),
	)
	return report, nil
}

func (r *Runner) read(ctx context.Context, log *slog.Logger, q activitylog.Query) activitylog.Result {
	res := activitylog.Collect(ctx, r.Logs, q)
	if res.Failed() {
		r.Metrics.ReadFailed(string(q.Kind))
		log.Warn("Activity Log read failed, continuing without these events", "kind", q.Kind, "error", res.Err)
		message.Warning("Could not read %s events for subscription %s: %v", q.Kind, q.SubscriptionID, res.Err)
		return res
	}
	r.Metrics.EventsRead(string(q.Kind), len(res.Events))
	log.Debug("Read Activity Log events", "kind", q.Kind, "count", len(res.Events))
	return res
}

// applyInventory backfills and enriches. Either step may fail on its own; a
// failure skips only that step. It returns the backend name when at least one
// step succeeded.
func (r *Runner) applyInventory(ctx context.Context, logger *slog.Logger, agg *disks.Aggregator, w activitylog.Window, subs []string) string {
	log := logger.With("inventory", r.Inventory.Name())
	used := false

	created, err := r.Inventory.RecentlyCreated(ctx, subs, w.Start)
	if err != nil {
		log.Warn("Inventory backfill skipped", "error", err)
		message.Warning("Inventory backfill skipped: %v", err)
	} else {
		used = true
		r.Metrics.InventoryRows("recently_created", len(created))
		added := agg.Backfill(created, w.Start)
		log.Info("Backfilled created disks", "rows", len(created), "added", added)
	}

	current, err := r.Inventory.Disks(ctx, subs)
	if err != nil {
		log.Warn("Inventory enrichment skipped", "error", err)
		message.Warning("Inventory enrichment skipped: %v", err)
	} else {
		used = true
		r.Metrics.InventoryRows("disk_metadata", len(current))
		matched := agg.Enrich(current)
		log.Info("Enriched disk changes", "rows", len(current), "matched", matched)
	}

	if !used {
		return ""
	}
	return r.Inventory.Name()
}
