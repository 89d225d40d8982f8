package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/praetorian-inc/diskaudit/internal/config"
	"github.com/praetorian-inc/diskaudit/internal/helpers"
	"github.com/praetorian-inc/diskaudit/internal/logs"
	"github.com/praetorian-inc/diskaudit/internal/message"
	"github.com/praetorian-inc/diskaudit/pkg/activitylog"
	"github.com/praetorian-inc/diskaudit/pkg/audit"
	"github.com/praetorian-inc/diskaudit/pkg/inventory"
	"github.com/praetorian-inc/diskaudit/pkg/metrics"
	"github.com/praetorian-inc/diskaudit/pkg/outputters"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var azureDisksCmd = &cobra.Command{
	Use:   "disks",
	Short: "Audit managed disk changes and attach/detach events",
	Long: `Read the Activity Log of every selected subscription from --start onwards and
write two CSV reports: disk lifecycle changes (created, updated, deleted) and
disk attach/detach events reconstructed from virtual machine writes.

Disks created before the Activity Log retention are backfilled, and every
change is enriched with the disk's current size, SKU and owner, from the
inventory selected with --inventory.`,
	Example: `  diskaudit azure disks --tenant contoso.onmicrosoft.com --start 2024-03-01
  diskaudit azure disks --tenant $TENANT --start 2024-03-01 --include Production,Staging --inventory compute
  diskaudit azure disks --start 2024-03-01 --activity-log-file export.json --inventory none`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper(), time.Now())
		if err != nil {
			return err
		}
		return runDiskAudit(cmd.Context(), cfg)
	},
}

func init() {
	f := azureDisksCmd.Flags()
	f.StringP(config.KeyTenant, "t", "", "Azure tenant id or domain")
	f.StringP(config.KeyStart, "s", "", "window start, inclusive (YYYY-MM-DD or RFC 3339)")
	f.String(config.KeyEnd, "", "window end, exclusive (default now)")
	f.StringSliceP(config.KeyInclude, "i", nil, "subscriptions to audit, by id or name (default all)")
	f.StringSliceP(config.KeyExclude, "x", nil, "subscriptions to skip, by id or name")
	f.StringP(config.KeyOutput, "o", "", "disk changes CSV path; the attach/detach report is written next to it")
	f.String(config.KeyInventory, string(inventory.ModeGraph), "inventory for backfill and enrichment: graph, compute or none")
	f.String(config.KeyActivityLogFile, "", "read events from an exported Activity Log JSON file instead of Azure")
	f.String(config.KeyMetricsFile, "", "write run metrics to this file in Prometheus text format")
	f.String(config.KeyTemplateDir, "", "directory of YAML query templates overriding the built-in ones")

	for _, key := range []string{
		config.KeyTenant, config.KeyStart, config.KeyEnd, config.KeyInclude, config.KeyExclude,
		config.KeyOutput, config.KeyInventory, config.KeyActivityLogFile, config.KeyMetricsFile,
		config.KeyTemplateDir,
	} {
		cobra.CheckErr(viper.BindPFlag(key, f.Lookup(key)))
	}

	azureCmd.AddCommand(azureDisksCmd)
}

func runDiskAudit(parent context.Context, cfg *config.Config) error {
	message.SetQuiet(cfg.Quiet)
	message.SetNoColor(cfg.NoColor)
	logger, err := logs.ConsoleLogger(logs.Options{Level: cfg.LogLevel, NoColor: cfg.NoColor})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	message.Banner()
	logger.Info("Starting disk audit",
		"start", cfg.WindowStart.Format(time.RFC3339),
		"end", cfg.WindowEnd.Format(time.RFC3339),
		"inventory", cfg.InventoryMode,
	)

	var (
		cred   azcore.TokenCredential
		reader activitylog.Reader
		lister audit.SubscriptionLister
	)
	if cfg.ActivityLogFile == "" || cfg.Tenant != "" {
		if cred, err = helpers.NewAzureCredential(cfg.Tenant); err != nil {
			return err
		}
	}
	if cfg.ActivityLogFile != "" {
		replay, err := activitylog.NewFileReader(cfg.ActivityLogFile, logger)
		if err != nil {
			return err
		}
		reader, lister = replay, replay
		message.Info("Replaying Activity Log export %s", cfg.ActivityLogFile)
	} else {
		reader = activitylog.NewAzureReader(cred, logger)
		lister = helpers.NewSubscriptionLister(cred)
	}

	subs, err := audit.ResolveSubscriptions(ctx, lister, cfg.Include, cfg.Exclude)
	if errors.Is(err, audit.ErrNoSubscriptions) {
		message.Warning("No subscriptions matched the include/exclude filters, nothing to audit")
		return nil
	}
	if err != nil {
		return err
	}
	message.Info("Auditing %d subscription(s)", len(subs))

	m := metrics.New()
	runner := &audit.Runner{
		Subscriptions: subs,
		Logs:          reader,
		Inventory:     newInventory(cfg, cred, logger),
		Metrics:       m,
		Logger:        logger,
	}
	report, err := runner.Run(ctx, activitylog.Window{Start: cfg.WindowStart, End: cfg.WindowEnd})
	if err != nil {
		return err
	}

	changesPath, attachPath := outputters.DefaultPaths(cfg.Output, cfg.WindowStart)
	if err := outputters.WriteDiskChanges(changesPath, report.DiskChanges); err != nil {
		return err
	}
	if err := outputters.WriteAttachChanges(attachPath, report.AttachChanges); err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
		logger.Debug("Wrote metrics", "path", cfg.MetricsFile)
	}

	if failed := report.Failures(); len(failed) > 0 {
		message.Warning("%d Activity Log read(s) failed; the reports are partial", len(failed))
	}
	message.Success("Done: %d disk change(s), %d attach/detach event(s)", len(report.DiskChanges), len(report.AttachChanges))
	message.Field("disk changes", "%s", changesPath)
	message.Field("attach/detach", "%s", attachPath)
	if report.InventoryUsed != "" {
		message.Field("inventory", "%s", report.InventoryUsed)
	}
	return nil
}

// newInventory builds the selected inventory backend. A backend that cannot be
// built is reported and the run continues without one.
func newInventory(cfg *config.Config, cred azcore.TokenCredential, logger *slog.Logger) inventory.Inventory {
	if cfg.InventoryMode == inventory.ModeNone {
		return nil
	}
	if cred == nil {
		message.Warning("Inventory %s needs Azure credentials (set --tenant); continuing without it", cfg.InventoryMode)
		return nil
	}

	switch cfg.InventoryMode {
	case inventory.ModeCompute:
		return inventory.NewComputeInventory(cred, logger)
	default:
		loader, err := loadTemplates(cfg.TemplateDir)
		if err != nil {
			message.Warning("Inventory disabled: %v", err)
			return nil
		}
		client, err := helpers.NewARGClient(cred, logger)
		if err != nil {
			message.Warning("Inventory disabled: %v", fmt.Errorf("resource graph unavailable: %w", err))
			return nil
		}
		return inventory.NewGraphInventory(client, loader, logger)
	}
}
