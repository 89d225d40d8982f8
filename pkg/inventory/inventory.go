// Package inventory provides point-in-time views of managed disks. The audit
// uses them to backfill creations older than Activity Log retention and to
// enrich change rows with the current state of each disk.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// Row is one disk as seen by an inventory backend.
type Row = types.DiskInventoryRow

// Mode selects the inventory backend.
type Mode string

const (
	ModeGraph   Mode = "graph"
	ModeCompute Mode = "compute"
	ModeNone    Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeGraph, ModeCompute, ModeNone:
		return m, nil
	case "":
		return ModeGraph, nil
	default:
		return "", fmt.Errorf("unknown inventory mode %q (want graph, compute or none)", s)
	}
}

// Inventory answers the two questions the audit asks of the current estate.
// An error means the answer is unknown, not that there are no disks.
type Inventory interface {
	Name() string
	// RecentlyCreated returns disks whose creation time is at or after since.
	RecentlyCreated(ctx context.Context, subscriptions []string, since time.Time) ([]Row, error)
	// Disks returns every disk with its current metadata.
	Disks(ctx context.Context, subscriptions []string) ([]Row, error)
}
