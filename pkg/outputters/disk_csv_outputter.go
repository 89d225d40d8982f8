package outputters

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/message"
	"github.com/praetorian-inc/diskaudit/pkg/types"
	"github.com/praetorian-inc/diskaudit/pkg/utils"
)

const (
	diskChangesPrefix  = "DiskChanges_"
	attachChangePrefix = "DiskAttachDetach_"
	attachSuffix       = "_AttachDetach"
	fileDateLayout     = "20060102"
)

var (
	diskChangeHeader = []string{
		"ChangeType",
		"DiskName",
		"SubscriptionId",
		"ResourceGroup",
		"Location",
		"EventTime",
		"Operation",
		"Caller",
		"RequestedSizeGB",
		"RequestedSku",
		"RequestedEnc",
		"Source",
		"ResourceId",
		"CorrelationId",
	}
	enrichmentHeader = []string{
		"CurrentSizeGB",
		"CurrentSku",
		"ManagedBy",
	}
	attachChangeHeader = []string{
		"ChangeType",
		"VmName",
		"SubscriptionId",
		"ResourceGroup",
		"DiskId",
		"EventTime",
		"Source",
		"CorrelationId",
	}
)

// DefaultPaths returns where the two reports are written. Without an override
// both files land in the working directory, named after the window start. With
// one, the attach/detach report sits next to it with an _AttachDetach suffix.
func DefaultPaths(override string, start time.Time) (changes, attach string) {
	if override == "" {
		date := start.UTC().Format(fileDateLayout)
		return diskChangesPrefix + date + ".csv", attachChangePrefix + date + ".csv"
	}
	ext := filepath.Ext(override)
	if ext == "" {
		ext = ".csv"
	}
	stem := strings.TrimSuffix(override, filepath.Ext(override))
	return override, stem + attachSuffix + ext
}

// WriteDiskChanges writes the disk changes report. The current-state columns
// are only included when at least one record was enriched.
func WriteDiskChanges(path string, records []types.DiskChangeRecord) error {
	enriched := false
	for i := range records {
		if records[i].Enriched() {
			enriched = true
			break
		}
	}

	header := diskChangeHeader
	if enriched {
		header = append(append([]string{}, diskChangeHeader...), enrichmentHeader...)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{
			string(r.ChangeType),
			r.DiskName,
			r.SubscriptionID,
			r.ResourceGroup,
			r.Location,
			formatTime(r.EventTime),
			r.Operation,
			r.Caller,
			formatInt(r.RequestedSizeGB),
			formatString(r.RequestedSku),
			formatString(r.RequestedEncryption),
			string(r.Source),
			r.ResourceID,
			r.CorrelationID,
		}
		if enriched {
			row = append(row, formatInt(r.CurrentSizeGB), formatString(r.CurrentSku), formatString(r.ManagedBy))
		}
		rows = append(rows, row)
	}

	if err := writeCSV(path, header, rows); err != nil {
		return err
	}
	message.Success("Disk changes written to %s (%d rows)", path, len(records))
	return nil
}

func WriteAttachChanges(path string, records []types.AttachChangeRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			string(r.ChangeType),
			r.VMName,
			r.SubscriptionID,
			r.ResourceGroup,
			r.DiskID,
			formatTime(r.EventTime),
			string(r.Source),
			r.CorrelationID,
		})
	}

	if err := writeCSV(path, attachChangeHeader, rows); err != nil {
		return err
	}
	message.Success("Attach/detach changes written to %s (%d rows)", path, len(records))
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := utils.EnsureFileDirectory(path); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("error writing CSV rows: %w", err)
	}
	return file.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
