package activitylog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// FileReader replays an exported Activity Log (for example the output of
// `az monitor activity-log list`). The file may be a JSON array, an object with
// a "value" array, or one JSON record per line.
type FileReader struct {
	path   string
	events []Event
	logger *slog.Logger
}

// NewFileReader loads and decodes the whole file up front.
func NewFileReader(path string, logger *slog.Logger) (*FileReader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log file: %w", err)
	}

	records, err := decodeExport(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode activity log file %s: %w", path, err)
	}

	events := make([]Event, 0, len(records))
	for _, d := range records {
		events = append(events, fromEventData(d))
	}

	logger.Debug("Loaded activity log export", "path", path, "events", len(events))
	return &FileReader{path: path, events: events, logger: logger.With("component", "ActivityLogFileReader")}, nil
}

func (r *FileReader) Read(ctx context.Context, q Query) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range r.events {
		if !strings.EqualFold(e.SubscriptionID, q.SubscriptionID) {
			continue
		}
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListSubscriptions returns the distinct subscriptions seen in the export. The
// display name is unknown offline, so the id is used for both.
func (r *FileReader) ListSubscriptions(ctx context.Context) ([]types.Subscription, error) {
	seen := make(map[string]string)
	for _, e := range r.events {
		if e.SubscriptionID == "" {
			continue
		}
		key := strings.ToLower(e.SubscriptionID)
		if _, ok := seen[key]; !ok {
			seen[key] = e.SubscriptionID
		}
	}

	subs := make([]types.Subscription, 0, len(seen))
	for _, id := range seen {
		subs = append(subs, types.Subscription{ID: id, DisplayName: id})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func decodeExport(data []byte) ([]*armmonitor.EventData, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var records []*armmonitor.EventData
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	case '{':
		var wrapper struct {
			Value []*armmonitor.EventData `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Value != nil {
			return wrapper.Value, nil
		}
		return decodeLines(trimmed)
	}
	return nil, fmt.Errorf("unrecognised export format")
}

func decodeLines(data []byte) ([]*armmonitor.EventData, error) {
	var records []*armmonitor.EventData
	scanner := bufio.NewScanner(bytes.NewReader(data))
	const maxScannerBuffer = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScannerBuffer)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var d armmonitor.EventData
		if err := json.Unmarshal(text, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, &d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
