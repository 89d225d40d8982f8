package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	u "github.com/mpvl/unique"
	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// ErrNoSubscriptions means there is nothing to audit. It is not a failure.
var ErrNoSubscriptions = errors.New("no subscriptions to audit")

const allSubscriptions = "all"

// SubscriptionLister lists the subscriptions visible to the caller.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]types.Subscription, error)
}

// ResolveSubscriptions lists subscriptions and applies the include and exclude
// filters. Listing errors are returned wrapped; an empty result is
// ErrNoSubscriptions.
func ResolveSubscriptions(ctx context.Context, lister SubscriptionLister, include, exclude []string) ([]types.Subscription, error) {
	all, err := lister.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	subs := FilterSubscriptions(all, include, exclude)
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}
	return subs, nil
}

// FilterSubscriptions keeps the subscriptions named in include, by id or
// display name, then drops those named in exclude. Matching ignores case. An
// empty include list, or one containing "all", keeps everything.
func FilterSubscriptions(all []types.Subscription, include, exclude []string) []types.Subscription {
	inc := normalize(include)
	exc := normalize(exclude)
	everything := len(inc) == 0 || contains(inc, allSubscriptions)

	var (
		out  []types.Subscription
		seen = make(map[string]struct{})
	)
	for _, s := range all {
		id := strings.ToLower(s.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		if !everything && !matches(inc, s) {
			continue
		}
		if matches(exc, s) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, s)
	}
	return out
}

// IDs returns the subscription ids in order.
func IDs(subs []types.Subscription) []string {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

func normalize(names []string) []string {
	var out []string
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, n)
		}
	}
	u.Strings(&out)
	return out
}

func matches(names []string, s types.Subscription) bool {
	return contains(names, strings.ToLower(s.ID)) || contains(names, strings.ToLower(s.DisplayName))
}

func contains(sorted []string, v string) bool {
	if v == "" {
		return false
	}
	for _, n := range sorted {
		if n == v {
			return true
		}
	}
	return false
}
