package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/praetorian-inc/diskaudit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var estate = []types.Subscription{
	{ID: "1111", DisplayName: "Production"},
	{ID: "2222", DisplayName: "Staging"},
	{ID: "3333", DisplayName: "Sandbox"},
}

func ids(subs []types.Subscription) []string { return IDs(subs) }

func TestFilterSubscriptions(t *testing.T) {
	tests := []struct {
		name     string
		include  []string
		exclude  []string
		expected []string
	}{
		{"everything by default", nil, nil, []string{"1111", "2222", "3333"}},
		{"all keyword", []string{"ALL"}, nil, []string{"1111", "2222", "3333"}},
		{"by display name", []string{"production", "sandbox"}, nil, []string{"1111", "3333"}},
		{"by id", []string{" 2222 "}, nil, []string{"2222"}},
		{"duplicates collapse", []string{"Staging", "2222", "staging"}, nil, []string{"2222"}},
		{"exclude by name", []string{"all"}, []string{"Sandbox"}, []string{"1111", "2222"}},
		{"exclude wins", []string{"1111"}, []string{"production"}, nil},
		{"unknown include", []string{"nope"}, nil, nil},
		{"blank entries ignored", []string{"", "  "}, []string{""}, []string{"1111", "2222", "3333"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterSubscriptions(estate, tt.include, tt.exclude)
			if tt.expected == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestFilterSubscriptionsDropsRepeatedIDs(t *testing.T) {
	got := FilterSubscriptions(append(estate, types.Subscription{ID: "1111", DisplayName: "Production"}), nil, nil)
	assert.Len(t, got, 3)
}

type staticLister struct {
	subs []types.Subscription
	err  error
}

func (s staticLister) ListSubscriptions(ctx context.Context) ([]types.Subscription, error) {
	return s.subs, s.err
}

func TestResolveSubscriptions(t *testing.T) {
	subs, err := ResolveSubscriptions(context.Background(), staticLister{subs: estate}, []string{"Staging"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2222"}, ids(subs))

	_, err = ResolveSubscriptions(context.Background(), staticLister{subs: estate}, []string{"missing"}, nil)
	assert.ErrorIs(t, err, ErrNoSubscriptions)

	cause := errors.New("AADSTS700016")
	_, err = ResolveSubscriptions(context.Background(), staticLister{err: cause}, nil, nil)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNoSubscriptions)
}
