package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotKeyIgnoresCase(t *testing.T) {
	a := VmDiskSnapshot{SubscriptionID: "SUB-1", ResourceGroup: "RG-App", VMName: "Web01"}
	b := VmDiskSnapshot{SubscriptionID: "sub-1", ResourceGroup: "rg-app", VMName: "web01"}

	assert.Equal(t, "sub-1|rg-app|web01", a.Key())
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), VmDiskSnapshot{SubscriptionID: "sub-1", ResourceGroup: "rg-app", VMName: "web02"}.Key())
}

func TestEnriched(t *testing.T) {
	empty := ""
	size := int64(128)

	testCases := []struct {
		name     string
		record   DiskChangeRecord
		expected bool
	}{
		{"none set", DiskChangeRecord{}, false},
		{"size only", DiskChangeRecord{CurrentSizeGB: &size}, true},
		{"unattached owner", DiskChangeRecord{ManagedBy: &empty}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.record.Enriched())
		})
	}
}
