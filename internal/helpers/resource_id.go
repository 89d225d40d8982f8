package helpers

import (
	"strings"

	"github.com/praetorian-inc/diskaudit/pkg/types"
)

// ParseResourceID splits an ARM path of the form
// /subscriptions/{sub}/resourceGroups/{rg}/providers/{ns}/{type}/{name} into its
// parts. A field is only set when the path has enough segments to reach it, so
// malformed input degrades to an empty identifier instead of an error.
func ParseResourceID(resourceID string) types.ResourceIdentifier {
	var id types.ResourceIdentifier
	if resourceID == "" {
		return id
	}

	parts := strings.Split(resourceID, "/")
	if len(parts) >= 3 {
		id.SubscriptionID = parts[2]
	}
	if len(parts) >= 5 {
		id.ResourceGroup = parts[4]
	}
	if len(parts) >= 7 {
		id.Provider = parts[6]
	}
	if len(parts) >= 9 {
		id.Type = parts[7]
		id.Name = parts[8]
	}
	return id
}

// ExtractResourceGroup returns the resource group segment of an ARM path.
func ExtractResourceGroup(resourceID string) string {
	return ParseResourceID(resourceID).ResourceGroup
}
