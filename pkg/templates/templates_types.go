package templates

// ARGQueryTemplate is a Resource Graph query kept as an embedded YAML file.
// The query is a text/template; see QueryParams for the available fields.
type ARGQueryTemplate struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Query       string   `yaml:"query"`
	Columns     []string `yaml:"columns"` // projected result columns
	References  []string `yaml:"references"`
}

// QueryParams are the values substituted into a template query.
type QueryParams struct {
	// Start is the inclusive lower bound of the audit window, RFC 3339 UTC.
	Start string
}

// Template IDs used by the disk inventory.
const (
	RecentlyCreatedDisks = "recently_created_disks"
	DiskMetadata         = "disk_metadata"
)
