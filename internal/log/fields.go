package log

// Canonical field name constants for structured logging.
const (
	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Guide fields
	FieldKind     = "kind"
	FieldProvider = "provider"
	FieldSource   = "source"
	FieldDay      = "day"

	// Store fields
	FieldKey     = "key"
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldVersion = "pack_version"
)
