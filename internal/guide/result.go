package guide

// SearchResult is the row envelope shared by the local index and the hub:
// both sides fill the identity and display fields; only remote rows carry
// ItemID (> 0), which doubles as the pagination cursor key.
type SearchResult struct {
	Kind           Kind
	ProviderID     string
	SourceID       string
	SourceName     string
	Day            Day
	Start          string
	Title          string
	Subtitle       string
	DetailsRef     string
	DetailsSummary string
	Accessibility  []string
	ItemID         int64
}
