package guide

import "strings"

// Source is a channel or station. (ProviderID, ID) is globally unique; both
// are opaque strings defined by the provider.
type Source struct {
	ProviderID string
	ID         string
	Name       string
}

// ScheduleItem is one program slot as observed from a provider. Items are
// plain values; derived items are struct copies with fields replaced.
//
// Start and End use the "HH:MM" projection in the day's civil timezone as
// supplied by the provider; empty means unknown.
type ScheduleItem struct {
	ProviderID     string
	Source         Source
	Day            Day
	Start          string
	End            string
	Title          string
	Subtitle       string
	DetailsRef     string
	DetailsSummary string
	Accessibility  []string
}

// HasTitle reports whether the item survives the empty-title boundary check.
func (it ScheduleItem) HasTitle() bool {
	return strings.TrimSpace(it.Title) != ""
}
