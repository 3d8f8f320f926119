package schedcache

import (
	"encoding/json"
	"fmt"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// cachedItem is the stored projection of one schedule row. Identity fields
// (provider, source, day) live in the cache key and are rehydrated from the
// caller's arguments on decode, so a renamed source never resurrects its old
// name from disk.
type cachedItem struct {
	Start          *string  `json:"start"`
	End            *string  `json:"end"`
	Title          string   `json:"title"`
	Subtitle       *string  `json:"subtitle"`
	DetailsRef     *string  `json:"details_ref"`
	DetailsSummary *string  `json:"details_summary"`
	Accessibility  []string `json:"accessibility"`
}

func encodeItems(items []guide.ScheduleItem) (string, error) {
	out := make([]cachedItem, 0, len(items))
	for _, it := range items {
		acc := it.Accessibility
		if acc == nil {
			acc = []string{}
		}
		out = append(out, cachedItem{
			Start:          optional(it.Start),
			End:            optional(it.End),
			Title:          it.Title,
			Subtitle:       optional(it.Subtitle),
			DetailsRef:     optional(it.DetailsRef),
			DetailsSummary: optional(it.DetailsSummary),
			Accessibility:  acc,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("schedcache: encode items: %w", err)
	}
	return string(b), nil
}

// decodeItems rebuilds schedule items from a cached payload. A payload that
// is not a JSON array is a miss (ok=false); malformed rows and rows without
// a title are skipped. An empty array is a valid hit.
func decodeItems(raw string, src guide.Source, day guide.Day) ([]guide.ScheduleItem, bool) {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, false
	}

	items := make([]guide.ScheduleItem, 0, len(rows))
	for _, row := range rows {
		var ci cachedItem
		if err := json.Unmarshal(row, &ci); err != nil {
			continue
		}
		if ci.Title == "" {
			continue
		}
		items = append(items, guide.ScheduleItem{
			ProviderID:     src.ProviderID,
			Source:         src,
			Day:            day,
			Start:          clockOrEmpty(deref(ci.Start)),
			End:            clockOrEmpty(deref(ci.End)),
			Title:          ci.Title,
			Subtitle:       deref(ci.Subtitle),
			DetailsRef:     deref(ci.DetailsRef),
			DetailsSummary: deref(ci.DetailsSummary),
			Accessibility:  guide.NormalizeAccessibility(ci.Accessibility),
		})
	}
	return items, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// validClock reports whether s is a wall-clock "HH:MM" between 00:00 and
// 23:59.
func validClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range [...]int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	return hh < 24 && mm < 60
}

func clockOrEmpty(s string) string {
	if validClock(s) {
		return s
	}
	return ""
}
