// Package guide defines the domain model shared by providers, caches, the
// search index and the hub client: kinds, calendar days, sources, schedule
// items and search rows.
package guide

// Kind names one of the four schedule families.
type Kind string

const (
	KindTV              Kind = "tv"
	KindTVAccessibility Kind = "tv_accessibility"
	KindRadio           Kind = "radio"
	KindArchive         Kind = "archive"
)

// AllKinds returns every kind in walk order.
func AllKinds() []Kind {
	return []Kind{KindTV, KindTVAccessibility, KindRadio, KindArchive}
}

// ScheduleKinds returns the kinds served by schedule providers.
func ScheduleKinds() []Kind {
	return []Kind{KindTV, KindTVAccessibility, KindRadio}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTV, KindTVAccessibility, KindRadio, KindArchive:
		return true
	}
	return false
}

// ParseKind validates a raw kind string.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

// Accessibility feature tags carried end-to-end.
const (
	FeatureAudioDescription = "AD" // audio description
	FeatureSignLanguage     = "JM" // sign language interpreter
	FeatureCaptions         = "N"  // closed captions
)

// NormalizeAccessibility drops unknown tags, preserving input order.
func NormalizeAccessibility(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		switch t {
		case FeatureAudioDescription, FeatureSignLanguage, FeatureCaptions:
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
