package provider

import (
	"context"
	"time"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// Reserved identifiers of the built-in neutral providers. Packs must not
// claim them.
const (
	EmptyScheduleID = "empty"
	EmptyArchiveID  = "empty-archive"
)

// emptyDisplayName labels both neutral providers in selection UIs.
const emptyDisplayName = "Brak dostawców"

// EmptySchedule is the Schedule installed when no provider pack is active.
// Every listing succeeds with an empty result.
type EmptySchedule struct{}

func (EmptySchedule) ID() string          { return EmptyScheduleID }
func (EmptySchedule) DisplayName() string { return emptyDisplayName }

func (EmptySchedule) Sources(context.Context, bool) ([]guide.Source, error) { return nil, nil }

func (EmptySchedule) Days(context.Context, bool) ([]guide.Day, error) { return nil, nil }

func (EmptySchedule) ScheduleOf(context.Context, guide.Source, guide.Day, bool) ([]guide.ScheduleItem, error) {
	return nil, nil
}

func (EmptySchedule) ItemDetails(context.Context, guide.ScheduleItem, bool) (string, error) {
	return "", nil
}

// EmptyArchive is the Archive counterpart of EmptySchedule.
type EmptyArchive struct{}

func (EmptyArchive) ID() string          { return EmptyArchiveID }
func (EmptyArchive) DisplayName() string { return emptyDisplayName }

func (EmptyArchive) Years(context.Context) ([]int, error) { return nil, nil }

func (EmptyArchive) DaysInMonth(context.Context, int, time.Month, bool) ([]guide.Day, error) {
	return nil, nil
}

func (EmptyArchive) SourcesForDay(context.Context, guide.Day, bool) ([]guide.Source, error) {
	return nil, nil
}

func (EmptyArchive) ScheduleOf(context.Context, guide.Source, guide.Day, bool) ([]guide.ScheduleItem, error) {
	return nil, nil
}

var (
	_ Schedule = EmptySchedule{}
	_ Archive  = EmptyArchive{}
)
