package provider

import (
	"context"
	"sync"
	"time"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// ReloadableSchedule is a Schedule shell whose delegate can be swapped at
// runtime, so pack reloads replace providers without invalidating handles
// held elsewhere. A call started after SetDelegate returns is served by the
// new delegate; in-flight calls finish on the one they started with.
type ReloadableSchedule struct {
	mu       sync.RWMutex
	delegate Schedule
}

// NewReloadableSchedule starts with the given delegate, typically
// EmptySchedule until the first pack load succeeds.
func NewReloadableSchedule(initial Schedule) *ReloadableSchedule {
	return &ReloadableSchedule{delegate: initial}
}

// SetDelegate installs a new delegate.
func (r *ReloadableSchedule) SetDelegate(d Schedule) {
	r.mu.Lock()
	r.delegate = d
	r.mu.Unlock()
}

func (r *ReloadableSchedule) get() Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.delegate
}

func (r *ReloadableSchedule) ID() string          { return r.get().ID() }
func (r *ReloadableSchedule) DisplayName() string { return r.get().DisplayName() }

func (r *ReloadableSchedule) Sources(ctx context.Context, force bool) ([]guide.Source, error) {
	return r.get().Sources(ctx, force)
}

func (r *ReloadableSchedule) Days(ctx context.Context, force bool) ([]guide.Day, error) {
	return r.get().Days(ctx, force)
}

// DaysForProvider forwards to the delegate when it advertises the
// capability; otherwise the delegate's own days serve a matching id and
// anything else is empty.
func (r *ReloadableSchedule) DaysForProvider(ctx context.Context, providerID string, force bool) ([]guide.Day, error) {
	d := r.get()
	if lister, ok := d.(DayLister); ok {
		return lister.DaysForProvider(ctx, providerID, force)
	}
	if providerID == d.ID() {
		return d.Days(ctx, force)
	}
	return nil, nil
}

func (r *ReloadableSchedule) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	return r.get().ScheduleOf(ctx, src, day, force)
}

func (r *ReloadableSchedule) ItemDetails(ctx context.Context, item guide.ScheduleItem, force bool) (string, error) {
	return r.get().ItemDetails(ctx, item, force)
}

// ReloadableArchive is the Archive counterpart of ReloadableSchedule.
type ReloadableArchive struct {
	mu       sync.RWMutex
	delegate Archive
}

// NewReloadableArchive starts with the given delegate, typically
// EmptyArchive until the first pack load succeeds.
func NewReloadableArchive(initial Archive) *ReloadableArchive {
	return &ReloadableArchive{delegate: initial}
}

// SetDelegate installs a new delegate.
func (r *ReloadableArchive) SetDelegate(d Archive) {
	r.mu.Lock()
	r.delegate = d
	r.mu.Unlock()
}

func (r *ReloadableArchive) get() Archive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.delegate
}

func (r *ReloadableArchive) ID() string          { return r.get().ID() }
func (r *ReloadableArchive) DisplayName() string { return r.get().DisplayName() }

func (r *ReloadableArchive) Years(ctx context.Context) ([]int, error) {
	return r.get().Years(ctx)
}

func (r *ReloadableArchive) DaysInMonth(ctx context.Context, year int, month time.Month, force bool) ([]guide.Day, error) {
	return r.get().DaysInMonth(ctx, year, month, force)
}

func (r *ReloadableArchive) SourcesForDay(ctx context.Context, day guide.Day, force bool) ([]guide.Source, error) {
	return r.get().SourcesForDay(ctx, day, force)
}

func (r *ReloadableArchive) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	return r.get().ScheduleOf(ctx, src, day, force)
}

var (
	_ Schedule  = (*ReloadableSchedule)(nil)
	_ DayLister = (*ReloadableSchedule)(nil)
	_ Archive   = (*ReloadableArchive)(nil)
)
