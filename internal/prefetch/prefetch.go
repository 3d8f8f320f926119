// Package prefetch walks every provider and day, filling the schedule cache
// and the local search index in one background sweep. Progress streams to a
// callback as Polish status lines; failures are counted, never fatal.
package prefetch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// Update is one progress report. Total only means something when HasTotal
// is set; the archive stage never knows its size up front. Exactly one
// terminal update arrives per run, with either Finished or Cancelled set.
type Update struct {
	Stage     guide.Kind
	Message   string
	Done      int
	Total     int
	HasTotal  bool
	Errors    int
	Finished  bool
	Cancelled bool
}

// UpdateFunc receives progress reports on the sync goroutine.
type UpdateFunc func(Update)

// Providers gathers the four runtime handles a sync walks.
type Providers struct {
	TV              provider.Schedule
	TVAccessibility provider.Schedule
	Radio           provider.Schedule
	Archive         provider.Archive
}

// Indexer is the sink for fetched items. *searchindex.Index satisfies it.
type Indexer interface {
	AddItems(ctx context.Context, kind guide.Kind, items []guide.ScheduleItem) error
}

// Orchestrator runs full syncs: tv, tv with accessibility aids, radio
// (today onward) and the archive, in that order. At most one run is in
// flight at a time.
type Orchestrator struct {
	tv      provider.Schedule
	tvA11y  provider.Schedule
	radio   provider.Schedule
	archive provider.Archive
	index   Indexer
	today   func() guide.Day
	logger  zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

func New(providers Providers, index Indexer) *Orchestrator {
	return &Orchestrator{
		tv:      providers.TV,
		tvA11y:  providers.TVAccessibility,
		radio:   providers.Radio,
		archive: providers.Archive,
		index:   index,
		today:   guide.Today,
		logger:  log.WithComponent("prefetch"),
	}
}

// Running reports whether a sync is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start launches a full sync on its own goroutine, streaming progress
// through onUpdate. It refuses to overlap runs and returns false when one
// is already in flight.
func (o *Orchestrator) Start(onUpdate UpdateFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.running = true
	o.done = done
	go func() {
		defer func() {
			o.mu.Lock()
			o.running = false
			o.cancel = nil
			o.mu.Unlock()
			cancel()
			close(done)
		}()
		o.Run(ctx, onUpdate)
	}()
	return true
}

// Stop asks the running sync to wind down and returns immediately; the
// terminal update reports the run as cancelled.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run finishes. It returns immediately when
// nothing is running.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Run executes the sync synchronously until done or ctx dies. The terminal
// update is emitted in every case, cancellation included.
func (o *Orchestrator) Run(ctx context.Context, onUpdate UpdateFunc) {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	errCount := 0
	o.logger.Info().Str(log.FieldEvent, "prefetch.start").Msg("full sync started")

	defer func() {
		stopped := ctx.Err() != nil
		message, state := "Gotowe.", "finished"
		if stopped {
			message, state = "Przerwano.", "cancelled"
		}
		metrics.IncPrefetchRun(state)
		o.logger.Info().
			Str(log.FieldEvent, "prefetch.done").
			Str("state", state).
			Int("errors", errCount).
			Msg("full sync ended")
		onUpdate(Update{
			Stage:     guide.KindArchive,
			Message:   message,
			Errors:    errCount,
			Finished:  !stopped,
			Cancelled: stopped,
		})
	}()

	cancelled := func(stage guide.Kind) bool {
		if ctx.Err() == nil {
			return false
		}
		onUpdate(Update{Stage: stage, Message: "Przerwano.", Errors: errCount, Cancelled: true})
		return true
	}

	if ctx.Err() != nil {
		return
	}
	errCount = o.syncSchedules(ctx, guide.KindTV, o.tv, errCount, onUpdate, nil)
	if cancelled(guide.KindTV) {
		return
	}
	errCount = o.syncSchedules(ctx, guide.KindTVAccessibility, o.tvA11y, errCount, onUpdate, nil)
	if cancelled(guide.KindTVAccessibility) {
		return
	}
	today := o.today()
	errCount = o.syncSchedules(ctx, guide.KindRadio, o.radio, errCount, onUpdate, func(d guide.Day) bool {
		return !d.Before(today)
	})
	if cancelled(guide.KindRadio) {
		return
	}
	errCount = o.syncArchive(ctx, errCount, onUpdate)
	if cancelled(guide.KindArchive) {
		return
	}
}

// syncSchedules fetches every source and day combination of one schedule
// provider and feeds the items to the index. keepDay, when set, narrows the
// day list per provider. Returns the accumulated error count.
func (o *Orchestrator) syncSchedules(ctx context.Context, stage guide.Kind, p provider.Schedule, errCount int, onUpdate UpdateFunc, keepDay func(guide.Day) bool) int {
	progress := func(message string, done, total int, hasTotal bool) {
		onUpdate(Update{
			Stage:    stage,
			Message:  message,
			Done:     done,
			Total:    total,
			HasTotal: hasTotal,
			Errors:   errCount,
		})
	}

	progress("Ładowanie listy kanałów i dni…", 0, 0, false)
	sources, err := p.Sources(ctx, false)
	var allDays []guide.Day
	if err == nil {
		allDays, err = p.Days(ctx, false)
	}
	if err != nil {
		metrics.IncPrefetchError(string(stage))
		o.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "prefetch.list_failed").
			Str(log.FieldKind, string(stage)).
			Msg("source or day listing failed")
		progress(fmt.Sprintf("Błąd listowania: %v", err), 0, 0, false)
		return errCount + 1
	}

	daysByProvider := o.daysByProvider(ctx, p, sources, allDays, keepDay)
	total := 0
	for _, src := range sources {
		total += len(daysByProvider[src.ProviderID])
	}
	done := 0
	progress("Pobieranie ramówek…", done, total, true)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		for _, day := range daysByProvider[src.ProviderID] {
			if ctx.Err() != nil {
				break
			}
			done++
			progress(fmt.Sprintf("%s %s", src.Name, day), done, total, true)
			items, err := p.ScheduleOf(ctx, src, day, false)
			if err != nil {
				// a fetch aborted by Stop is not a failure
				if ctx.Err() != nil {
					break
				}
				errCount++
				metrics.IncPrefetchError(string(stage))
				continue
			}
			if err := o.index.AddItems(ctx, stage, items); err != nil {
				if ctx.Err() != nil {
					break
				}
				errCount++
				metrics.IncPrefetchError(string(stage))
				o.logger.Warn().
					Err(err).
					Str(log.FieldEvent, "prefetch.index_failed").
					Str(log.FieldKind, string(stage)).
					Msg("indexing fetched items failed")
			}
		}
	}
	return errCount
}

// daysByProvider resolves the day list per aggregated provider, preferring
// the DayLister capability and falling back to the union day list when a
// per-provider listing fails.
func (o *Orchestrator) daysByProvider(ctx context.Context, p provider.Schedule, sources []guide.Source, allDays []guide.Day, keepDay func(guide.Day) bool) map[string][]guide.Day {
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		if !slices.Contains(ids, src.ProviderID) {
			ids = append(ids, src.ProviderID)
		}
	}
	slices.Sort(ids)

	lister, hasLister := p.(provider.DayLister)
	out := make(map[string][]guide.Day, len(ids))
	for _, pid := range ids {
		days := allDays
		if hasLister {
			if d, err := lister.DaysForProvider(ctx, pid, false); err == nil {
				days = d
			}
		}
		kept := make([]guide.Day, 0, len(days))
		for _, d := range days {
			if keepDay == nil || keepDay(d) {
				kept = append(kept, d)
			}
		}
		out[pid] = kept
	}
	return out
}

// syncArchive walks every archive year and month, then every listed day and
// its sources. The volume is unknowable up front, so archive updates carry
// no total; done counts whole days.
func (o *Orchestrator) syncArchive(ctx context.Context, errCount int, onUpdate UpdateFunc) int {
	stage := guide.KindArchive
	done := 0
	progress := func(message string) {
		onUpdate(Update{Stage: stage, Message: message, Done: done, Errors: errCount})
	}

	progress("Ładowanie listy lat…")
	years, err := o.archive.Years(ctx)
	if err != nil {
		metrics.IncPrefetchError(string(stage))
		o.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "prefetch.list_failed").
			Str(log.FieldKind, string(stage)).
			Msg("year listing failed")
		progress(fmt.Sprintf("Błąd listowania lat: %v", err))
		return errCount + 1
	}

	for _, year := range years {
		if ctx.Err() != nil {
			break
		}
		for month := 1; month <= 12; month++ {
			if ctx.Err() != nil {
				break
			}
			progress(fmt.Sprintf("%04d-%02d: szukanie dni…", year, month))
			days, err := o.archive.DaysInMonth(ctx, year, time.Month(month), false)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				errCount++
				metrics.IncPrefetchError(string(stage))
				continue
			}
			for _, day := range days {
				if ctx.Err() != nil {
					break
				}
				sources, err := o.archive.SourcesForDay(ctx, day, false)
				if err != nil {
					errCount++
					metrics.IncPrefetchError(string(stage))
					continue
				}
				for idx, src := range sources {
					if ctx.Err() != nil {
						break
					}
					progress(fmt.Sprintf("%s (%d/%d): %s", day, idx+1, len(sources), src.Name))
					items, err := o.archive.ScheduleOf(ctx, src, day, false)
					if err != nil {
						if ctx.Err() != nil {
							break
						}
						errCount++
						metrics.IncPrefetchError(string(stage))
						continue
					}
					if err := o.index.AddItems(ctx, stage, items); err != nil {
						if ctx.Err() != nil {
							break
						}
						errCount++
						metrics.IncPrefetchError(string(stage))
					}
				}
				done++
			}
		}
	}
	return errCount
}
