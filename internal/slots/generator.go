// Package slots creates delivery time slots and answers agenda queries.
//
// Each day has ten one-hour buckets from 08:00 to 18:00. Generation is
// idempotent: a (date, start_time) pair that already exists is left
// untouched, whatever its capacity or usage.
package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

const (
	// FirstHour is the start of the first daily bucket
	FirstHour = 8
	// LastHour is the end of the last daily bucket
	LastHour = 18

	// DefaultCapacity is the number of orders a slot accepts
	DefaultCapacity = 5
	// DefaultDaysAhead is the generation window when none is given
	DefaultDaysAhead = 30
	// MaxDaysAhead bounds a single generation run
	MaxDaysAhead = 366
)

var (
	// ErrGenerationInProgress is returned when another generation run holds the lock
	ErrGenerationInProgress = errors.New("slot generation already in progress")
	// ErrInvalidWindow is returned for a malformed start date or day count
	ErrInvalidWindow = errors.New("invalid generation window")
)

// Window is a resolved generation range: DaysAhead dates starting at StartDate
type Window struct {
	StartDate string `json:"start_date"`
	DaysAhead int    `json:"days_ahead"`
}

// Generator creates time slots
type Generator struct {
	store    storage.Storage
	capacity int
	logger   *logging.Logger
	now      func() time.Time
	lock     generationLock
}

// Option configures a Generator
type Option func(*Generator)

// WithCapacity sets the capacity of generated slots
func WithCapacity(capacity int) Option {
	return func(g *Generator) {
		g.capacity = capacity
	}
}

// WithLogger sets the generator's logger
func WithLogger(logger *logging.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithClock overrides the clock used to compute today
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a slot generator backed by store
func NewGenerator(store storage.Storage, opts ...Option) *Generator {
	g := &Generator{
		store:    store,
		capacity: DefaultCapacity,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.capacity < 0 {
		g.capacity = 0
	}
	g.logger = g.logger.WithComponent("slots")
	return g
}

// Capacity returns the capacity given to generated slots
func (g *Generator) Capacity() int {
	return g.capacity
}

// Today returns the current date in DateLayout
func (g *Generator) Today() string {
	return g.now().Format(types.DateLayout)
}

// Resolve applies defaults and bounds to a requested window. An empty start
// date means today; a zero day count means DefaultDaysAhead.
func (g *Generator) Resolve(startDate string, daysAhead int) (Window, error) {
	startDate = strings.TrimSpace(startDate)
	if startDate == "" {
		startDate = g.Today()
	}
	if _, err := time.Parse(types.DateLayout, startDate); err != nil {
		return Window{}, fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidWindow, startDate)
	}
	if daysAhead == 0 {
		daysAhead = DefaultDaysAhead
	}
	if daysAhead < 1 || daysAhead > MaxDaysAhead {
		return Window{}, fmt.Errorf("%w: days ahead must be between 1 and %d", ErrInvalidWindow, MaxDaysAhead)
	}
	return Window{StartDate: startDate, DaysAhead: daysAhead}, nil
}

// Buckets returns the slots of one day, unsaved
func (g *Generator) Buckets(date string) []*types.TimeSlot {
	buckets := make([]*types.TimeSlot, 0, LastHour-FirstHour)
	for hour := FirstHour; hour < LastHour; hour++ {
		buckets = append(buckets, &types.TimeSlot{
			Date:      date,
			StartTime: fmt.Sprintf("%02d:00", hour),
			EndTime:   fmt.Sprintf("%02d:00", hour+1),
			Capacity:  g.capacity,
		})
	}
	return buckets
}

// Generate creates the daily buckets for every date of the window and
// returns the number of slots actually created. Only one run may execute
// at a time; a concurrent call fails with ErrGenerationInProgress.
func (g *Generator) Generate(ctx context.Context, startDate string, daysAhead int) (int, error) {
	window, err := g.Resolve(startDate, daysAhead)
	if err != nil {
		return 0, err
	}

	if !g.lock.tryAcquire() {
		return 0, ErrGenerationInProgress
	}
	defer g.lock.release()

	start, _ := time.Parse(types.DateLayout, window.StartDate)
	log := g.logger.FromContext(ctx)

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin slot generation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := 0
	for day := 0; day < window.DaysAhead; day++ {
		date := start.AddDate(0, 0, day).Format(types.DateLayout)
		for _, slot := range g.Buckets(date) {
			ok, err := tx.InsertTimeSlotIfAbsent(ctx, slot)
			if err != nil {
				return 0, fmt.Errorf("generate slots for %s: %w", date, err)
			}
			if ok {
				created++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit slot generation: %w", err)
	}

	log.Info("time slots generated",
		"start_date", window.StartDate,
		"days_ahead", window.DaysAhead,
		"created", created)
	return created, nil
}

// Available returns slots with spare capacity from today onwards, ordered
// by date then start time
func (g *Generator) Available(ctx context.Context) ([]*types.TimeSlot, error) {
	slots, err := g.store.ListAvailableSlots(ctx, g.Today())
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}
