// Package schedule implements the weekly timetable view: one engine
// parameterized by surface scope, driving week loading, the edit modal with
// its field dependency rules, and the constraint-based room search.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/timetable-console/internal/api"
	"github.com/example/timetable-console/internal/logging"
	"github.com/example/timetable-console/internal/timetable"
	"github.com/example/timetable-console/internal/transport"
)

// Backend captures the API interactions the engine needs. *api.Client
// satisfies it.
type Backend interface {
	WeekEvents(ctx context.Context, scope api.ScopeKey, id int64, monday time.Time) ([]api.ScheduleEvent, error)
	ListEventKinds(ctx context.Context, activeOnly bool) ([]api.EventKind, error)
	ListSubjects(ctx context.Context, teacherID int64) ([]api.Subject, error)
	ListTeachers(ctx context.Context, subjectID int64) ([]api.Teacher, error)
	ListClasses(ctx context.Context) ([]api.Class, error)
	ListRoomTypes(ctx context.Context) ([]api.RoomType, error)
	ListEquipmentTypes(ctx context.Context) ([]api.EquipmentType, error)
	AvailableRooms(ctx context.Context, date time.Time, lesson int) ([]api.Room, error)
	FindRoom(ctx context.Context, req api.RoomSearchRequest) (api.Room, bool, error)
	CreateEvent(ctx context.Context, input api.EventInput) error
	UpdateEvent(ctx context.Context, id int64, input api.EventInput) error
	DeleteEvent(ctx context.Context, id int64) error
}

// State is the view's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateModalOpen
)

// View is the weekly schedule engine for one surface. It is not safe for
// concurrent use; callers drive it from a single goroutine.
type View struct {
	backend  Backend
	scope    Scope
	notifier transport.Notifier
	logger   *slog.Logger
	now      func() time.Time
	canEdit  func() bool

	state  State
	anchor time.Time
	monday time.Time
	grid   timetable.Grid

	kinds     []api.EventKind
	subjects  []api.Subject
	classes   []api.Class
	roomTypes []api.RoomType
	equipment []api.EquipmentType

	// generation invalidates week loads that were overtaken by a newer one.
	generation uint64
	modal      *Modal
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(v *View) { v.logger = logger }
}

// WithClock overrides the time source. Tests use it to pin the past-date
// guard.
func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

// WithEditGate wires the role check that decides whether the view accepts
// mutations.
func WithEditGate(canEdit func() bool) Option {
	return func(v *View) { v.canEdit = canEdit }
}

// NewView builds an engine for the given surface.
func NewView(backend Backend, scope Scope, notifier transport.Notifier, opts ...Option) *View {
	v := &View{
		backend:  backend,
		scope:    scope,
		notifier: notifier,
		now:      time.Now,
		canEdit:  func() bool { return true },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Init loads the lookup catalogs the edit form depends on, then the week
// containing anchor. On the teacher surface subjects come pre-filtered to the
// teacher's own.
func (v *View) Init(ctx context.Context, anchor time.Time) error {
	logger := logging.Component(ctx, v.logger, "schedule", "scope", string(v.scope.Key), "id", v.scope.ID)

	kinds, err := v.backend.ListEventKinds(ctx, true)
	if err != nil {
		return fmt.Errorf("schedule: failed to load event kinds: %w", err)
	}
	teacherFilter := int64(0)
	if v.scope.Key == api.ScopeTeacher {
		teacherFilter = v.scope.ID
	}
	subjects, err := v.backend.ListSubjects(ctx, teacherFilter)
	if err != nil {
		return fmt.Errorf("schedule: failed to load subjects: %w", err)
	}
	classes, err := v.backend.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("schedule: failed to load classes: %w", err)
	}
	roomTypes, err := v.backend.ListRoomTypes(ctx)
	if err != nil {
		return fmt.Errorf("schedule: failed to load room types: %w", err)
	}
	equipment, err := v.backend.ListEquipmentTypes(ctx)
	if err != nil {
		return fmt.Errorf("schedule: failed to load equipment types: %w", err)
	}

	v.kinds = kinds
	v.subjects = subjects
	v.classes = classes
	v.roomTypes = roomTypes
	v.equipment = equipment

	logger.Info("catalogs loaded",
		"event_kinds", len(kinds),
		"subjects", len(subjects),
		"classes", len(classes))

	return v.LoadWeek(ctx, anchor)
}

// LoadWeek fetches and places the week containing anchor. A load overtaken by
// a later one is discarded silently; the newest request always wins.
func (v *View) LoadWeek(ctx context.Context, anchor time.Time) error {
	gen := v.beginLoad(anchor)
	events, err := v.backend.WeekEvents(ctx, v.scope.Key, v.scope.ID, v.monday)
	return v.finishLoad(ctx, gen, events, err)
}

func (v *View) beginLoad(anchor time.Time) uint64 {
	v.generation++
	v.anchor = anchor
	v.monday = timetable.MondayOf(anchor)
	v.state = StateLoading
	return v.generation
}

func (v *View) finishLoad(ctx context.Context, gen uint64, events []api.ScheduleEvent, err error) error {
	if gen != v.generation {
		logging.Component(ctx, v.logger, "schedule").Debug("stale week load discarded",
			"generation", gen, "current", v.generation)
		return nil
	}
	v.state = StateIdle
	if err != nil {
		return fmt.Errorf("schedule: failed to load week: %w", err)
	}
	v.grid = timetable.BuildGrid(v.monday, events)
	return nil
}

// NextWeek moves the anchor forward seven days and reloads.
func (v *View) NextWeek(ctx context.Context) error {
	return v.LoadWeek(ctx, v.anchor.AddDate(0, 0, 7))
}

// PrevWeek moves the anchor back seven days and reloads.
func (v *View) PrevWeek(ctx context.Context) error {
	return v.LoadWeek(ctx, v.anchor.AddDate(0, 0, -7))
}

// Reload refetches the current week.
func (v *View) Reload(ctx context.Context) error {
	return v.LoadWeek(ctx, v.anchor)
}

// State reports the lifecycle phase.
func (v *View) State() State { return v.state }

// Monday is the local-midnight Monday of the displayed week.
func (v *View) Monday() time.Time { return v.monday }

// Anchor is the raw navigation date; it keeps its weekday across week moves.
func (v *View) Anchor() time.Time { return v.anchor }

// Grid returns the placed week.
func (v *View) Grid() timetable.Grid { return v.grid }

// PeriodLabel renders the week heading.
func (v *View) PeriodLabel() string { return timetable.WeekPeriodLabel(v.monday) }

// DayLabels renders the six column headers.
func (v *View) DayLabels() [timetable.Days]string { return timetable.DayLabels(v.monday) }

// CanEdit reports whether the view accepts mutations.
func (v *View) CanEdit() bool { return v.canEdit() }

// EventKinds returns the loaded kind catalog.
func (v *View) EventKinds() []api.EventKind { return v.kinds }

// Subjects returns the loaded subject catalog.
func (v *View) Subjects() []api.Subject { return v.subjects }

// Classes returns the loaded class catalog.
func (v *View) Classes() []api.Class { return v.classes }

// RoomTypes returns the loaded room type catalog.
func (v *View) RoomTypes() []api.RoomType { return v.roomTypes }

// EquipmentTypes returns the loaded equipment type catalog.
func (v *View) EquipmentTypes() []api.EquipmentType { return v.equipment }

// Modal returns the open edit draft, nil when none is open.
func (v *View) Modal() *Modal { return v.modal }

// dayDate resolves a column offset to its calendar date.
func (v *View) dayDate(day int) time.Time {
	return v.monday.AddDate(0, 0, day)
}

func (v *View) kindByID(id int64) (api.EventKind, bool) {
	for _, k := range v.kinds {
		if k.ID == id {
			return k, true
		}
	}
	return api.EventKind{}, false
}

// kindIDByName recovers a kind's identity from its display name. Week events
// arrive denormalized, so editing starts from names; the first match wins.
func (v *View) kindIDByName(name string) int64 {
	for _, k := range v.kinds {
		if k.Name == name {
			return k.ID
		}
	}
	return 0
}

func (v *View) subjectIDByName(name string) int64 {
	if name == "" {
		return 0
	}
	for _, s := range v.subjects {
		if s.Name == name {
			return s.ID
		}
	}
	return 0
}
