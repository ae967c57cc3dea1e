// Package api exposes the backend's read and mutation contracts as typed
// calls over the authenticated transport. The backend remains the source of
// truth; nothing here caches or reconciles beyond a single response.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/example/timetable-console/internal/transport"
)

// ScopeKey selects which schedule surface a week query serves.
type ScopeKey string

const (
	ScopeClass   ScopeKey = "class"
	ScopeTeacher ScopeKey = "teacher"
	ScopeRoom    ScopeKey = "room"
)

// Client issues typed calls to the scheduling backend.
type Client struct {
	t *transport.Client
}

// NewClient wraps an authenticated transport.
func NewClient(t *transport.Client) *Client {
	return &Client{t: t}
}

// ListRooms returns the room catalog.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.t.DoJSON(ctx, http.MethodGet, "rooms", nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListRoomTypes returns the room type catalog.
func (c *Client) ListRoomTypes(ctx context.Context) ([]RoomType, error) {
	var types []RoomType
	if err := c.t.DoJSON(ctx, http.MethodGet, "room-types", nil, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// ListEquipmentTypes returns the equipment type catalog.
func (c *Client) ListEquipmentTypes(ctx context.Context) ([]EquipmentType, error) {
	var types []EquipmentType
	if err := c.t.DoJSON(ctx, http.MethodGet, "equipment-types", nil, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// ListEventKinds returns event kinds, optionally only active ones.
func (c *Client) ListEventKinds(ctx context.Context, activeOnly bool) ([]EventKind, error) {
	query := url.Values{}
	if activeOnly {
		query.Set("active", "true")
	}
	var kinds []EventKind
	if err := c.t.DoJSON(ctx, http.MethodGet, "event-kinds", query, nil, &kinds); err != nil {
		return nil, err
	}
	return kinds, nil
}

// ListSubjects returns subjects, filtered to one teacher's when teacherID is
// non-zero.
func (c *Client) ListSubjects(ctx context.Context, teacherID int64) ([]Subject, error) {
	query := url.Values{}
	if teacherID != 0 {
		query.Set("teacherId", strconv.FormatInt(teacherID, 10))
	}
	var subjects []Subject
	if err := c.t.DoJSON(ctx, http.MethodGet, "subjects", query, nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ListTeachers returns teachers, filtered to one subject's when subjectID is
// non-zero.
func (c *Client) ListTeachers(ctx context.Context, subjectID int64) ([]Teacher, error) {
	query := url.Values{}
	if subjectID != 0 {
		query.Set("subjectId", strconv.FormatInt(subjectID, 10))
	}
	var teachers []Teacher
	if err := c.t.DoJSON(ctx, http.MethodGet, "teachers", query, nil, &teachers); err != nil {
		return nil, err
	}
	return teachers, nil
}

// ListClasses returns the class catalog.
func (c *Client) ListClasses(ctx context.Context) ([]Class, error) {
	var classes []Class
	if err := c.t.DoJSON(ctx, http.MethodGet, "classes", nil, nil, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// WeekEvents fetches the scheduled events of one week for a surface. The date
// is the Monday of the requested week.
func (c *Client) WeekEvents(ctx context.Context, scope ScopeKey, id int64, monday time.Time) ([]ScheduleEvent, error) {
	query := url.Values{}
	query.Set("scope", string(scope))
	query.Set("id", strconv.FormatInt(id, 10))
	query.Set("date", monday.Format("2006-01-02"))
	var events []ScheduleEvent
	if err := c.t.DoJSON(ctx, http.MethodGet, "events", query, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent submits a new scheduled event.
func (c *Client) CreateEvent(ctx context.Context, input EventInput) error {
	return c.t.DoJSON(ctx, http.MethodPost, "events", nil, input, nil)
}

// UpdateEvent replaces an existing scheduled event.
func (c *Client) UpdateEvent(ctx context.Context, id int64, input EventInput) error {
	return c.t.DoJSON(ctx, http.MethodPut, fmt.Sprintf("events/%d", id), nil, input, nil)
}

// DeleteEvent removes a scheduled event.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.t.DoJSON(ctx, http.MethodDelete, fmt.Sprintf("events/%d", id), nil, nil, nil)
}

// AvailableRooms lists rooms free at the given date and lesson slot, sorted
// by numeric room number the way the pickers display them.
func (c *Client) AvailableRooms(ctx context.Context, date time.Time, lesson int) ([]Room, error) {
	query := url.Values{}
	query.Set("date", date.Format("2006-01-02"))
	query.Set("lessonNumber", strconv.Itoa(lesson))
	var rooms []Room
	if err := c.t.DoJSON(ctx, http.MethodGet, "rooms/available", query, nil, &rooms); err != nil {
		return nil, err
	}
	SortRoomsByNumber(rooms)
	return rooms, nil
}

// FindRoom asks the backend for the single best room matching the constraint.
// A no-content response is the normal negative outcome, reported via found,
// not an error.
func (c *Client) FindRoom(ctx context.Context, req RoomSearchRequest) (room Room, found bool, err error) {
	res, err := c.t.Do(ctx, http.MethodPost, "rooms/available/one", nil, req)
	if err != nil {
		return Room{}, false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return Room{}, false, nil
	}
	if err := decodeBody(res, &room); err != nil {
		return Room{}, false, err
	}
	return room, true, nil
}

// Login exchanges a username and password for a credential pair. It goes
// through the transport so connectivity and status failures surface the same
// way as everywhere else; a stale stored access token plays no role because
// the backend ignores the Authorization header on the login route.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	body := map[string]string{"username": username, "password": password}
	var pair TokenPair
	if err := c.t.DoJSON(ctx, http.MethodPost, "auth/login", nil, body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// SortRoomsByNumber orders rooms by their numeric number, falling back to
// lexicographic order for non-numeric numbers.
func SortRoomsByNumber(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		ni, errI := strconv.Atoi(rooms[i].Number)
		nj, errJ := strconv.Atoi(rooms[j].Number)
		if errI == nil && errJ == nil {
			return ni < nj
		}
		if (errI == nil) != (errJ == nil) {
			return errI == nil
		}
		return rooms[i].Number < rooms[j].Number
	})
}

func decodeBody(res *http.Response, out any) error {
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("api: failed to decode response: %w", err)
	}
	return nil
}
