package api

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date on the wire. The backend writes plain ISO dates but
// has been seen emitting full timestamps; both are accepted and only the date
// part is kept.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// MarshalJSON writes the date as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// UnmarshalJSON accepts "2006-01-02" and RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	value := strings.Trim(string(data), `"`)
	if value == "" || value == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			d.Time = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.Local)
			return nil
		}
	}
	return fmt.Errorf("api: unparseable date %q", value)
}

// Room is a teaching room as listed by the backend.
type Room struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Floor  int    `json:"floor"`
	Active bool   `json:"active"`
}

// RoomType categorizes rooms (laboratory, gym, ...).
type RoomType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EquipmentType is a kind of installable equipment (projector, computer, ...).
type EquipmentType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EventKind is a schedule event category. RequiresSubject drives the form
// dependency rules in the edit modal.
type EventKind struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Color           string `json:"color"`
	RequiresSubject bool   `json:"requiresSubject"`
	Active          bool   `json:"active"`
}

// Subject is a taught discipline.
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Teacher is a staff member as exposed to schedule surfaces.
type Teacher struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
}

// Class is a school class; its display label is grade plus section, "5А".
type Class struct {
	ID      int64  `json:"id"`
	Grade   int    `json:"grade"`
	Section string `json:"section"`
}

// Label renders the class the way schedules display it.
func (c Class) Label() string {
	return fmt.Sprintf("%d%s", c.Grade, c.Section)
}

// ScheduleEvent is one placed lesson as the backend returns it for a week
// query. Kind, subject and teacher arrive denormalized as display names; only
// the room and class carry identities.
type ScheduleEvent struct {
	ID              int64  `json:"id"`
	EventDate       Date   `json:"eventDate"`
	LessonNumber    int    `json:"lessonNumber"`
	EventKindName   string `json:"eventKindName"`
	EventKindColor  string `json:"eventKindColor"`
	RequiresSubject bool   `json:"requiresSubject"`
	SubjectName     string `json:"subjectName"`
	TeacherFullName string `json:"teacherFullName"`
	RoomID          int64  `json:"roomId"`
	RoomNumber      string `json:"roomNumber"`
	ClassID         int64  `json:"classId"`
}

// EventInput is the mutation payload for creating or updating an event.
// Subject and teacher may legitimately be absent and are sent as null then.
type EventInput struct {
	EventDate    Date   `json:"eventDate"`
	LessonNumber int    `json:"lessonNumber"`
	EventKindID  int64  `json:"eventKindId"`
	SubjectID    *int64 `json:"subjectId"`
	TeacherID    *int64 `json:"teacherId"`
	RoomID       int64  `json:"roomId"`
	ClassID      int64  `json:"classId"`
}

// EquipmentRequirement asks for a minimum quantity of one equipment type.
type EquipmentRequirement struct {
	TypeID           int64 `json:"typeId"`
	RequiredQuantity int   `json:"requiredQuantity"`
}

// RoomSearchRequest is the constraint body for the single-best-match room
// search. Optional filters are omitted from the payload when empty.
type RoomSearchRequest struct {
	Date                  Date                   `json:"date"`
	LessonNumber          int                    `json:"lessonNumber"`
	MinCapacity           int                    `json:"minCapacity,omitempty"`
	Floor                 int                    `json:"floor,omitempty"`
	RoomTypeID            int64                  `json:"roomTypeId,omitempty"`
	EquipmentRequirements []EquipmentRequirement `json:"equipmentRequirements,omitempty"`
}

// TokenPair is the credential pair issued by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
