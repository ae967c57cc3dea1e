package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/example/timetable-console/internal/api"
	"github.com/example/timetable-console/internal/logging"
	"github.com/example/timetable-console/internal/timetable"
)

// Mode distinguishes creating an event from editing an existing one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// maxRoomCapacity caps the capacity filter of the room search.
const maxRoomCapacity = 500

// RoomConstraint narrows the automatic room search. Zero-valued fields are
// not sent.
type RoomConstraint struct {
	MinCapacity int
	Floor       int
	RoomTypeID  int64
	Equipment   []api.EquipmentRequirement
}

// Form is the edit draft. AutoRoom delegates room choice to the constraint
// search instead of the availability picker.
type Form struct {
	KindID     int64
	SubjectID  int64
	TeacherID  int64
	ClassID    int64
	RoomID     int64
	AutoRoom   bool
	Constraint RoomConstraint
}

// Modal is one open cell edit. Field changes cascade along the form's
// dependency rules; Submit validates the draft before any network call.
type Modal struct {
	view *View

	Mode    Mode
	EventID int64
	Lesson  int
	Day     int
	Form    Form

	roomOptions    []api.Room
	teacherOptions []api.Teacher
}

// OpenCell opens the edit modal for a cell. For an occupied cell the draft is
// prefilled from the event; kind and subject identities are recovered from
// their display names because week events arrive denormalized. Surfaces with
// a room picker fetch the rooms free at the slot, with the event's current
// room appended when the backend no longer lists it as free.
func (v *View) OpenCell(ctx context.Context, lesson, day int, existing *api.ScheduleEvent) error {
	if lesson < 1 || lesson > timetable.Lessons || day < 0 || day >= timetable.Days {
		return fmt.Errorf("schedule: cell %d/%d is out of range", lesson, day)
	}
	if !v.canEdit() {
		return ErrReadOnly
	}

	m := &Modal{view: v, Lesson: lesson, Day: day}

	if v.scope.hasRoomPicker() {
		rooms, err := v.backend.AvailableRooms(ctx, v.dayDate(day), lesson)
		if err != nil {
			return fmt.Errorf("schedule: failed to load available rooms: %w", err)
		}
		m.roomOptions = rooms
		if existing != nil && existing.RoomID != 0 && !containsRoom(rooms, existing.RoomID) {
			m.roomOptions = append(m.roomOptions, api.Room{ID: existing.RoomID, Number: existing.RoomNumber})
		}
	}

	switch {
	case existing != nil:
		m.Mode = ModeEdit
		m.EventID = existing.ID
		m.Form.KindID = v.kindIDByName(existing.EventKindName)
		m.Form.SubjectID = v.subjectIDByName(existing.SubjectName)
		m.Form.AutoRoom = false
		switch v.scope.Key {
		case api.ScopeClass:
			m.Form.ClassID = v.scope.ID
			m.Form.RoomID = existing.RoomID
		case api.ScopeTeacher:
			m.Form.TeacherID = v.scope.ID
			m.Form.ClassID = existing.ClassID
			m.Form.RoomID = existing.RoomID
		case api.ScopeRoom:
			m.Form.RoomID = v.scope.ID
			m.Form.ClassID = existing.ClassID
		}
		if m.Form.SubjectID != 0 && v.scope.hasTeacherPicker() {
			teachers, err := v.backend.ListTeachers(ctx, m.Form.SubjectID)
			if err != nil {
				return fmt.Errorf("schedule: failed to load teachers: %w", err)
			}
			m.teacherOptions = teachers
		}
	default:
		m.Mode = ModeCreate
		m.Form.AutoRoom = v.scope.hasRoomPicker()
		switch v.scope.Key {
		case api.ScopeClass:
			m.Form.ClassID = v.scope.ID
		case api.ScopeTeacher:
			m.Form.TeacherID = v.scope.ID
			if len(v.classes) > 0 {
				m.Form.ClassID = v.classes[0].ID
			}
		case api.ScopeRoom:
			m.Form.RoomID = v.scope.ID
			if len(v.classes) > 0 {
				m.Form.ClassID = v.classes[0].ID
			}
		}
	}

	v.modal = m
	v.state = StateModalOpen
	return nil
}

// Date resolves the modal's cell to its calendar date.
func (m *Modal) Date() time.Time {
	return m.view.dayDate(m.Day)
}

// RoomOptions lists the rooms offered by the picker.
func (m *Modal) RoomOptions() []api.Room { return m.roomOptions }

// TeacherOptions lists the teachers matching the chosen subject.
func (m *Modal) TeacherOptions() []api.Teacher { return m.teacherOptions }

// SetKind changes the event kind. A kind that does not require a subject
// clears the subject, which in turn clears the teacher choice.
func (m *Modal) SetKind(ctx context.Context, kindID int64) error {
	m.Form.KindID = kindID
	if kind, ok := m.view.kindByID(kindID); ok && !kind.RequiresSubject {
		return m.SetSubject(ctx, 0)
	}
	return nil
}

// SetSubject changes the subject. The teacher choice resets because teachers
// are offered filtered by subject.
func (m *Modal) SetSubject(ctx context.Context, subjectID int64) error {
	m.Form.SubjectID = subjectID
	m.teacherOptions = nil
	if m.view.scope.hasTeacherPicker() {
		m.Form.TeacherID = 0
		if subjectID != 0 {
			teachers, err := m.view.backend.ListTeachers(ctx, subjectID)
			if err != nil {
				return fmt.Errorf("schedule: failed to load teachers: %w", err)
			}
			m.teacherOptions = teachers
		}
	}
	return nil
}

// SetTeacher chooses a teacher.
func (m *Modal) SetTeacher(teacherID int64) {
	m.Form.TeacherID = teacherID
}

// SetClass chooses a class.
func (m *Modal) SetClass(classID int64) {
	m.Form.ClassID = classID
}

// SetRoom chooses a room explicitly, leaving automatic mode.
func (m *Modal) SetRoom(roomID int64) {
	m.Form.RoomID = roomID
	m.Form.AutoRoom = false
}

// SetAutoRoom toggles automatic room choice. Enabling it discards the chosen
// room.
func (m *Modal) SetAutoRoom(on bool) {
	m.Form.AutoRoom = on
	if on {
		m.Form.RoomID = 0
	}
}

// SetMinCapacity sets the capacity filter of the room search.
func (m *Modal) SetMinCapacity(capacity int) error {
	if capacity < 0 || capacity > maxRoomCapacity {
		vErr := &ValidationError{}
		vErr.add("minCapacity", fmt.Sprintf("Вместимость не может превышать %d", maxRoomCapacity))
		return vErr
	}
	m.Form.Constraint.MinCapacity = capacity
	return nil
}

// SetFloor sets the floor filter of the room search.
func (m *Modal) SetFloor(floor int) {
	m.Form.Constraint.Floor = floor
}

// SetRoomType sets the room type filter of the room search.
func (m *Modal) SetRoomType(roomTypeID int64) {
	m.Form.Constraint.RoomTypeID = roomTypeID
}

// AddEquipment appends an equipment requirement to the room search.
func (m *Modal) AddEquipment(typeID int64, quantity int) {
	m.Form.Constraint.Equipment = append(m.Form.Constraint.Equipment,
		api.EquipmentRequirement{TypeID: typeID, RequiredQuantity: quantity})
}

// ClearEquipment drops all equipment requirements.
func (m *Modal) ClearEquipment() {
	m.Form.Constraint.Equipment = nil
}

// FindRoom asks the backend for the single best room matching the draft's
// constraint. No match informs the user and clears the chosen room; a failure
// informs the user and leaves the draft untouched.
func (m *Modal) FindRoom(ctx context.Context) error {
	v := m.view
	if !v.scope.hasRoomPicker() {
		return fmt.Errorf("schedule: room is fixed on this surface")
	}

	req := api.RoomSearchRequest{
		Date:         api.NewDate(m.Date()),
		LessonNumber: m.Lesson,
		MinCapacity:  m.Form.Constraint.MinCapacity,
		Floor:        m.Form.Constraint.Floor,
		RoomTypeID:   m.Form.Constraint.RoomTypeID,
	}
	for _, eq := range m.Form.Constraint.Equipment {
		if eq.TypeID != 0 && eq.RequiredQuantity > 0 {
			req.EquipmentRequirements = append(req.EquipmentRequirements, eq)
		}
	}

	room, found, err := v.backend.FindRoom(ctx, req)
	if err != nil {
		logging.Component(ctx, v.logger, "schedule").Error("room search failed", "error", err)
		v.notifier.Notify(ctx, "Поиск кабинета", "Произошла ошибка при поиске кабинета")
		return err
	}
	if !found {
		v.notifier.Notify(ctx, "Поиск кабинета", "Подходящий кабинет не найден")
		m.Form.RoomID = 0
		return nil
	}

	m.Form.RoomID = room.ID
	if !containsRoom(m.roomOptions, room.ID) {
		m.roomOptions = append(m.roomOptions, room)
	}
	return nil
}

func (m *Modal) validate() *ValidationError {
	v := m.view
	vErr := &ValidationError{}

	today := midnightOf(v.now())
	if m.Date().Before(today) {
		vErr.add("eventDate", "Дата не может быть в прошлом")
	}

	if m.Form.KindID == 0 {
		vErr.add("eventKindId", "Укажите тип события")
	} else if kind, ok := v.kindByID(m.Form.KindID); ok && kind.RequiresSubject && m.Form.SubjectID == 0 {
		vErr.add("subjectId", "Укажите предмет")
	}
	if m.Form.TeacherID == 0 && (v.scope.Key == api.ScopeClass || v.scope.Key == api.ScopeTeacher) {
		vErr.add("teacherId", "Укажите преподавателя")
	}
	if m.Form.ClassID == 0 && v.scope.hasClassPicker() {
		vErr.add("classId", "Укажите класс")
	}
	if m.Form.RoomID == 0 {
		if m.Form.AutoRoom {
			vErr.add("roomId", "Кабинет не подобран")
		} else {
			vErr.add("roomId", "Укажите кабинет")
		}
	}
	return vErr
}

// Submit validates the draft and sends it. Validation failures surface as a
// *ValidationError without touching the network. On success the modal closes
// and the week reloads; a remote failure keeps the modal open.
func (m *Modal) Submit(ctx context.Context) error {
	v := m.view

	if vErr := m.validate(); vErr.HasErrors() {
		return vErr
	}

	input := api.EventInput{
		EventDate:    api.NewDate(m.Date()),
		LessonNumber: m.Lesson,
		EventKindID:  m.Form.KindID,
		RoomID:       m.Form.RoomID,
		ClassID:      m.Form.ClassID,
	}
	if m.Form.SubjectID != 0 {
		id := m.Form.SubjectID
		input.SubjectID = &id
	}
	if m.Form.TeacherID != 0 {
		id := m.Form.TeacherID
		input.TeacherID = &id
	}

	var err error
	if m.Mode == ModeEdit {
		err = v.backend.UpdateEvent(ctx, m.EventID, input)
	} else {
		err = v.backend.CreateEvent(ctx, input)
	}
	if err != nil {
		return err
	}

	v.modal = nil
	v.state = StateIdle
	return v.Reload(ctx)
}

// Delete removes the edited event after an interactive confirmation. On
// success the modal closes and the week reloads.
func (m *Modal) Delete(ctx context.Context) error {
	v := m.view
	if m.Mode != ModeEdit || m.EventID == 0 {
		return ErrNoModal
	}
	if !v.notifier.Confirm(ctx, "Удалить событие?") {
		return nil
	}
	if err := v.backend.DeleteEvent(ctx, m.EventID); err != nil {
		return err
	}
	v.modal = nil
	v.state = StateIdle
	return v.Reload(ctx)
}

// Cancel discards the draft unconditionally.
func (m *Modal) Cancel() {
	m.view.modal = nil
	m.view.state = StateIdle
}

func containsRoom(rooms []api.Room, id int64) bool {
	for _, r := range rooms {
		if r.ID == id {
			return true
		}
	}
	return false
}

func midnightOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
