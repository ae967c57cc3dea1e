package schedule

import "github.com/example/timetable-console/internal/api"

// Scope describes which surface a view serves: one class, one teacher, or
// one room. The fixed identity is the entity whose week is displayed; the
// surface decides which pickers the edit form carries.
type Scope struct {
	Key api.ScopeKey
	ID  int64
}

// ClassScope views one class's week. The form picks kind, subject, teacher
// and room; the class is fixed.
func ClassScope(classID int64) Scope {
	return Scope{Key: api.ScopeClass, ID: classID}
}

// TeacherScope views one teacher's week. The form picks kind, subject, class
// and room; the teacher is fixed.
func TeacherScope(teacherID int64) Scope {
	return Scope{Key: api.ScopeTeacher, ID: teacherID}
}

// RoomScope views one room's week. The form picks kind, subject, teacher and
// class; the room is fixed and there is no availability picker.
func RoomScope(roomID int64) Scope {
	return Scope{Key: api.ScopeRoom, ID: roomID}
}

func (s Scope) hasClassPicker() bool   { return s.Key != api.ScopeClass }
func (s Scope) hasTeacherPicker() bool { return s.Key != api.ScopeTeacher }
func (s Scope) hasRoomPicker() bool    { return s.Key != api.ScopeRoom }
