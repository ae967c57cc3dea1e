package timetable

import (
	"time"

	"github.com/example/timetable-console/internal/api"
)

const (
	// Lessons is the number of lesson slots per day, numbered 1..Lessons.
	Lessons = 7
	// Days is the number of teaching days per week, Monday through Saturday.
	Days = 6
)

// LessonTimes are the fixed bell times per lesson slot, indexed by lesson
// number minus one.
var LessonTimes = [Lessons]string{
	"08:00 – 08:45",
	"08:55 – 09:40",
	"09:50 – 10:35",
	"10:45 – 11:30",
	"11:40 – 12:25",
	"12:35 – 13:20",
	"13:30 – 14:15",
}

// Grid is one week of schedule cells, indexed [lessonNumber-1][dayOffset].
// A nil cell is a free slot.
type Grid [Lessons][Days]*api.ScheduleEvent

// BuildGrid places a week's events into their cells. Events dated outside the
// six teaching days starting at monday, or numbered outside 1..Lessons, are
// dropped. When two events claim the same cell the later one in the input
// wins.
func BuildGrid(monday time.Time, events []api.ScheduleEvent) Grid {
	var grid Grid
	base := midnight(monday)
	for i := range events {
		evt := &events[i]
		day := int(midnight(evt.EventDate.Time).Sub(base).Round(24*time.Hour) / (24 * time.Hour))
		if day < 0 || day >= Days {
			continue
		}
		if evt.LessonNumber < 1 || evt.LessonNumber > Lessons {
			continue
		}
		grid[evt.LessonNumber-1][day] = evt
	}
	return grid
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
