package timetable

import (
	"fmt"
	"time"
)

var dayNames = [Days]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

// MondayOf returns the Monday of the week containing t, at local midnight.
// Sunday belongs to the week it ends, six days after its Monday.
func MondayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := int(day.Weekday()) - int(time.Monday)
	if day.Weekday() == time.Sunday {
		offset = 6
	}
	return day.AddDate(0, 0, -offset)
}

// DayLabels renders the six column headers for the week starting at monday,
// "Пн 02.03" through "Сб 07.03".
func DayLabels(monday time.Time) [Days]string {
	var labels [Days]string
	for i := 0; i < Days; i++ {
		labels[i] = fmt.Sprintf("%s %s", dayNames[i], monday.AddDate(0, 0, i).Format("02.01"))
	}
	return labels
}

// WeekPeriodLabel renders the week heading, "02.03 – 07.03".
func WeekPeriodLabel(monday time.Time) string {
	return fmt.Sprintf("%s – %s", monday.Format("02.01"), monday.AddDate(0, 0, Days-1).Format("02.01"))
}
