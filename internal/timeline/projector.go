// Package timeline projects session records onto calendar-day buckets for
// display. The projector is stateless and never mutates the underlying
// records; multi-day sessions are clipped per day, not deduplicated.
package timeline

import (
	"time"

	"example.com/presence/internal/domain"
)

// dayOfWeekSeq labels buckets by the weekday of their day start.
var dayOfWeekSeq = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// ActivityItem is one activity session clipped to a single day bucket.
type ActivityItem struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ActivityName     string     `json:"activity_name"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	UnexpectedEnd    bool       `json:"unexpected_end,omitempty"`
	DisplayStartTime time.Time  `json:"display_start_time"`
	DisplayEndTime   time.Time  `json:"display_end_time"`
	IsFuzzyStart     bool       `json:"is_fuzzy_start"`
	IsFuzzyEnd       bool       `json:"is_fuzzy_end"`
}

// StatusItem is one status session clipped to a single day bucket.
type StatusItem struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	UnexpectedEnd    bool       `json:"unexpected_end,omitempty"`
	DisplayStartTime time.Time  `json:"display_start_time"`
	DisplayEndTime   time.Time  `json:"display_end_time"`
	IsFuzzyStart     bool       `json:"is_fuzzy_start"`
	IsFuzzyEnd       bool       `json:"is_fuzzy_end"`
}

// Day is one calendar-day bucket.
type Day struct {
	Date       string         `json:"date"`
	DayOfWeek  string         `json:"day_of_week"`
	Activities []ActivityItem `json:"activities"`
	Statuses   []StatusItem   `json:"statuses"`
}

// Weekly is a seven-day projection starting at StartDate.
type Weekly struct {
	StartDate string `json:"start_date"`
	Days      []Day  `json:"days"`
}

// window is the day-clipped view of one session interval.
type window struct {
	displayStart time.Time
	displayEnd   time.Time
	fuzzyStart   bool
	fuzzyEnd     bool
}

// clip tests a session interval against [dayStart, dayEnd) and computes its
// clipped display bounds. An open session is treated as running until now,
// never as already over.
func clip(start time.Time, end *time.Time, dayStart, dayEnd, now time.Time) (window, bool) {
	effectiveEnd := now
	if end != nil {
		effectiveEnd = *end
	}
	if !start.Before(dayEnd) || !effectiveEnd.After(dayStart) {
		return window{}, false
	}

	w := window{
		fuzzyStart:   start.Before(dayStart),
		fuzzyEnd:     end == nil || end.After(dayEnd),
		displayStart: start,
		displayEnd:   dayEnd,
	}
	if w.fuzzyStart {
		w.displayStart = dayStart
	}
	if !w.fuzzyEnd {
		w.displayEnd = *end
	}
	return w, true
}

// Project buckets the supplied sessions into seven days covering
// [rangeStart, rangeStart+7d). rangeStart is truncated to midnight UTC.
func Project(activities []domain.ActivitySession, statuses []domain.StatusSession, rangeStart, now time.Time) Weekly {
	rangeStart = rangeStart.UTC()
	dayZero := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(), 0, 0, 0, 0, time.UTC)

	weekly := Weekly{
		StartDate: dayZero.Format("2006-01-02"),
		Days:      make([]Day, 0, 7),
	}

	for i := 0; i < 7; i++ {
		dayStart := dayZero.AddDate(0, 0, i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		day := Day{
			Date:       dayStart.Format("2006-01-02"),
			DayOfWeek:  dayOfWeekSeq[int(dayStart.Weekday())],
			Activities: make([]ActivityItem, 0),
			Statuses:   make([]StatusItem, 0),
		}

		for _, session := range activities {
			w, ok := clip(session.StartTime, session.EndTime, dayStart, dayEnd, now)
			if !ok {
				continue
			}
			day.Activities = append(day.Activities, ActivityItem{
				ID:               session.ID,
				UserID:           session.UserID,
				ActivityName:     session.ActivityName,
				StartTime:        session.StartTime,
				EndTime:          session.EndTime,
				UnexpectedEnd:    session.UnexpectedEnd,
				DisplayStartTime: w.displayStart,
				DisplayEndTime:   w.displayEnd,
				IsFuzzyStart:     w.fuzzyStart,
				IsFuzzyEnd:       w.fuzzyEnd,
			})
		}

		for _, session := range statuses {
			w, ok := clip(session.StartTime, session.EndTime, dayStart, dayEnd, now)
			if !ok {
				continue
			}
			day.Statuses = append(day.Statuses, StatusItem{
				ID:               session.ID,
				UserID:           session.UserID,
				Status:           session.Status,
				StartTime:        session.StartTime,
				EndTime:          session.EndTime,
				UnexpectedEnd:    session.UnexpectedEnd,
				DisplayStartTime: w.displayStart,
				DisplayEndTime:   w.displayEnd,
				IsFuzzyStart:     w.fuzzyStart,
				IsFuzzyEnd:       w.fuzzyEnd,
			})
		}

		weekly.Days = append(weekly.Days, day)
	}

	return weekly
}
