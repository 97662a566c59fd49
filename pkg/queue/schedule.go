package queue

import (
	"fmt"
	"time"
)

// Schedule determines when a periodic task runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

// EveryInterval fires every d. A non-positive d is rejected by Scheduler.AddTask.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// EveryMinute is EveryInterval(time.Minute).
func EveryMinute() Schedule {
	return intervalSchedule{every: time.Minute}
}

func validSchedule(s Schedule) bool {
	if s == nil {
		return false
	}
	if is, ok := s.(intervalSchedule); ok {
		return is.every > 0
	}
	return true
}
