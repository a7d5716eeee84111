// Package clock предоставляет источник текущего времени для сервисов.
//
// Все сервисы получают время только через clockwork.Clock, чтобы в тестах
// можно было использовать фиктивные часы.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock псевдоним интерфейса clockwork.Clock.
type Clock = clockwork.Clock

type utcClock struct {
	clockwork.Clock
}

// Now возвращает текущее время в UTC.
func (c utcClock) Now() time.Time {
	return c.Clock.Now().UTC()
}

// New возвращает реальные часы, отдающие время в UTC.
func New() Clock {
	return utcClock{Clock: clockwork.NewRealClock()}
}

// NewFake возвращает управляемые часы, выставленные на момент t.
func NewFake(t time.Time) *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(t.UTC())
}
