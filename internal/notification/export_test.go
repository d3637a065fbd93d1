package notification

import "time"

func SetEmitterClock(e *Emitter, now func() time.Time) {
	e.now = now
}

func SetSweeperClock(s *Sweeper, now func() time.Time) {
	s.now = now
}
