package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(New),
)

// Clock abstracts the wall clock so month-close decisions are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
