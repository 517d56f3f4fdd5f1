package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
)

type Service interface {
	Resolve(ctx context.Context, novelID int64, month calendar.Month) (*Resolution, error)
}
