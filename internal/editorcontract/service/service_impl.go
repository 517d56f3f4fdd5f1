package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/editorcontract/domain"
	"github.com/kongfuworld/settlement/pkg/db/option"
	"github.com/kongfuworld/settlement/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Contracts repository.Repository[domain.EditorContract]
}

type Service struct {
	log       *zap.Logger
	contracts repository.Repository[domain.EditorContract]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("editorcontract.service"),
		contracts: p.Contracts,
	}
}

// Resolve picks the single active contract per role whose window intersects
// month. A role with more than one candidate is reported as a conflict and
// left unresolved.
func (s *Service) Resolve(ctx context.Context, novelID int64, month calendar.Month) (*domain.Resolution, error) {
	if novelID <= 0 {
		return nil, domain.ErrInvalidNovel
	}

	items, err := s.contracts.Find(ctx, nil,
		option.WithWhere("novel_id = ? AND status = ?", novelID, domain.ContractStatusActive),
		option.WithWhere("start_date < ?", month.End()),
		option.WithWhere("end_date IS NULL OR end_date >= ?", month.Start()),
		option.WithOrder("role ASC, start_date ASC, id ASC"),
	)
	if err != nil {
		return nil, err
	}

	res := &domain.Resolution{
		NovelID:  novelID,
		Month:    month,
		Resolved: make(map[catalogdomain.Role]domain.EditorContract),
	}
	byRole := make(map[catalogdomain.Role][]domain.EditorContract)
	for _, c := range items {
		if c.ShareType != domain.ShareTypePercentOfBook {
			res.Ignored++
			s.log.Debug("editorcontract.share_type_ignored",
				zap.Int64("novel_id", novelID),
				zap.String("contract_id", c.ID.String()),
				zap.String("share_type", string(c.ShareType)),
			)
			continue
		}
		if !c.Role.Valid() || !c.Covers(month) {
			res.Ignored++
			continue
		}
		byRole[c.Role] = append(byRole[c.Role], *c)
	}

	one := decimal.NewFromInt(1)
	for _, role := range catalogdomain.Roles() {
		candidates := byRole[role]
		switch {
		case len(candidates) == 0:
			continue
		case len(candidates) > 1:
			res.Conflicts = append(res.Conflicts, domain.Conflict{
				Role:        role,
				ContractIDs: contractIDs(candidates),
				Reason:      conflictReason(candidates),
			})
		case candidates[0].SharePercent.IsNegative() || candidates[0].SharePercent.GreaterThan(one):
			res.Conflicts = append(res.Conflicts, domain.Conflict{
				Role:        role,
				ContractIDs: contractIDs(candidates),
				Reason:      domain.ConflictInvalidShare,
			})
		default:
			res.Resolved[role] = candidates[0]
		}
	}

	if len(res.Conflicts) > 0 {
		s.log.Warn("editorcontract.conflict",
			zap.Int64("novel_id", novelID),
			zap.String("month", month.String()),
			zap.Int("conflicts", len(res.Conflicts)),
		)
	}
	return res, nil
}

func conflictReason(candidates []domain.EditorContract) domain.ConflictReason {
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[i].Overlaps(candidates[j]) {
				return domain.ConflictOverlapping
			}
		}
	}
	return domain.ConflictSequential
}

func contractIDs(candidates []domain.EditorContract) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
