package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	authorincomedomain "github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	editorcontractdomain "github.com/kongfuworld/settlement/internal/editorcontract/domain"
	editorincomedomain "github.com/kongfuworld/settlement/internal/editorincome/domain"
	"github.com/kongfuworld/settlement/internal/lock"
	"github.com/kongfuworld/settlement/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type authorOutcome struct {
	settled   bool
	allocated int
	failed    int
}

// settleAggregates runs phase two. Each author's novels are locked together
// so the author row and its editor rows are computed from one ledger view.
// Different authors proceed in parallel.
func (s *Service) settleAggregates(ctx context.Context, log *zap.Logger, month calendar.Month, cfg config.SettlementConfig, run *domain.SettlementRun, flags *flagSet) error {
	plan, err := s.authorIncome.AuthorsForMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("select authors: %w", err)
	}
	for _, novel := range plan.Unowned {
		s.flagUnowned(ctx, log, flags, novel)
	}
	run.NovelsFailed += len(plan.Unowned)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, userID := range plan.Authors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := s.settleAuthor(gctx, log, userID, month, cfg, flags)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if out.settled {
				run.AuthorsSettled++
			} else {
				run.AuthorsFailed++
			}
			run.NovelsAllocated += out.allocated
			run.NovelsFailed += out.failed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.runStats.AddBatchProcessed(run.Trigger, "authors", run.AuthorsSettled)
	return ctx.Err()
}

// settleAuthor returns an error only when the run itself must stop.
func (s *Service) settleAuthor(ctx context.Context, log *zap.Logger, userID int64, month calendar.Month, cfg config.SettlementConfig, flags *flagSet) (authorOutcome, error) {
	var out authorOutcome
	authorLog := log.With(zap.Int64("user_id", userID))

	novels, err := s.catalog.NovelsByAuthor(ctx, userID)
	if err != nil {
		s.flagAuthor(ctx, flags, userID, err)
		return out, nil
	}
	keys := make([]string, 0, len(novels))
	for _, n := range novels {
		keys = append(keys, lock.NovelMonthKey(n.ID, month))
	}

	waitStart := time.Now()
	unlock, err := lock.LockAll(ctx, s.locker, keys)
	s.runStats.ObserveLockWait(s.locker.Backend(), time.Since(waitStart))
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		s.flagAuthor(ctx, flags, userID, err)
		return out, nil
	}
	defer unlock()

	agg, err := s.authorIncome.Aggregate(ctx, userID, month, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		s.flagAuthor(ctx, flags, userID, err)
		authorLog.Warn("settlement.author.failed", zap.Error(err))
		return out, nil
	}
	out.settled = true

	for _, novel := range novels {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		authorSide, ok := agg.Income.NovelAmount(novel.ID)
		if !ok {
			authorSide = decimal.Zero
		}
		if err := s.settleNovel(ctx, authorLog, novel.ID, month, cfg, authorSide, flags); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.failed++
			continue
		}
		out.allocated++
	}
	return out, nil
}

func (s *Service) settleNovel(ctx context.Context, log *zap.Logger, novelID int64, month calendar.Month, cfg config.SettlementConfig, authorSide decimal.Decimal, flags *flagSet) error {
	res, err := s.contracts.Resolve(ctx, novelID, month)
	if err != nil {
		s.flagNovel(ctx, flags, novelID, domain.FlagProcessingError, err, authorSide)
		return err
	}
	for _, c := range res.Conflicts {
		s.flagConflict(ctx, flags, novelID, c)
	}

	result, err := s.editorIncome.Allocate(ctx, editorincomedomain.AllocationInput{
		NovelID:    novelID,
		Month:      month,
		Resolution: res,
		AuthorSide: authorSide,
		Config:     cfg,
	})
	if err != nil {
		s.flagNovel(ctx, flags, novelID, allocationFlagKind(err), err, authorSide)
		log.Warn("settlement.novel.failed", zap.Int64("novel_id", novelID), zap.Error(err))
		return err
	}
	if !result.UnassignedUSD.IsZero() {
		log.Info("settlement.novel.unlock_without_chapter",
			zap.Int64("novel_id", novelID),
			zap.String("amount", result.UnassignedUSD.String()),
		)
	}
	return nil
}

// flagUnowned reports ledger revenue that no author row can absorb.
func (s *Service) flagUnowned(ctx context.Context, log *zap.Logger, flags *flagSet, novel authorincomedomain.UnownedNovel) {
	novelID := novel.NovelID
	flags.add(ctx, domain.SettlementFlag{
		Kind:     domain.FlagInputInvalid,
		Severity: domain.SeverityFatal,
		NovelID:  &novelID,
	}, domain.FlagDetail{
		Reason:   "novel_without_author",
		Computed: decimal.Zero.String(),
		Expected: novel.Gross.String(),
	})
	log.Warn("settlement.novel.without_author",
		zap.Int64("novel_id", novelID),
		zap.String("gross", novel.Gross.String()),
	)
}

func (s *Service) flagAuthor(ctx context.Context, flags *flagSet, userID int64, err error) {
	flags.add(ctx, domain.SettlementFlag{
		Kind:     domain.FlagProcessingError,
		Severity: domain.SeverityFatal,
		UserID:   &userID,
	}, domain.FlagDetail{Error: err.Error()})
}

func (s *Service) flagNovel(ctx context.Context, flags *flagSet, novelID int64, kind domain.FlagKind, err error, authorSide decimal.Decimal) {
	flags.add(ctx, domain.SettlementFlag{
		Kind:     kind,
		Severity: domain.SeverityFatal,
		NovelID:  &novelID,
	}, domain.FlagDetail{Error: err.Error(), Expected: authorSide.String()})
}

func (s *Service) flagConflict(ctx context.Context, flags *flagSet, novelID int64, c editorcontractdomain.Conflict) {
	ids := make([]string, 0, len(c.ContractIDs))
	for _, id := range c.ContractIDs {
		ids = append(ids, id.String())
	}
	flags.add(ctx, domain.SettlementFlag{
		Kind:     domain.FlagContractConflict,
		Severity: domain.SeverityWarning,
		NovelID:  &novelID,
		Role:     string(c.Role),
	}, domain.FlagDetail{ContractIDs: ids, Reason: string(c.Reason)})
	s.log.Warn("settlement.contract.conflict",
		zap.Int64("novel_id", novelID),
		zap.String("role", string(c.Role)),
		zap.String("contracts", strings.Join(ids, ",")),
		zap.String("reason", string(c.Reason)),
	)
}
