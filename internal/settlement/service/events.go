package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/kongfuworld/settlement/internal/settlement/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type eventOutcome int

const (
	outcomeSettled eventOutcome = iota
	outcomeRemoved
	outcomeSkipped
	outcomeFailed
)

func (o eventOutcome) String() string {
	switch o {
	case outcomeSettled:
		return "settled"
	case outcomeRemoved:
		return "removed"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// selectEvents returns the events touching month plus every source that
// already holds a fragment in month, so stale fragments are revisited.
func (s *Service) selectEvents(ctx context.Context, log *zap.Logger, month calendar.Month, cfg config.SettlementConfig, flags *flagSet) ([]paymentdomain.PaymentEvent, error) {
	events, err := s.payments.EventsTouchingMonth(ctx, month, cfg)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	seen := make(map[paymentdomain.SourceKey]struct{}, len(events))
	for _, ev := range events {
		seen[ev.Key()] = struct{}{}
	}

	existing, err := s.spending.SourcesInMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("select ledger sources: %w", err)
	}
	var extra []paymentdomain.SourceKey
	for _, key := range existing {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	if len(extra) == 0 {
		return events, nil
	}

	found, err := s.payments.FindBySources(ctx, extra)
	if err != nil {
		return nil, fmt.Errorf("load ledger sources: %w", err)
	}
	for _, ev := range found {
		seen[ev.Key()] = struct{}{}
		events = append(events, ev)
	}
	for _, key := range extra {
		if _, ok := seen[key]; ok {
			continue
		}
		sourceID := key.SourceID
		flags.add(ctx, domain.SettlementFlag{
			Kind:       domain.FlagInputInvalid,
			Severity:   domain.SeverityWarning,
			SourceType: string(key.SourceType),
			SourceID:   &sourceID,
		}, domain.FlagDetail{Reason: "ledger_source_without_event"})
		log.Warn("settlement.event.missing",
			zap.String("source_type", string(key.SourceType)),
			zap.Int64("source_id", key.SourceID),
		)
	}
	return events, nil
}

// settleEvents runs phase one: every selected event is valued, split and
// written on its own. A failing event is flagged and does not stop the run.
func (s *Service) settleEvents(ctx context.Context, log *zap.Logger, month calendar.Month, cfg config.SettlementConfig, run *domain.SettlementRun, flags *flagSet) error {
	events, err := s.selectEvents(ctx, log, month, cfg, flags)
	if err != nil {
		return err
	}
	run.EventsSelected = len(events)
	opts := proration.OptionsFrom(cfg)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, ev := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, written, err := s.settleEvent(gctx, ev, opts, cfg)
			s.obsMetrics.RecordEventProcessed(gctx, string(ev.SourceType), outcome.String())

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSettled:
				run.EventsSettled++
				run.FragmentsWritten += written
			case outcomeRemoved:
				run.EventsRemoved++
			case outcomeFailed:
				run.EventsFailed++
				flags.event(gctx, ev, eventFlagKind(err), err)
				log.Warn("settlement.event.failed",
					zap.String("source_type", string(ev.SourceType)),
					zap.Int64("source_id", ev.SourceID),
					zap.Int64("novel_id", ev.NovelID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.runStats.AddBatchProcessed(run.Trigger, "events", run.EventsSettled+run.EventsRemoved)
	return ctx.Err()
}

func (s *Service) settleEvent(ctx context.Context, ev paymentdomain.PaymentEvent, opts proration.Options, cfg config.SettlementConfig) (eventOutcome, int, error) {
	if ev.Status != paymentdomain.EventStatusCompleted {
		removed, err := s.spending.RemoveSource(ctx, ev.Key())
		if err != nil {
			return outcomeFailed, 0, err
		}
		if removed > 0 {
			return outcomeRemoved, 0, nil
		}
		return outcomeSkipped, 0, nil
	}

	valued, err := s.payments.ValueInUSD(ctx, ev, cfg)
	if err != nil {
		return outcomeFailed, 0, err
	}
	fragments, err := proration.Split(proration.InputFromEvent(ev, valued), opts)
	if err != nil {
		return outcomeFailed, 0, err
	}
	result, err := s.spending.WriteEvent(ctx, spendingdomain.WriteRequest{
		Event:     ev,
		Amount:    valued,
		Currency:  cfg.Currency,
		Fragments: fragments,
		Epsilon:   opts.Epsilon,
	})
	if err != nil {
		return outcomeFailed, 0, err
	}
	return outcomeSettled, result.Written, nil
}
