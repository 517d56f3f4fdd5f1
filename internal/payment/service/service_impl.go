package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/kongfuworld/settlement/pkg/db/option"
	"github.com/kongfuworld/settlement/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     *config.SettlementConfigHolder
	Repo       paymentdomain.Repository
	KarmaRates repository.Repository[paymentdomain.KarmaRate]
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        *config.SettlementConfigHolder
	repo       paymentdomain.Repository
	karmaRates repository.Repository[paymentdomain.KarmaRate]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		cfg:        p.Config,
		repo:       p.Repo,
		karmaRates: p.KarmaRates,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Import(ctx context.Context, raws []paymentdomain.RawEvent) ([]paymentdomain.ImportResult, error) {
	opts := proration.OptionsFrom(s.cfg.Get())
	results := make([]paymentdomain.ImportResult, 0, len(raws))
	var created, duplicates, rejected int

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := paymentdomain.ImportResult{SourceType: raw.SourceType, SourceID: raw.SourceID}

		ev, err := ParseRawEvent(raw, opts)
		if err != nil {
			result.Err = err
			results = append(results, result)
			rejected++
			s.obsMetrics.RecordImport(ctx, "rejected")
			s.log.Warn("payment.import.rejected",
				zap.String("source_type", raw.SourceType),
				zap.Int64("source_id", raw.SourceID),
				zap.Error(err),
			)
			continue
		}
		ev.ID = s.genID.Generate()

		inserted, err := s.repo.InsertEvent(ctx, s.db, ev)
		if err != nil {
			return results, fmt.Errorf("insert %s %d: %w", ev.SourceType, ev.SourceID, err)
		}
		result.Created = inserted
		results = append(results, result)
		if inserted {
			created++
			s.obsMetrics.RecordImport(ctx, "created")
		} else {
			duplicates++
			s.obsMetrics.RecordImport(ctx, "duplicate")
		}
	}

	s.log.Info("payment.import.done",
		zap.Int("received", len(raws)),
		zap.Int("created", created),
		zap.Int("duplicates", duplicates),
		zap.Int("rejected", rejected),
	)
	return results, nil
}

func (s *Service) ValueInUSD(ctx context.Context, event paymentdomain.PaymentEvent, cfg config.SettlementConfig) (decimal.Decimal, error) {
	scale := cfg.AmountScale
	switch event.Currency {
	case paymentdomain.CurrencyUSD:
		return event.Amount.Round(scale), nil
	case paymentdomain.CurrencyKarma:
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", paymentdomain.ErrInvalidCurrency, event.Currency)
	}

	rate, err := s.rateAt(ctx, event.PurchasedAt)
	if err != nil {
		return decimal.Zero, err
	}
	if rate == nil {
		return decimal.Zero, fmt.Errorf("%w: %s %d at %s", paymentdomain.ErrMissingKarmaRate,
			event.SourceType, event.SourceID, event.PurchasedAt.Format(time.RFC3339))
	}
	return event.Amount.Mul(rate.USDPerKarma).Round(scale), nil
}

func (s *Service) rateAt(ctx context.Context, at time.Time) (*paymentdomain.KarmaRate, error) {
	return s.karmaRates.FindOne(ctx, nil,
		option.WithWhere("effective_from <= ?", at),
		option.WithWhere("effective_to IS NULL OR effective_to > ?", at),
		option.WithOrder("effective_from DESC"),
		option.WithLimit(1),
	)
}

// EventsTouchingMonth returns every stored event whose settlement months
// include month, whatever its status. Events whose stored interval no longer
// validates are returned too so the caller can report them.
func (s *Service) EventsTouchingMonth(ctx context.Context, month calendar.Month, cfg config.SettlementConfig) ([]paymentdomain.PaymentEvent, error) {
	candidates, err := s.repo.CandidatesForMonth(ctx, s.db, month.Start(), month.End())
	if err != nil {
		return nil, err
	}
	opts := proration.OptionsFrom(cfg)

	out := make([]paymentdomain.PaymentEvent, 0, len(candidates))
	for _, ev := range candidates {
		months, err := proration.Months(proration.InputFromEvent(ev, ev.Amount.Abs()), opts)
		if err != nil {
			out = append(out, ev)
			continue
		}
		for _, m := range months {
			if m.Equal(month) {
				out = append(out, ev)
				break
			}
		}
	}
	return out, nil
}

func (s *Service) FindBySources(ctx context.Context, keys []paymentdomain.SourceKey) ([]paymentdomain.PaymentEvent, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return s.repo.FindBySources(ctx, s.db, keys)
}
