package statement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	authorincomedomain "github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/clock"
	"github.com/kongfuworld/settlement/internal/config"
	editorincomedomain "github.com/kongfuworld/settlement/internal/editorincome/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidParty    = errors.New("invalid_statement_party")
	ErrNoEditorIncome  = errors.New("editor_income_not_found")
	ErrStatementRender = errors.New("statement_render_failed")
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Config       *config.SettlementConfigHolder
	Catalog      catalogdomain.Service
	AuthorIncome authorincomedomain.Service
	EditorIncome editorincomedomain.Service
}

// Renderer builds monthly earnings statements from settled rows.
type Renderer struct {
	log          *zap.Logger
	clock        clock.Clock
	cfg          *config.SettlementConfigHolder
	catalog      catalogdomain.Service
	authorIncome authorincomedomain.Service
	editorIncome editorincomedomain.Service
}

func New(p Params) *Renderer {
	return &Renderer{
		log:          p.Log.Named("statement"),
		clock:        p.Clock,
		cfg:          p.Config,
		catalog:      p.Catalog,
		authorIncome: p.AuthorIncome,
		editorIncome: p.EditorIncome,
	}
}

// RenderAuthor renders the author's settled month as a PDF.
func (r *Renderer) RenderAuthor(ctx context.Context, userID int64, month calendar.Month) (io.Reader, error) {
	if userID <= 0 {
		return nil, ErrInvalidParty
	}
	income, err := r.authorIncome.Get(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	breakdown := income.NovelBreakdown.Data()
	novelIDs := make([]int64, 0, len(breakdown))
	for key := range breakdown {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("novel breakdown key %q: %w", key, err)
		}
		novelIDs = append(novelIDs, id)
	}
	sort.Slice(novelIDs, func(i, j int) bool { return novelIDs[i] < novelIDs[j] })

	data := Document{
		Title:       "Author earnings statement",
		Party:       fmt.Sprintf("Author #%d", userID),
		Month:       month.String(),
		GeneratedAt: r.clock.Now().UTC().Format("2006-01-02 15:04 MST"),
		Currency:    income.Currency,
		Headers:     []string{"Novel", "Author share"},
	}
	for _, novelID := range novelIDs {
		amount, _ := income.NovelAmount(novelID)
		data.Lines = append(data.Lines, Line{
			Cells: []string{r.novelTitle(ctx, novelID), r.money(amount)},
		})
	}
	data.Totals = []Total{
		{Label: "Base income", Amount: r.money(income.BaseIncome)},
		{Label: "Referral income", Amount: r.money(income.ReferralIncome)},
		{Label: "Total income", Amount: r.money(income.TotalIncome), Emphasis: true},
		{Label: "Paid", Amount: r.money(income.PaidAmount)},
	}
	data.Note = "Payout status: " + string(income.PayoutStatus)

	return r.render(data, zap.String("party", "author"), zap.Int64("user_id", userID), zap.String("month", month.String()))
}

// RenderEditor renders every novel and role the editor earned from in month.
func (r *Renderer) RenderEditor(ctx context.Context, editorID int64, month calendar.Month) (io.Reader, error) {
	if editorID <= 0 {
		return nil, ErrInvalidParty
	}
	rows, err := r.editorIncome.ListByEditorMonth(ctx, editorID, month)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoEditorIncome
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NovelID != rows[j].NovelID {
			return rows[i].NovelID < rows[j].NovelID
		}
		return rows[i].Role < rows[j].Role
	})

	data := Document{
		Title:       "Editor earnings statement",
		Party:       fmt.Sprintf("Editor #%d", editorID),
		Month:       month.String(),
		GeneratedAt: r.clock.Now().UTC().Format("2006-01-02 15:04 MST"),
		Currency:    r.cfg.Get().Currency,
		Headers:     []string{"Novel", "Role", "Source", "Chapters", "Share", "Income"},
	}
	total := decimal.Zero
	for _, row := range rows {
		data.Lines = append(data.Lines, Line{
			Cells: []string{
				r.novelTitle(ctx, row.NovelID),
				string(row.Role),
				string(row.SourceType),
				fmt.Sprintf("%d/%d", row.ChapterCountEditor, row.ChapterCountTotal),
				row.EditorSharePercent.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%",
				r.money(row.EditorIncome),
			},
		})
		total = total.Add(row.EditorIncome)
	}
	data.Totals = []Total{{Label: "Total income", Amount: r.money(total), Emphasis: true}}

	return r.render(data, zap.String("party", "editor"), zap.Int64("editor_id", editorID), zap.String("month", month.String()))
}

func (r *Renderer) render(data Document, fields ...zap.Field) (io.Reader, error) {
	doc, err := build(data)
	if err != nil {
		r.log.Error("statement render failed", append(fields, zap.Error(err))...)
		return nil, fmt.Errorf("%w: %v", ErrStatementRender, err)
	}
	r.log.Info("statement rendered", append(fields, zap.Int("lines", len(data.Lines)))...)
	return bytes.NewReader(doc), nil
}

func (r *Renderer) novelTitle(ctx context.Context, novelID int64) string {
	novel, err := r.catalog.GetNovel(ctx, novelID)
	if err != nil || novel == nil || novel.Title == "" {
		return fmt.Sprintf("Novel #%d", novelID)
	}
	return novel.Title
}

func (r *Renderer) money(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
