package service

import (
	"sort"

	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	editorcontractdomain "github.com/kongfuworld/settlement/internal/editorcontract/domain"
	"github.com/kongfuworld/settlement/internal/editorincome/domain"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"github.com/shopspring/decimal"
)

const shareScale = 10

// revenue is a novel month's gross split by channel.
type revenue struct {
	gross        decimal.Decimal
	subscription decimal.Decimal
	byChapter    map[int64]decimal.Decimal
	unassigned   decimal.Decimal
}

func collectRevenue(fragments []spendingdomain.SpendingFragment) revenue {
	rev := revenue{byChapter: make(map[int64]decimal.Decimal)}
	for _, f := range fragments {
		rev.gross = rev.gross.Add(f.Amount)
		switch {
		case f.SourceType != paymentdomain.SourceTypeUnlock:
			rev.subscription = rev.subscription.Add(f.Amount)
		case f.ChapterID == nil:
			rev.unassigned = rev.unassigned.Add(f.Amount)
		default:
			rev.byChapter[*f.ChapterID] = rev.byChapter[*f.ChapterID].Add(f.Amount)
		}
	}
	return rev
}

func (r revenue) chapters() []int64 {
	ids := make([]int64, 0, len(r.byChapter))
	for id := range r.byChapter {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// normalizationFactor scales role percents down when they sum above one.
func normalizationFactor(res *editorcontractdomain.Resolution) (decimal.Decimal, bool) {
	one := decimal.NewFromInt(1)
	sum := decimal.Zero
	for _, c := range res.Resolved {
		sum = sum.Add(c.SharePercent)
	}
	if sum.LessThanOrEqual(one) {
		return one, false
	}
	return one.DivRound(sum, 16), true
}

type accrual struct {
	contract     editorcontractdomain.EditorContract
	unlock       decimal.Decimal
	subscription decimal.Decimal
	hasUnlock    bool
	hasSub       bool
	count        int
	denominator  int
}

type allocation struct {
	accruals   map[domain.RowKey]*accrual
	normalized bool
	// unrouted is unlock revenue with no assignee for a resolved role.
	unrouted map[catalogdomain.Role]decimal.Decimal
}

// allocate applies the resolved contracts to the month's revenue. Unlock
// revenue follows the chapter's assignee for the role; subscription revenue
// follows each editor's share of the month's chapters.
func allocate(
	res *editorcontractdomain.Resolution,
	rev revenue,
	assignments catalogdomain.Assignments,
	workload *catalogdomain.Workload,
) allocation {
	factor, normalized := normalizationFactor(res)
	out := allocation{
		accruals:   make(map[domain.RowKey]*accrual),
		normalized: normalized,
		unrouted:   make(map[catalogdomain.Role]decimal.Decimal),
	}
	get := func(editorID int64, c editorcontractdomain.EditorContract) *accrual {
		key := domain.RowKey{EditorID: editorID, Role: c.Role}
		a, ok := out.accruals[key]
		if !ok {
			a = &accrual{contract: c}
			out.accruals[key] = a
		}
		return a
	}

	for _, role := range res.Roles() {
		c := res.Resolved[role]
		effective := c.SharePercent.Mul(factor)

		for _, chapterID := range rev.chapters() {
			amount := rev.byChapter[chapterID]
			editorID, ok := assignments.Editor(chapterID, role)
			if !ok {
				out.unrouted[role] = out.unrouted[role].Add(amount)
				continue
			}
			a := get(editorID, c)
			a.unlock = a.unlock.Add(amount.Mul(effective))
			a.hasUnlock = true
		}

		if rev.subscription.IsZero() || workload == nil {
			continue
		}
		denominator := workload.Total
		if sum := workload.RoleCount(role); sum > denominator {
			denominator = sum
		}
		if denominator == 0 {
			continue
		}
		for _, ec := range workload.ByRole[role] {
			a := get(ec.EditorID, c)
			a.subscription = a.subscription.Add(
				rev.subscription.Mul(effective).
					Mul(decimal.NewFromInt(int64(ec.ChapterCount))).
					Div(decimal.NewFromInt(int64(denominator))),
			)
			a.hasSub = true
			a.count = ec.ChapterCount
			a.denominator = denominator
		}
	}
	return out
}

// rows renders accruals as editor rows in (role, editor) order, dropping
// editors whose income rounds to zero.
func (a allocation) rows(gross decimal.Decimal, scale int32) []domain.EditorMonthlyIncome {
	keys := make([]domain.RowKey, 0, len(a.accruals))
	for k := range a.accruals {
		keys = append(keys, k)
	}
	order := make(map[catalogdomain.Role]int, 3)
	for i, r := range catalogdomain.Roles() {
		order[r] = i
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Role != keys[j].Role {
			return order[keys[i].Role] < order[keys[j].Role]
		}
		return keys[i].EditorID < keys[j].EditorID
	})

	out := make([]domain.EditorMonthlyIncome, 0, len(keys))
	for _, k := range keys {
		acc := a.accruals[k]
		income := acc.unlock.Add(acc.subscription).Truncate(scale)
		if !income.IsPositive() {
			continue
		}
		share := decimal.Zero
		if gross.IsPositive() {
			share = income.DivRound(gross, shareScale)
		}
		out = append(out, domain.EditorMonthlyIncome{
			EditorID:             k.EditorID,
			Role:                 k.Role,
			SourceType:           sourceOf(acc),
			ContractID:           acc.contract.ID,
			ChapterCountTotal:    acc.denominator,
			ChapterCountEditor:   acc.count,
			GrossBookIncome:      gross,
			ContractSharePercent: acc.contract.SharePercent,
			EditorSharePercent:   share,
			EditorIncome:         income,
		})
	}
	return out
}

func sourceOf(a *accrual) domain.IncomeSource {
	switch {
	case a.hasUnlock && a.hasSub:
		return domain.IncomeSourceMixed
	case a.hasSub:
		return domain.IncomeSourceSubscription
	default:
		return domain.IncomeSourceUnlock
	}
}
