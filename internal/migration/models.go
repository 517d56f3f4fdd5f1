package migration

import (
	authorincomedomain "github.com/kongfuworld/settlement/internal/authorincome/domain"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	editorcontractdomain "github.com/kongfuworld/settlement/internal/editorcontract/domain"
	editorincomedomain "github.com/kongfuworld/settlement/internal/editorincome/domain"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"gorm.io/gorm"
)

// Models lists every table the engine reads or writes.
func Models() []any {
	return []any{
		&paymentdomain.PaymentEvent{},
		&paymentdomain.KarmaRate{},
		&catalogdomain.Novel{},
		&catalogdomain.ChapterAssignment{},
		&catalogdomain.ChapterWorkload{},
		&catalogdomain.NovelChapterTotal{},
		&editorcontractdomain.EditorContract{},
		&spendingdomain.SpendingFragment{},
		&authorincomedomain.AuthorMonthlyIncome{},
		&authorincomedomain.ReferralIncome{},
		&editorincomedomain.EditorMonthlyIncome{},
		&settlementdomain.SettlementFlag{},
		&settlementdomain.SettlementRun{},
	}
}

// AutoMigrate creates the schema from the models. Used for sqlite and mysql,
// where the versioned postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
