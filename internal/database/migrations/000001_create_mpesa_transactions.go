package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func createMpesaTransactionsMigration() *gormigrate.Migration {
	// Snapshot of the table at this migration; later model changes get their
	// own migration.
	type mpesaTransaction struct {
		ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
		TransID       string          `gorm:"column:trans_id;type:varchar(64);not null;uniqueIndex"`
		Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
		PhoneNumber   string          `gorm:"type:varchar(20);not null"`
		AccountNumber string          `gorm:"type:varchar(64)"`
		Name          string          `gorm:"type:varchar(255)"`
		RawPayload    string          `gorm:"type:text"`
		ReceivedAt    time.Time       `gorm:"not null;index"`
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	return &gormigrate.Migration{
		ID: "000001_create_mpesa_transactions",
		Migrate: func(tx *gorm.DB) error {
			return tx.Table("mpesa_transactions").AutoMigrate(&mpesaTransaction{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("mpesa_transactions")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createMpesaTransactionsMigration())
}
