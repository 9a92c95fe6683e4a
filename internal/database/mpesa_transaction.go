package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MpesaTransaction is a confirmed C2B payment as stored in the database
type MpesaTransaction struct {
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

// TableName pins the table name
func (MpesaTransaction) TableName() string {
	return "mpesa_transactions"
}

// BeforeCreate will set a UUID rather than numeric ID.
func (m *MpesaTransaction) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func newMpesaTransaction(txn mpesa.Transaction) *MpesaTransaction {
	return &MpesaTransaction{
		TransID:       txn.TransactionID,
		Amount:        txn.Amount,
		PhoneNumber:   txn.Phone,
		AccountNumber: txn.AccountNumber,
		Name:          txn.Name,
		RawPayload:    txn.RawPayload,
		ReceivedAt:    txn.ReceivedAt,
	}
}
