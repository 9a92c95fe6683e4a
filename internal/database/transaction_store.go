package database

import (
	"context"

	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionStore persists confirmed transactions with gorm
type TransactionStore struct {
	db *gorm.DB
}

// NewTransactionStore creates a new transaction store
func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Exists reports whether a transaction with this ID has been stored
func (s *TransactionStore) Exists(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MpesaTransaction{}).
		Where("trans_id = ?", transactionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record inserts txn. The unique index on trans_id decides races between
// concurrent deliveries; the loser gets mpesa.ErrDuplicateTransaction.
func (s *TransactionStore) Record(ctx context.Context, txn mpesa.Transaction) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "trans_id"}}, DoNothing: true}).
		Create(newMpesaTransaction(txn))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mpesa.ErrDuplicateTransaction
	}
	return nil
}
