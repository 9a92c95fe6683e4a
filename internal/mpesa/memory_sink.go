package mpesa

import (
	"context"
	"sync"
)

// MemorySink keeps transactions in process memory. It backs development runs
// without a database.
type MemorySink struct {
	mu           sync.Mutex
	transactions map[string]Transaction
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{transactions: make(map[string]Transaction)}
}

// Exists reports whether the transaction ID was recorded
func (s *MemorySink) Exists(_ context.Context, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transactions[transactionID]
	return ok, nil
}

// Record stores txn unless its ID is already present
func (s *MemorySink) Record(_ context.Context, txn Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[txn.TransactionID]; ok {
		return ErrDuplicateTransaction
	}
	s.transactions[txn.TransactionID] = txn
	return nil
}

// Len returns the number of stored transactions
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}
