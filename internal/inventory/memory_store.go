package inventory

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Ledger with in-memory records. The single mutex
// stands in for the store-level serialization MongoDB gives MongoStore;
// semantics are otherwise identical. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[productID]
	if !exists {
		return ErrProductNotFound
	}
	if rec.QuantityAvailable < qty {
		return ErrInsufficientStock
	}

	rec.QuantityAvailable -= qty
	rec.QuantityReserved += qty
	return nil
}

func (s *MemoryStore) Release(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[productID]
	if !exists {
		return ErrProductNotFound
	}

	rec.QuantityAvailable += qty
	rec.QuantityReserved -= qty
	if rec.QuantityReserved < 0 {
		rec.QuantityReserved = 0
	}
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[productID]
	if !exists {
		return ErrProductNotFound
	}

	rec.QuantityReserved -= qty
	if rec.QuantityReserved < 0 {
		rec.QuantityReserved = 0
	}
	return nil
}

func (s *MemoryStore) GetAvailability(_ context.Context, productID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[productID]
	if !exists {
		return nil, ErrProductNotFound
	}

	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) ListLowStock(_ context.Context, threshold int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if threshold >= 0 {
			if rec.QuantityAvailable <= threshold {
				out = append(out, *rec)
			}
		} else if rec.IsLowStock() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListReserved(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.QuantityReserved > 0 {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Restock(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[productID]
	if !exists {
		return ErrProductNotFound
	}
	if rec.MaxStockLevel > 0 && rec.QuantityAvailable+qty > rec.MaxStockLevel {
		return ErrOverCapacity
	}

	rec.QuantityAvailable += qty
	rec.LastRestocked = time.Now()
	return nil
}

func (s *MemoryStore) SetStock(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.LastRestocked.IsZero() {
		rec.LastRestocked = time.Now()
	}
	copied := rec
	s.records[rec.ProductID] = &copied
	return nil
}
