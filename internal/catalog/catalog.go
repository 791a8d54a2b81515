// Package catalog serves a small read-only product list. It is the resource
// the rate limiter fronts in the demo server.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"gatekeeper/pkg/platform/sentinel"
)

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Store is an in-memory product list, kept in insertion order.
type Store struct {
	mu       sync.RWMutex
	products []Product
}

func NewStore(products ...Product) *Store {
	return &Store{products: slices.Clone(products)}
}

// NewSeededStore returns a store holding the demo products.
func NewSeededStore() *Store {
	return NewStore(
		Product{ID: "1", Name: "Airpods Wireless Bluetooth Headphones", Description: "Bluetooth technology lets you connect it with compatible devices wirelessly", Price: 89.99},
		Product{ID: "2", Name: "iPhone 11 Pro 256GB Memory", Description: "Introducing the iPhone 11 Pro", Price: 599.99},
		Product{ID: "3", Name: "Cannon EOS 80D DSLR Camera", Description: "Characterized by versatile imaging specs", Price: 929.99},
	)
}

func (s *Store) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products), nil
}

func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.products {
		if s.products[i].ID == id {
			p := s.products[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", id, sentinel.ErrNotFound)
}
