// Package menu holds the menu catalog and its stock ledger: one availability
// flag per item. The flag has exactly two writers, the admin toggle and the
// order-rejection side effect; nothing ever flips it back to true
// automatically.
package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dineflow/tableorder/internal/store"
)

var ErrValidation = errors.New("validation failed")

type Store interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
	Get(ctx context.Context, collection, id string) (store.Document, error)
	GetAll(ctx context.Context, collection string) ([]store.Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// Item mirrors the persisted document. Available is a pointer because older
// records lack the field entirely; an absent flag means in stock.
type Item struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
	Price       float64 `json:"price"`
	Available   *bool   `json:"available,omitempty"`
}

func (i Item) InStock() bool { return i.Available == nil || *i.Available }

type Service struct {
	Store Store
}

// List returns the whole menu sorted by category then name, with the
// availability flag materialized.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	docs, err := s.Store.GetAll(ctx, store.CollectionMenuItems)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(docs))
	for _, d := range docs {
		var it Item
		if err := json.Unmarshal(d.Data, &it); err != nil {
			return nil, fmt.Errorf("decode menu item %s: %w", d.ID, err)
		}
		it.ID = d.ID
		if it.Available == nil {
			t := true
			it.Available = &t
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	d, err := s.Store.Get(ctx, store.CollectionMenuItems, id)
	if err != nil {
		return Item{}, err
	}
	var it Item
	if err := json.Unmarshal(d.Data, &it); err != nil {
		return Item{}, fmt.Errorf("decode menu item %s: %w", id, err)
	}
	it.ID = d.ID
	if it.Available == nil {
		t := true
		it.Available = &t
	}
	return it, nil
}

// Save creates the item when ID is empty, otherwise updates the display
// fields. Availability is never touched here; restocking stays an explicit
// toggle.
func (s *Service) Save(ctx context.Context, it Item) (Item, error) {
	if strings.TrimSpace(it.Name) == "" {
		return Item{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if it.Price <= 0 {
		return Item{}, fmt.Errorf("%w: price is required", ErrValidation)
	}

	if it.ID == "" {
		t := true
		it.Available = &t
		id, err := s.Store.Create(ctx, store.CollectionMenuItems, it)
		if err != nil {
			return Item{}, err
		}
		it.ID = id
		return it, nil
	}

	err := s.Store.Update(ctx, store.CollectionMenuItems, it.ID, map[string]any{
		"name":        it.Name,
		"category":    it.Category,
		"description": it.Description,
		"image":       it.Image,
		"price":       it.Price,
	})
	if err != nil {
		return Item{}, err
	}
	return s.Get(ctx, it.ID)
}

// SetAvailable is the admin stock toggle, in either direction.
func (s *Service) SetAvailable(ctx context.Context, id string, available bool) error {
	return s.Store.Update(ctx, store.CollectionMenuItems, id, map[string]any{
		"available": available,
	})
}
