package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storybook-api/internal/cart"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/repository"
	pkgerrors "github.com/flicky/storybook-api/pkg/errors"
)

var ErrCartItemNotFound = errors.New("cart item not found")

type CartSnapshot struct {
	Items []model.CartItem
	Total decimal.Decimal
	Count int
}

type cachedCart struct {
	cart  *cart.Cart
	dirty bool
}

// CartService owns every mutation of a user's cart. Each mutation rewrites the
// Redis snapshot; when that write fails the in-memory copy stays authoritative
// until a later write succeeds, then it is dropped.
type CartService struct {
	repo  repository.CartRepository
	log   *slog.Logger
	mu    sync.Mutex
	carts map[uuid.UUID]*cachedCart
}

func NewCartService(repo repository.CartRepository, log *slog.Logger) *CartService {
	return &CartService{repo: repo, log: log, carts: make(map[uuid.UUID]*cachedCart)}
}

func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snapshot(cc.cart), nil
}

func (s *CartService) Items(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	snap, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, item *model.CartItem) (*CartSnapshot, error) {
	if item == nil {
		return nil, cart.ErrNilItem
	}
	if !item.Price.IsPositive() {
		return nil, pkgerrors.NewValidation("price", "must be greater than zero")
	}

	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		return c.Add(item)
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID uuid.UUID, itemID string, qty int) (*CartSnapshot, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		if !c.UpdateQuantity(itemID, qty) {
			return ErrCartItemNotFound
		}
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID uuid.UUID, itemID string) (*CartSnapshot, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) error {
		c.Remove(itemID)
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	_, err := s.mutate(ctx, userID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	return err
}

func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, fn func(*cart.Cart) error) (*CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(cc.cart); err != nil {
		return nil, err
	}
	s.persist(ctx, userID, cc)
	return snapshot(cc.cart), nil
}

// load returns the unsaved in-memory cart when there is one, otherwise the
// stored snapshot. Callers hold s.mu.
func (s *CartService) load(ctx context.Context, userID uuid.UUID) (*cachedCart, error) {
	if cc, ok := s.carts[userID]; ok {
		s.persist(ctx, userID, cc)
		return cc, nil
	}

	items, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &cachedCart{cart: cart.New(items)}, nil
}

// persist writes the cart to Redis. Only carts whose last write failed stay in
// memory.
func (s *CartService) persist(ctx context.Context, userID uuid.UUID, cc *cachedCart) {
	if err := s.repo.Save(ctx, userID, cc.cart.Items()); err != nil {
		s.log.Warn("persist cart", "user_id", userID, "error", err)
		cc.dirty = true
		s.carts[userID] = cc
		return
	}
	cc.dirty = false
	delete(s.carts, userID)
}

func snapshot(c *cart.Cart) *CartSnapshot {
	items := c.Items()
	if items == nil {
		items = []model.CartItem{}
	}
	return &CartSnapshot{Items: items, Total: c.Total(), Count: c.ItemCount()}
}
