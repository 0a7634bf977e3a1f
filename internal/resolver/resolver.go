// Package resolver finds every image that belongs to an order by running an
// ordered list of lookup strategies and keeping the first non-empty result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/storage"
)

var ErrNoTarget = errors.New("order or order id is required")

// ObjectStore is the subset of storage.Store the resolver reads from.
type ObjectStore interface {
	ArtworkRoot() string
	ListFolders(ctx context.Context, prefix string) ([]string, error)
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
	ResolveURL(ctx context.Context, key string) (string, error)
	PublicURL(key string) string
}

type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// Target names the order to resolve. At least one field must be set.
type Target struct {
	Order   *model.Order
	OrderID string
}

func (t Target) id() string {
	if t.OrderID != "" {
		return t.OrderID
	}
	if t.Order != nil && t.Order.ID != uuid.Nil {
		return t.Order.ID.String()
	}
	return ""
}

// Result is the outcome of a lookup. Found is false when no strategy produced
// anything; Reasons then explains what was checked.
type Result struct {
	Images   []model.ImageDescriptor `json:"images"`
	Strategy string                  `json:"strategy,omitempty"`
	Found    bool                    `json:"found"`
	Reasons  []string                `json:"reasons,omitempty"`
}

// Strategy returns the images it found for target, or an empty slice plus a
// reason when it found none.
type Strategy struct {
	Name string
	Find func(ctx context.Context, target Target) ([]model.ImageDescriptor, string, error)
}

type Resolver struct {
	orders     OrderReader
	strategies []Strategy
	log        *slog.Logger
}

// New builds a resolver with the default strategy order: structured item scan,
// metadata reverse lookup, direct field extraction.
func New(store ObjectStore, orders OrderReader, log *slog.Logger) *Resolver {
	return NewWithStrategies(orders, log,
		StructuredScan(store, log),
		MetadataLookup(store, log),
		DirectFields(store),
	)
}

func NewWithStrategies(orders OrderReader, log *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{orders: orders, strategies: strategies, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, target Target) (*Result, error) {
	if target.Order == nil && target.OrderID == "" {
		return nil, ErrNoTarget
	}

	if target.Order == nil && r.orders != nil {
		if id, err := uuid.Parse(target.OrderID); err == nil {
			order, err := r.orders.GetByID(ctx, id)
			if err != nil {
				r.log.Warn("load order for image lookup", "order_id", target.OrderID, "error", err)
			}
			target.Order = order
		}
	}

	log := r.log.With("order_id", target.id())
	result := &Result{Images: []model.ImageDescriptor{}}
	var errs []error

	for _, s := range r.strategies {
		images, reason, err := s.Find(ctx, target)
		if err != nil {
			log.Warn("image strategy failed", "strategy", s.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		images = dedupe(images)
		if len(images) > 0 {
			result.Images = images
			result.Strategy = s.Name
			result.Found = true
			return result, nil
		}
		if reason != "" {
			result.Reasons = append(result.Reasons, reason)
		}
	}

	if len(r.strategies) > 0 && len(errs) == len(r.strategies) {
		return nil, fmt.Errorf("resolve order images: %w", errors.Join(errs...))
	}
	return result, nil
}

func dedupe(images []model.ImageDescriptor) []model.ImageDescriptor {
	seen := make(map[string]bool, len(images))
	out := images[:0]
	for _, img := range images {
		if img.URL == "" || seen[img.URL] {
			continue
		}
		seen[img.URL] = true
		out = append(out, img)
	}
	return out
}

// IsFetchable reports whether u is a remote http(s) URL. Inline data: and
// blob: URIs are not.
func IsFetchable(u string) bool {
	l := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func isInline(u string) bool {
	l := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(l, "data:") || strings.HasPrefix(l, "blob:")
}

func nameFor(name, key string) string {
	if name != "" {
		return name
	}
	if key == "" {
		return ""
	}
	return path.Base(key)
}
