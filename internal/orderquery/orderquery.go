// Package orderquery filters, sorts and paginates order lists for the admin console.
package orderquery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flicky/storybook-api/internal/model"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type SortField string

const (
	SortDate     SortField = "date"
	SortAmount   SortField = "amount"
	SortCustomer SortField = "customer"
	SortStatus   SortField = "status"
)

func (f SortField) Valid() bool {
	switch f {
	case SortDate, SortAmount, SortCustomer, SortStatus:
		return true
	}
	return false
}

// Filter selects orders. Zero fields match everything; From and To are inclusive.
type Filter struct {
	Status model.OrderStatus
	Search string
	From   *time.Time
	To     *time.Time
}

type Sort struct {
	Field SortField
	Desc  bool
}

type Query struct {
	Filter Filter
	Sort   Sort
	Page   int
	Limit  int
}

type Result struct {
	Orders []model.Order
	Total  int
	Page   int
	Limit  int
	Pages  int
}

func (f Filter) Match(o model.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(o.ID.String()), q) &&
			!strings.Contains(strings.ToLower(o.Shipping.FullName), q) &&
			!strings.Contains(strings.ToLower(o.Shipping.Email), q) {
			return false
		}
	}
	return true
}

func Apply(orders []model.Order, f Filter) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out
}

// SortOrders sorts in place. Ties are broken by id so paging is stable.
func SortOrders(orders []model.Order, s Sort) {
	field := s.Field
	if !field.Valid() {
		field = SortDate
	}
	sort.SliceStable(orders, func(i, j int) bool {
		c := compare(orders[i], orders[j], field)
		if c == 0 {
			c = strings.Compare(orders[i].ID.String(), orders[j].ID.String())
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b model.Order, field SortField) int {
	switch field {
	case SortAmount:
		return a.Amount.Cmp(b.Amount)
	case SortCustomer:
		return strings.Compare(strings.ToLower(a.Shipping.FullName), strings.ToLower(b.Shipping.FullName))
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// Paginate clamps page to >= 1 and limit to 1..MaxLimit (0 means DefaultLimit).
func Paginate(orders []model.Order, page, limit int) Result {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	total := len(orders)
	pages := (total + limit - 1) / limit
	start := total
	if page <= pages {
		start = (page - 1) * limit
	}
	end := start + limit
	if end > total {
		end = total
	}
	return Result{Orders: orders[start:end], Total: total, Page: page, Limit: limit, Pages: pages}
}

func Run(orders []model.Order, q Query) Result {
	filtered := Apply(orders, q.Filter)
	SortOrders(filtered, q.Sort)
	return Paginate(filtered, q.Page, q.Limit)
}

// ParseBound parses an RFC 3339 timestamp or a YYYY-MM-DD date. A date-only
// upper bound covers the whole day.
func ParseBound(s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
