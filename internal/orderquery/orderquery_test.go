package orderquery

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
)

func sampleOrders() []model.Order {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	return []model.Order{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Status: model.OrderStatusPending, Amount: decimal.NewFromInt(300),
			Shipping: model.ShippingDetails{FullName: "Zara Khan", Email: "zara@example.com"}, CreatedAt: day(1)},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Status: model.OrderStatusProcessing, Amount: decimal.NewFromInt(100),
			Shipping: model.ShippingDetails{FullName: "asha rao", Email: "asha@example.com"}, CreatedAt: day(5)},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Status: model.OrderStatusProcessing, Amount: decimal.NewFromInt(200),
			Shipping: model.ShippingDetails{FullName: "Ben Ito", Email: "ben@shop.test"}, CreatedAt: day(9)},
	}
}

func ids(orders []model.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID.String()[35:]
	}
	return out
}

func TestFilter(t *testing.T) {
	orders := sampleOrders()

	assert.Equal(t, []string{"2", "3"}, ids(Apply(orders, Filter{Status: model.OrderStatusProcessing})))
	assert.Equal(t, []string{"2"}, ids(Apply(orders, Filter{Search: "ASHA"})))
	assert.Equal(t, []string{"3"}, ids(Apply(orders, Filter{Search: "shop.test"})))
	assert.Equal(t, []string{"1"}, ids(Apply(orders, Filter{Search: "0001"})))

	from, err := ParseBound("2025-03-05", false)
	require.NoError(t, err)
	to, err := ParseBound("2025-03-09", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(Apply(orders, Filter{From: from, To: to})))
}

func TestSort(t *testing.T) {
	cases := []struct {
		sort Sort
		want []string
	}{
		{Sort{Field: SortDate, Desc: true}, []string{"3", "2", "1"}},
		{Sort{Field: SortAmount}, []string{"2", "3", "1"}},
		{Sort{Field: SortCustomer}, []string{"2", "3", "1"}},
		{Sort{Field: SortStatus, Desc: true}, []string{"3", "2", "1"}},
		{Sort{Field: "bogus"}, []string{"1", "2", "3"}},
	}
	for _, tc := range cases {
		orders := sampleOrders()
		SortOrders(orders, tc.sort)
		assert.Equal(t, tc.want, ids(orders), string(tc.sort.Field))
	}
}

func TestPaginate(t *testing.T) {
	orders := sampleOrders()

	res := Paginate(orders, 2, 2)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []string{"3"}, ids(res.Orders))

	res = Paginate(orders, 0, 0)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultLimit, res.Limit)
	assert.Len(t, res.Orders, 3)

	res = Paginate(orders, 9, 500)
	assert.Equal(t, MaxLimit, res.Limit)
	assert.Empty(t, res.Orders)

	res = Paginate(orders, math.MaxInt, 20)
	assert.Equal(t, math.MaxInt, res.Page)
	assert.Empty(t, res.Orders)

	res = Paginate(nil, math.MaxInt, MaxLimit)
	assert.Equal(t, 0, res.Pages)
	assert.Empty(t, res.Orders)
}

func TestRun(t *testing.T) {
	res := Run(sampleOrders(), Query{
		Filter: Filter{Status: model.OrderStatusProcessing},
		Sort:   Sort{Field: SortAmount, Desc: true},
		Page:   1,
		Limit:  1,
	})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"3"}, ids(res.Orders))
}

func TestParseBound(t *testing.T) {
	b, err := ParseBound("", true)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = ParseBound("2025-03-05T12:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, 12, b.Hour())

	b, err = ParseBound("2025-03-05", true)
	require.NoError(t, err)
	assert.Equal(t, 23, b.Hour())

	_, err = ParseBound("March 5", false)
	assert.Error(t, err)
}
