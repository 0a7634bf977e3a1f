package cart

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
)

func book(id string, price float64) *model.CartItem {
	return &model.CartItem{ID: id, Type: model.ItemTypeCustomBook, Price: decimal.NewFromFloat(price)}
}

func TestCart_AddNewItem(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(&model.CartItem{ID: "a", Type: "gift-wrap", Price: decimal.NewFromInt(5), Quantity: 7}))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.False(t, items[0].DateAdded.IsZero())
}

func TestCart_AddGeneratesID(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(&model.CartItem{Type: "custom-book", Price: decimal.NewFromInt(10)}))
	assert.NotEmpty(t, c.Items()[0].ID)
}

func TestCart_AddNil(t *testing.T) {
	c := New(nil)
	assert.ErrorIs(t, c.Add(nil), ErrNilItem)
	assert.Equal(t, 0, c.Len())
}

func TestCart_ReAddBookReplaces(t *testing.T) {
	c := New(nil)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return first }
	require.NoError(t, c.Add(book("b1", 499)))
	c.UpdateQuantity("b1", 3)

	later := first.Add(time.Hour)
	c.now = func() time.Time { return later }
	replacement := book("b1", 599)
	replacement.Title = "Second draft"
	require.NoError(t, c.Add(replacement))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "Second draft", items[0].Title)
	assert.True(t, decimal.NewFromInt(599).Equal(items[0].Price))
	assert.Equal(t, later, items[0].DateAdded)
}

func TestCart_ReAddNonBookIncrements(t *testing.T) {
	c := New(nil)
	item := &model.CartItem{ID: "st", Type: "sticker", Price: decimal.NewFromInt(2)}
	require.NoError(t, c.Add(item))
	added := c.Items()[0].DateAdded
	require.NoError(t, c.Add(item))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, added, items[0].DateAdded)
}

func TestCart_UpdateQuantityClamps(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(book("b1", 10)))

	for _, qty := range []int{0, -1, -100} {
		assert.True(t, c.UpdateQuantity("b1", qty))
		assert.Equal(t, 1, c.Items()[0].Quantity)
	}
	assert.True(t, c.UpdateQuantity("b1", 4))
	assert.Equal(t, 4, c.Items()[0].Quantity)
	assert.False(t, c.UpdateQuantity("missing", 4))
}

func TestCart_RemoveMissingIsNoop(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(book("b1", 10)))
	assert.False(t, c.Remove("nope"))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Remove("b1"))
	assert.Equal(t, 0, c.Len())
}

func TestCart_TotalTreatsMissingQuantityAsOne(t *testing.T) {
	c := New([]model.CartItem{
		{ID: "a", Price: decimal.NewFromFloat(10.5)},
		{ID: "b", Price: decimal.NewFromInt(3), Quantity: 2},
	})
	assert.True(t, decimal.NewFromFloat(16.5).Equal(c.Total()), c.Total().String())
	assert.Equal(t, 3, c.ItemCount())
}

func TestCart_ClearEmpties(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(book("b1", 10)))
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Total().IsZero())
}

func TestCart_TotalMatchesSumAfterRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}
	types := []string{model.ItemTypeCustomBook, "sticker"}
	c := New(nil)

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, c.Add(&model.CartItem{
				ID: id, Type: types[rng.Intn(len(types))], Price: decimal.NewFromInt(int64(rng.Intn(900) + 1)),
			}))
		case 1:
			c.Remove(id)
		case 2:
			c.UpdateQuantity(id, rng.Intn(7)-2)
		}

		want := decimal.Zero
		count := 0
		for _, it := range c.Items() {
			require.GreaterOrEqual(t, it.Quantity, 1)
			want = want.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			count += it.Quantity
		}
		require.True(t, want.Equal(c.Total()))
		require.Equal(t, count, c.ItemCount())
	}
}
