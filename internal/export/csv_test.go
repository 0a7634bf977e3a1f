package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
)

func TestWriteCSV(t *testing.T) {
	created := time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC)
	orders := []model.Order{
		{
			ID: uuid.New(), CreatedAt: created, Status: model.OrderStatusProcessing, Amount: decimal.RequireFromString("499.5"),
			Shipping: model.ShippingDetails{FullName: `Asha "Ash" Rao`, Email: "asha@example.com"},
			Items:    []model.CartItem{{ID: "a", Quantity: 3}, {ID: "b"}},
		},
		{
			ID: uuid.New(), CreatedAt: created, Status: model.OrderStatusPending, Amount: decimal.NewFromInt(10),
			Shipping: model.ShippingDetails{FullName: "Line\nBreak, Jr.", Email: "lb@example.com"},
		},
		{ID: uuid.New(), CreatedAt: created, Status: model.OrderStatusShipped, Amount: decimal.NewFromInt(1)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, orders))
	out := buf.String()

	assert.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, len(orders)+1)
	assert.Equal(t, `"Order ID","Date","Customer","Email","Status","Amount","Items"`, lines[0])

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(orders)+1)
	for _, rec := range records {
		assert.Len(t, rec, 7)
	}
	assert.Equal(t, `Asha "Ash" Rao`, records[1][2])
	assert.Equal(t, "2025-03-05 09:30:00", records[1][1])
	assert.Equal(t, "499.50", records[1][5])
	assert.Equal(t, "2", records[1][6])
	assert.Equal(t, "Line Break, Jr.", records[2][2])
	assert.Equal(t, "0", records[3][6])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "\"Order ID\",\"Date\",\"Customer\",\"Email\",\"Status\",\"Amount\",\"Items\"\n", buf.String())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "orders_20250305_093000.csv", FileName(time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC)))
}
