// Package export renders admin order exports.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/flicky/storybook-api/internal/model"
)

var csvHeader = []string{"Order ID", "Date", "Customer", "Email", "Status", "Amount", "Items"}

const csvDateLayout = "2006-01-02 15:04:05"

// WriteCSV writes one header row plus one row per order. Every field is
// double-quoted and every row ends with "\n".
func WriteCSV(w io.Writer, orders []model.Order) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, csvHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := writeRow(bw, row(o)); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(o model.Order) []string {
	return []string{
		o.ID.String(),
		o.CreatedAt.UTC().Format(csvDateLayout),
		o.Shipping.FullName,
		o.Shipping.Email,
		string(o.Status),
		o.Amount.StringFixed(2),
		strconv.Itoa(len(o.Items)),
	}
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func quote(s string) string {
	return `"` + strings.ReplaceAll(flatten.Replace(s), `"`, `""`) + `"`
}

// FileName is the download name for an export generated at t.
func FileName(t time.Time) string {
	return "orders_" + t.UTC().Format("20060102_150405") + ".csv"
}
