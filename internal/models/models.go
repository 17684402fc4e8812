package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultUnit = "pcs"

type Product struct {
	ID        int64     `json:"id"`
	Barcode   *string   `json:"barcode"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// LineItem is one cart entry as sent by the till. It is not persisted until
// checkout turns it into a TransactionItem.
type LineItem struct {
	Barcode   string `json:"barcode,omitempty"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Transaction is a recorded sale. Amounts are whole units of the base
// currency; RateToBase is the rate that applied to Currency at the time of
// sale and is kept for bookkeeping only.
type Transaction struct {
	ID         int64           `json:"id"`
	Total      int64           `json:"total"`
	Currency   string          `json:"currency"`
	RateToBase decimal.Decimal `json:"rate_to_base"`
	Paid       int64           `json:"paid"`
	Change     int64           `json:"change"`
	CreatedAt  time.Time       `json:"created_at"`

	// RateEstimated is set when the rate service failed and 1.0 was used
	// instead. It is reported on the checkout response only.
	RateEstimated bool `json:"rate_estimated,omitempty"`
}

type TransactionItem struct {
	ID            int64   `json:"id"`
	TransactionID int64   `json:"transaction_id"`
	ProductID     *int64  `json:"product_id"`
	Barcode       *string `json:"barcode"`
	Name          string  `json:"name"`
	UnitPrice     int64   `json:"unit_price"`
	Quantity      int     `json:"quantity"`
	Subtotal      int64   `json:"subtotal"`
}

// Receipt is a transaction together with its items.
type Receipt struct {
	Transaction Transaction       `json:"transaction"`
	Items       []TransactionItem `json:"items"`

	// Replayed marks a receipt returned for a repeated idempotency key.
	Replayed bool `json:"-"`
}
