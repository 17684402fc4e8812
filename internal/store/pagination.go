package store

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/safar/kasir/internal/models"
)

type TransactionPage struct {
	Items      []models.Transaction `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
	HasMore    bool                 `json:"has_more"`
}

// TransactionCursor marks the last transaction of a page in
// (created_at, id) descending order.
type TransactionCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor TransactionCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a cursor produced by EncodeCursor. The empty string
// decodes to a cursor positioned before the newest transaction.
func DecodeCursor(encoded string) (TransactionCursor, error) {
	var cursor TransactionCursor
	if encoded == "" {
		return TransactionCursor{
			CreatedAt: time.Now().Add(time.Hour),
			ID:        int64(1<<63 - 1),
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}
