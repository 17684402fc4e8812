package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/models"
	"github.com/shopspring/decimal"
)

const (
	transactionColumns = `id, total, currency, rate_to_base, paid, change, created_at`
	itemColumns        = `id, transaction_id, product_id, barcode, name, unit_price, quantity, subtotal`

	idempotencyKeyConstraint = "transactions_idempotency_key_key"
)

// ErrDuplicateIdempotencyKey is returned by CreateTransaction when another
// checkout already committed with the same key.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

var ErrInvalidCursor = errors.New("invalid cursor")

type CreateTransactionRequest struct {
	Total          int64
	Currency       string
	RateToBase     decimal.Decimal
	Paid           int64
	Change         int64
	IdempotencyKey string
	Items          []TransactionItemRequest
}

type TransactionItemRequest struct {
	Barcode   string
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}

// CreateTransaction writes the transaction row and all of its item rows in a
// single database transaction. Item rows are linked to catalog products by
// barcode; unknown barcodes leave product_id NULL and create nothing.
func CreateTransaction(ctx context.Context, db *sql.DB, req CreateTransactionRequest) (*models.Receipt, error) {
	var receipt *models.Receipt

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		receipt = &models.Receipt{}
		t := &receipt.Transaction

		err := tx.QueryRowContext(ctx,
			`INSERT INTO transactions (total, currency, rate_to_base, paid, change, idempotency_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING `+transactionColumns,
			req.Total, req.Currency, req.RateToBase, req.Paid, req.Change, nullIfEmpty(req.IdempotencyKey)).Scan(
			&t.ID,
			&t.Total,
			&t.Currency,
			&t.RateToBase,
			&t.Paid,
			&t.Change,
			&t.CreatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err, idempotencyKeyConstraint) {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("create transaction: %w", database.AsConstraintError(err))
		}

		receipt.Items = make([]models.TransactionItem, 0, len(req.Items))
		for _, item := range req.Items {
			var productID sql.NullInt64
			if barcode := nullIfEmpty(item.Barcode); barcode.Valid {
				product, err := GetProductByBarcode(ctx, tx, barcode.String)
				switch {
				case err == nil:
					productID = sql.NullInt64{Int64: product.ID, Valid: true}
				case !errors.Is(err, database.ErrProductNotFound):
					return fmt.Errorf("resolve product %s: %w", barcode.String, err)
				}
			}

			saved, err := scanItem(tx.QueryRowContext(ctx,
				`INSERT INTO transaction_items (transaction_id, product_id, barcode, name, unit_price, quantity, subtotal)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING `+itemColumns,
				t.ID, productID, nullIfEmpty(item.Barcode), item.Name, item.UnitPrice, item.Quantity, item.Subtotal))
			if err != nil {
				return fmt.Errorf("create transaction item: %w", database.AsConstraintError(err))
			}
			receipt.Items = append(receipt.Items, *saved)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(
		&t.ID,
		&t.Total,
		&t.Currency,
		&t.RateToBase,
		&t.Paid,
		&t.Change,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanItem(row rowScanner) (*models.TransactionItem, error) {
	item := &models.TransactionItem{}
	var (
		productID sql.NullInt64
		barcode   sql.NullString
	)

	err := row.Scan(
		&item.ID,
		&item.TransactionID,
		&productID,
		&barcode,
		&item.Name,
		&item.UnitPrice,
		&item.Quantity,
		&item.Subtotal,
	)
	if err != nil {
		return nil, err
	}
	if productID.Valid {
		item.ProductID = &productID.Int64
	}
	if barcode.Valid {
		item.Barcode = &barcode.String
	}

	return item, nil
}

// GetReceipt reads a transaction and its items from one snapshot.
func GetReceipt(ctx context.Context, db *sql.DB, id int64) (*models.Receipt, error) {
	return getReceipt(ctx, db, `id = $1`, id)
}

func GetReceiptByIdempotencyKey(ctx context.Context, db *sql.DB, key string) (*models.Receipt, error) {
	return getReceipt(ctx, db, `idempotency_key = $1`, key)
}

func getReceipt(ctx context.Context, db *sql.DB, where string, arg any) (*models.Receipt, error) {
	var receipt *models.Receipt

	err := database.WithTransaction(ctx, db, database.SnapshotTxOptions(), func(tx *sql.Tx) error {
		t, err := scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE `+where, arg))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrTransactionNotFound
			}
			return fmt.Errorf("get transaction: %w", err)
		}

		items, err := listItems(ctx, tx, []int64{t.ID})
		if err != nil {
			return err
		}

		receipt = &models.Receipt{Transaction: *t, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

func listItems(ctx context.Context, q database.Querier, transactionIDs []int64) ([]models.TransactionItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+`
		 FROM transaction_items
		 WHERE transaction_id = ANY($1)
		 ORDER BY transaction_id, id`,
		pq.Array(transactionIDs))
	if err != nil {
		return nil, fmt.Errorf("get transaction items: %w", err)
	}
	defer rows.Close()

	items := []models.TransactionItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// ListTransactions returns up to limit transactions older than cursor, newest
// first.
func ListTransactions(ctx context.Context, q database.Querier, cursor string, limit int) (*TransactionPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := q.QueryContext(ctx, query, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(transactions) > limit
	if hasMore {
		transactions = transactions[:limit]
	}

	var nextCursor string
	if hasMore && len(transactions) > 0 {
		last := transactions[len(transactions)-1]
		nextCursor = EncodeCursor(TransactionCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &TransactionPage{
		Items:      transactions,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListReceipts returns the newest limit transactions with their items, read
// from one snapshot.
func ListReceipts(ctx context.Context, db *sql.DB, limit int) ([]models.Receipt, error) {
	var receipts []models.Receipt

	err := database.WithTransaction(ctx, db, database.SnapshotTxOptions(), func(tx *sql.Tx) error {
		page, err := ListTransactions(ctx, tx, "", limit)
		if err != nil {
			return err
		}

		ids := make([]int64, len(page.Items))
		byID := make(map[int64]int, len(page.Items))
		receipts = make([]models.Receipt, len(page.Items))
		for i, t := range page.Items {
			ids[i] = t.ID
			byID[t.ID] = i
			receipts[i] = models.Receipt{Transaction: t, Items: []models.TransactionItem{}}
		}
		if len(ids) == 0 {
			return nil
		}

		items, err := listItems(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, item := range items {
			i := byID[item.TransactionID]
			receipts[i].Items = append(receipts[i].Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipts, nil
}
