package store

import (
	"context"
	"database/sql"

	"github.com/safar/kasir/internal/models"
)

// Store binds the package functions to a connection pool so they can be
// handed to consumers that depend on interfaces.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateProduct(ctx context.Context, p NewProduct) (*models.Product, error) {
	return CreateProduct(ctx, s.db, p)
}

func (s *Store) ListProducts(ctx context.Context, search string, limit int) ([]models.Product, error) {
	return ListProducts(ctx, s.db, search, limit)
}

func (s *Store) GetOrCreateProductByBarcode(ctx context.Context, code, defaultName string, defaultPrice int64) (*models.Product, error) {
	return GetOrCreateProductByBarcode(ctx, s.db, code, defaultName, defaultPrice)
}

func (s *Store) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*models.Receipt, error) {
	return CreateTransaction(ctx, s.db, req)
}

func (s *Store) GetReceipt(ctx context.Context, id int64) (*models.Receipt, error) {
	return GetReceipt(ctx, s.db, id)
}

func (s *Store) GetReceiptByIdempotencyKey(ctx context.Context, key string) (*models.Receipt, error) {
	return GetReceiptByIdempotencyKey(ctx, s.db, key)
}

func (s *Store) ListTransactions(ctx context.Context, cursor string, limit int) (*TransactionPage, error) {
	return ListTransactions(ctx, s.db, cursor, limit)
}

func (s *Store) ListReceipts(ctx context.Context, limit int) ([]models.Receipt, error) {
	return ListReceipts(ctx, s.db, limit)
}
