package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/models"
)

const productColumns = `id, barcode, name, unit, price, created_at`

type NewProduct struct {
	Barcode string
	Name    string
	Unit    string
	Price   int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var barcode sql.NullString

	err := row.Scan(
		&product.ID,
		&barcode,
		&product.Name,
		&product.Unit,
		&product.Price,
		&product.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if barcode.Valid {
		product.Barcode = &barcode.String
	}

	return product, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func CreateProduct(ctx context.Context, q database.Querier, p NewProduct) (*models.Product, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, models.NewValidationError("name is required")
	}
	if p.Price < 0 {
		return nil, models.NewValidationError("price must not be negative")
	}
	unit := strings.TrimSpace(p.Unit)
	if unit == "" {
		unit = models.DefaultUnit
	}

	query := `
		INSERT INTO products (barcode, name, unit, price, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query, nullIfEmpty(p.Barcode), name, unit, p.Price))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", database.AsConstraintError(err))
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func GetProductByBarcode(ctx context.Context, q database.Querier, code string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product by barcode: %w", err)
	}

	return product, nil
}

// GetOrCreateProductByBarcode returns the product with the given barcode,
// inserting a placeholder with the given defaults when there is none. Two
// concurrent calls for the same new barcode both end up with the same row.
func GetOrCreateProductByBarcode(ctx context.Context, q database.Querier, code, defaultName string, defaultPrice int64) (*models.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, models.NewValidationError("barcode is required")
	}
	if strings.TrimSpace(defaultName) == "" {
		defaultName = code
	}

	query := `
		INSERT INTO products (barcode, name, unit, price, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (barcode) DO NOTHING
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query, code, defaultName, models.DefaultUnit, defaultPrice))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("create placeholder product: %w", err)
	}

	return GetProductByBarcode(ctx, q, code)
}

// ListProducts returns products newest first. A non-empty search matches a
// case-insensitive substring of the name or the barcode. limit <= 0 means no
// limit.
func ListProducts(ctx context.Context, q database.Querier, search string, limit int) ([]models.Product, error) {
	var (
		conditions []string
		args       []any
	)

	search = strings.TrimSpace(search)
	if search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conditions = append(conditions, `(name ILIKE $1 OR barcode ILIKE $1)`)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
