package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/database/dbtest"
	"github.com/safar/kasir/internal/store"
	"github.com/shopspring/decimal"
)

func newSale(items ...store.TransactionItemRequest) store.CreateTransactionRequest {
	var total int64
	for _, it := range items {
		total += it.Subtotal
	}
	return store.CreateTransactionRequest{
		Total:      total,
		Currency:   "IDR",
		RateToBase: decimal.NewFromInt(1),
		Paid:       total,
		Change:     0,
		Items:      items,
	}
}

func item(barcode, name string, unitPrice int64, quantity int) store.TransactionItemRequest {
	return store.TransactionItemRequest{
		Barcode:   barcode,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		Subtotal:  unitPrice * int64(quantity),
	}
}

func TestCreateTransactionLinksKnownBarcodes(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	kopi, err := store.CreateProduct(ctx, db, store.NewProduct{Barcode: "8991002", Name: "Kopi", Price: 15000})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	receipt, err := store.CreateTransaction(ctx, db, newSale(
		item("8991002", "Kopi", 15000, 2),
		item("0000000", "Unknown", 500, 1),
		item("", "Gula", 8000, 1),
	))
	if err != nil {
		t.Fatalf("Create transaction: %v", err)
	}

	if receipt.Transaction.ID == 0 {
		t.Fatal("Transaction ID should not be 0")
	}
	if receipt.Transaction.Total != 38500 {
		t.Errorf("Expected total 38500, got %d", receipt.Transaction.Total)
	}
	if len(receipt.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(receipt.Items))
	}

	if receipt.Items[0].ProductID == nil || *receipt.Items[0].ProductID != kopi.ID {
		t.Errorf("Expected item 0 linked to product %d, got %v", kopi.ID, receipt.Items[0].ProductID)
	}
	if receipt.Items[1].ProductID != nil {
		t.Errorf("Expected unknown barcode to stay unlinked, got %d", *receipt.Items[1].ProductID)
	}
	if receipt.Items[2].Barcode != nil || receipt.Items[2].ProductID != nil {
		t.Errorf("Expected item without barcode to have NULL barcode and product")
	}

	if n := dbtest.CountRows(t, db, "products"); n != 1 {
		t.Errorf("Checkout must not create products, found %d", n)
	}

	stored, err := store.GetReceipt(ctx, db, receipt.Transaction.ID)
	if err != nil {
		t.Fatalf("Get receipt: %v", err)
	}
	if len(stored.Items) != 3 {
		t.Errorf("Expected 3 stored items, got %d", len(stored.Items))
	}
	if !stored.Transaction.RateToBase.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected rate 1, got %s", stored.Transaction.RateToBase)
	}
}

func TestCreateTransactionIsAtomic(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	broken := item("", "Broken", 1000, 1)
	broken.Quantity = 0
	broken.Subtotal = 0

	_, err := store.CreateTransaction(ctx, db, newSale(
		item("", "Kopi", 15000, 2),
		broken,
	))

	var constraintErr *database.ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("Expected constraint error from the failing item, got: %v", err)
	}

	if n := dbtest.CountRows(t, db, "transactions"); n != 0 {
		t.Errorf("Expected no transaction rows after failed checkout, got %d", n)
	}
	if n := dbtest.CountRows(t, db, "transaction_items"); n != 0 {
		t.Errorf("Expected no item rows after failed checkout, got %d", n)
	}
}

func TestCreateTransactionRejectsInconsistentChange(t *testing.T) {
	db := dbtest.New(t)

	req := newSale(item("", "Kopi", 15000, 1))
	req.Change = 1

	_, err := store.CreateTransaction(context.Background(), db, req)

	var constraintErr *database.ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("Expected constraint error, got: %v", err)
	}
}

func TestCreateTransactionDuplicateIdempotencyKey(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	req := newSale(item("", "Kopi", 15000, 1))
	req.IdempotencyKey = "till-1-0001"

	first, err := store.CreateTransaction(ctx, db, req)
	if err != nil {
		t.Fatalf("Create transaction: %v", err)
	}

	_, err = store.CreateTransaction(ctx, db, req)
	if !errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		t.Fatalf("Expected duplicate key error, got: %v", err)
	}

	replayed, err := store.GetReceiptByIdempotencyKey(ctx, db, "till-1-0001")
	if err != nil {
		t.Fatalf("Get by key: %v", err)
	}
	if replayed.Transaction.ID != first.Transaction.ID {
		t.Errorf("Expected transaction %d, got %d", first.Transaction.ID, replayed.Transaction.ID)
	}
	if n := dbtest.CountRows(t, db, "transaction_items"); n != 1 {
		t.Errorf("Expected 1 item row, got %d", n)
	}
}

func TestGetReceiptNotFound(t *testing.T) {
	db := dbtest.New(t)

	_, err := store.GetReceipt(context.Background(), db, 12345)
	if !errors.Is(err, database.ErrTransactionNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
}

func TestListTransactionsCursor(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := store.CreateTransaction(ctx, db, newSale(item("", "Kopi", int64(1000+i), 1))); err != nil {
			t.Fatalf("Create transaction %d: %v", i, err)
		}
	}

	page1, err := store.ListTransactions(ctx, db, "", 10)
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if !page1.HasMore || page1.NextCursor == "" {
		t.Error("Page 1 should have more results and a cursor")
	}
	if len(page1.Items) != 10 {
		t.Fatalf("Expected 10 items on page 1, got %d", len(page1.Items))
	}
	if page1.Items[0].Total != 1014 {
		t.Errorf("Expected newest transaction first, got total %d", page1.Items[0].Total)
	}

	page2, err := store.ListTransactions(ctx, db, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
	if len(page2.Items) != 5 {
		t.Errorf("Expected 5 items on page 2, got %d", len(page2.Items))
	}
}

func TestListReceiptsGroupsItems(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	if _, err := store.CreateTransaction(ctx, db, newSale(item("", "Kopi", 15000, 2), item("", "Gula", 8000, 1))); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if _, err := store.CreateTransaction(ctx, db, newSale(item("", "Teh", 5000, 1))); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	receipts, err := store.ListReceipts(ctx, db, 10)
	if err != nil {
		t.Fatalf("List receipts: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("Expected 2 receipts, got %d", len(receipts))
	}
	if len(receipts[0].Items) != 1 || receipts[0].Items[0].Name != "Teh" {
		t.Errorf("Expected newest receipt with Teh, got %+v", receipts[0].Items)
	}
	if len(receipts[1].Items) != 2 {
		t.Errorf("Expected 2 items on older receipt, got %d", len(receipts[1].Items))
	}
}
