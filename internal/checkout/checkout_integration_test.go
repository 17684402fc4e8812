package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/safar/kasir/internal/checkout"
	"github.com/safar/kasir/internal/database/dbtest"
	"github.com/safar/kasir/internal/gateway"
	"github.com/safar/kasir/internal/models"
	"github.com/safar/kasir/internal/store"
	"github.com/shopspring/decimal"
)

func newService(t *testing.T, rateHandler http.HandlerFunc) (*checkout.Service, *store.Store, func(string) int) {
	t.Helper()

	db := dbtest.New(t)
	rates := httptest.NewServer(rateHandler)
	t.Cleanup(rates.Close)

	st := store.New(db)
	svc := checkout.NewService(st, gateway.NewRateClient(rates.URL, "IDR", 500*time.Millisecond), "IDR")
	count := func(table string) int { return dbtest.CountRows(t, db, table) }
	return svc, st, count
}

func failingRates(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusServiceUnavailable)
}

func cart() []checkout.CartItem {
	return []checkout.CartItem{
		{Name: "Kopi", UnitPrice: checkout.NewNumber(15000), Quantity: checkout.NewNumber(2)},
		{Name: "Gula", UnitPrice: checkout.NewNumber(8000), Quantity: checkout.NewNumber(1)},
	}
}

func TestCheckoutScenario(t *testing.T) {
	svc, st, _ := newService(t, failingRates)
	ctx := context.Background()

	receipt, err := svc.Checkout(ctx, checkout.Request{Items: cart(), Currency: "IDR", Paid: checkout.NewNumber(50000)})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	stored, err := st.GetReceipt(ctx, receipt.Transaction.ID)
	if err != nil {
		t.Fatalf("Get receipt: %v", err)
	}

	if stored.Transaction.Total != 38000 {
		t.Errorf("Expected total 38000, got %d", stored.Transaction.Total)
	}
	if stored.Transaction.Change != 12000 {
		t.Errorf("Expected change 12000, got %d", stored.Transaction.Change)
	}
	if !stored.Transaction.RateToBase.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected rate 1, got %s", stored.Transaction.RateToBase)
	}

	var sum int64
	for _, it := range stored.Items {
		if it.Subtotal != it.UnitPrice*int64(it.Quantity) {
			t.Errorf("Item %s: subtotal %d != %d x %d", it.Name, it.Subtotal, it.UnitPrice, it.Quantity)
		}
		sum += it.Subtotal
	}
	if sum != stored.Transaction.Total {
		t.Errorf("Total %d does not match item sum %d", stored.Transaction.Total, sum)
	}
}

func TestCheckoutEmptyCartWritesNothing(t *testing.T) {
	svc, _, count := newService(t, failingRates)

	_, err := svc.Checkout(context.Background(), checkout.Request{Items: []checkout.CartItem{}})

	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected validation error, got: %v", err)
	}
	if n := count("transactions"); n != 0 {
		t.Errorf("Expected no transactions, got %d", n)
	}
}

func TestCheckoutUnderpayment(t *testing.T) {
	svc, _, _ := newService(t, failingRates)

	receipt, err := svc.Checkout(context.Background(), checkout.Request{Items: cart(), Paid: checkout.NewNumber(10000)})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if receipt.Transaction.Change != -28000 {
		t.Errorf("Expected change -28000, got %d", receipt.Transaction.Change)
	}
}

func TestCheckoutRateFallbackIsStored(t *testing.T) {
	svc, st, _ := newService(t, failingRates)
	ctx := context.Background()

	receipt, err := svc.Checkout(ctx, checkout.Request{Items: cart(), Currency: "usd", Paid: checkout.NewNumber(38000)})
	if err != nil {
		t.Fatalf("Checkout should survive a rate failure: %v", err)
	}
	if !receipt.Transaction.RateEstimated {
		t.Error("Expected rate_estimated on the response")
	}

	stored, err := st.GetReceipt(ctx, receipt.Transaction.ID)
	if err != nil {
		t.Fatalf("Get receipt: %v", err)
	}
	if stored.Transaction.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", stored.Transaction.Currency)
	}
	if !stored.Transaction.RateToBase.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected fallback rate 1, got %s", stored.Transaction.RateToBase)
	}
}

func TestCheckoutStoresFetchedRate(t *testing.T) {
	svc, st, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"IDR":16250.125}}`))
	})
	ctx := context.Background()

	receipt, err := svc.Checkout(ctx, checkout.Request{Items: cart(), Currency: "USD", Paid: checkout.NewNumber(38000)})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	stored, err := st.GetReceipt(ctx, receipt.Transaction.ID)
	if err != nil {
		t.Fatalf("Get receipt: %v", err)
	}
	if !stored.Transaction.RateToBase.Equal(decimal.RequireFromString("16250.125")) {
		t.Errorf("Expected rate 16250.125, got %s", stored.Transaction.RateToBase)
	}
	if stored.Transaction.Total != 38000 {
		t.Errorf("Prices must not be converted, got total %d", stored.Transaction.Total)
	}
}

func TestCheckoutLinksProductsWithoutCreating(t *testing.T) {
	svc, st, count := newService(t, failingRates)
	ctx := context.Background()

	kopi, err := st.CreateProduct(ctx, store.NewProduct{Barcode: "8991002", Name: "Kopi", Price: 15000})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	receipt, err := svc.Checkout(ctx, checkout.Request{Items: []checkout.CartItem{
		{Barcode: "8991002", Name: "Kopi", UnitPrice: checkout.NewNumber(15000), Quantity: checkout.NewNumber(1)},
		{Barcode: "0000001", Name: "Loose item", UnitPrice: checkout.NewNumber(2000), Quantity: checkout.NewNumber(1)},
	}})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if receipt.Items[0].ProductID == nil || *receipt.Items[0].ProductID != kopi.ID {
		t.Errorf("Expected item linked to product %d", kopi.ID)
	}
	if receipt.Items[1].ProductID != nil {
		t.Errorf("Expected unknown barcode to stay unlinked")
	}
	if n := count("products"); n != 1 {
		t.Errorf("Checkout must not create products, found %d", n)
	}
}

func TestConcurrentCheckoutsWithSameKey(t *testing.T) {
	svc, _, count := newService(t, failingRates)
	ctx := context.Background()

	concurrency := 6
	var wg sync.WaitGroup
	ids := make(chan int64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := svc.Checkout(ctx, checkout.Request{Items: cart(), Paid: checkout.NewNumber(40000), IdempotencyKey: "till-2-7"})
			if err != nil {
				t.Errorf("Checkout: %v", err)
				return
			}
			ids <- receipt.Transaction.ID
		}()
	}

	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Errorf("Expected one transaction %d, got %d", first, id)
		}
	}
	if n := count("transactions"); n != 1 {
		t.Errorf("Expected 1 transaction, got %d", n)
	}
	if n := count("transaction_items"); n != 2 {
		t.Errorf("Expected 2 items, got %d", n)
	}
}
