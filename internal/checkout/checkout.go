// Package checkout turns a till's cart into a recorded sale.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/events"
	"github.com/safar/kasir/internal/logging"
	"github.com/safar/kasir/internal/models"
	"github.com/safar/kasir/internal/store"
	"github.com/shopspring/decimal"
)

const (
	RateSourceBase     = "base"
	RateSourceGateway  = "gateway"
	RateSourceFallback = "fallback"
)

type RateProvider interface {
	GetRate(ctx context.Context, from string) (decimal.Decimal, error)
}

type Recorder interface {
	CreateTransaction(ctx context.Context, req store.CreateTransactionRequest) (*models.Receipt, error)
	GetReceiptByIdempotencyKey(ctx context.Context, key string) (*models.Receipt, error)
}

type Observer interface {
	ObserveCheckout(currency, rateSource string)
}

type Request struct {
	Items          []CartItem `json:"items"`
	Currency       string     `json:"currency"`
	Paid           Number     `json:"paid"`
	IdempotencyKey string     `json:"-"`
}

type Service struct {
	recorder     Recorder
	rates        RateProvider
	publisher    events.Publisher
	observer     Observer
	baseCurrency string
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(recorder Recorder, rates RateProvider, baseCurrency string, opts ...Option) *Service {
	s := &Service{
		recorder:     recorder,
		rates:        rates,
		publisher:    events.Nop{},
		baseCurrency: strings.ToUpper(baseCurrency),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout records the cart as one transaction and returns it with its
// items. Prices and totals are taken as base-currency amounts whatever the
// declared currency; the rate is stored for bookkeeping only. A failed rate
// lookup does not fail the sale: 1.0 is stored and RateEstimated is set.
func (s *Service) Checkout(ctx context.Context, req Request) (*models.Receipt, error) {
	start := time.Now()

	items, total, err := Normalize(req.Items)
	if err != nil {
		return nil, err
	}

	paid := req.Paid.Value
	if paid < 0 {
		return nil, models.NewValidationError("paid must not be negative")
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		receipt, err := s.replay(ctx, key)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, database.ErrTransactionNotFound) {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.baseCurrency
	}
	rate, rateSource := s.resolveRate(ctx, currency)

	record := store.CreateTransactionRequest{
		Total:          total,
		Currency:       currency,
		RateToBase:     rate,
		Paid:           paid,
		Change:         paid - total,
		IdempotencyKey: key,
		Items:          make([]store.TransactionItemRequest, len(items)),
	}
	for i, it := range items {
		record.Items[i] = store.TransactionItemRequest{
			Barcode:   it.Barcode,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		}
	}

	receipt, err := s.recorder.CreateTransaction(ctx, record)
	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		return s.replay(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("record checkout: %w", err)
	}
	receipt.Transaction.RateEstimated = rateSource == RateSourceFallback

	if s.observer != nil {
		s.observer.ObserveCheckout(currency, rateSource)
	}

	fields := logging.FromContext(ctx)
	fields.TransactionID = receipt.Transaction.ID
	fields.Step = "checkout"
	fields.Status = "recorded"
	fields.DurationMS = time.Since(start).Milliseconds()
	fields.Message = fmt.Sprintf("total=%d currency=%s rate_source=%s items=%d", total, currency, rateSource, len(items))
	logging.Log(fields)

	if err := s.publisher.PublishSale(ctx, receipt); err != nil {
		fields.Step = "publish"
		fields.Status = "failed"
		fields.Message = ""
		fields.Error = err.Error()
		logging.Log(fields)
	}

	return receipt, nil
}

func (s *Service) replay(ctx context.Context, key string) (*models.Receipt, error) {
	receipt, err := s.recorder.GetReceiptByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	receipt.Replayed = true
	return receipt, nil
}

func (s *Service) resolveRate(ctx context.Context, currency string) (decimal.Decimal, string) {
	if currency == s.baseCurrency {
		return decimal.NewFromInt(1), RateSourceBase
	}

	rate, err := s.rates.GetRate(ctx, currency)
	if err != nil {
		fields := logging.FromContext(ctx)
		fields.Step = "rate"
		fields.Status = "fallback"
		fields.Message = "using rate 1.0 for " + currency
		fields.Error = err.Error()
		logging.Log(fields)
		return decimal.NewFromInt(1), RateSourceFallback
	}
	return rate, RateSourceGateway
}
