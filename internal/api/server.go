// Package api exposes the till's HTTP interface under /api.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/kasir/internal/checkout"
	"github.com/safar/kasir/internal/gateway"
	"github.com/safar/kasir/internal/logging"
	"github.com/safar/kasir/internal/metrics"
	"github.com/safar/kasir/internal/models"
	"github.com/safar/kasir/internal/store"
	"github.com/shopspring/decimal"
)

type Catalog interface {
	CreateProduct(ctx context.Context, p store.NewProduct) (*models.Product, error)
	ListProducts(ctx context.Context, search string, limit int) ([]models.Product, error)
	GetOrCreateProductByBarcode(ctx context.Context, code, defaultName string, defaultPrice int64) (*models.Product, error)
}

type Ledger interface {
	GetReceipt(ctx context.Context, id int64) (*models.Receipt, error)
	ListTransactions(ctx context.Context, cursor string, limit int) (*store.TransactionPage, error)
	ListReceipts(ctx context.Context, limit int) ([]models.Receipt, error)
}

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*models.Receipt, error)
}

type RateProvider interface {
	GetRate(ctx context.Context, from string) (decimal.Decimal, error)
	BaseCurrency() string
}

type BarcodeLookup interface {
	Lookup(ctx context.Context, code string) (*gateway.ExternalProduct, error)
}

type Deps struct {
	Catalog          Catalog
	Ledger           Ledger
	Checkout         Checkouter
	Rates            RateProvider
	Barcodes         BarcodeLookup
	Metrics          *metrics.ServerMetrics
	Gatherer         prometheus.Gatherer
	ProductListLimit int
}

type Server struct {
	catalog          Catalog
	ledger           Ledger
	checkout         Checkouter
	rates            RateProvider
	barcodes         BarcodeLookup
	metrics          *metrics.ServerMetrics
	gatherer         prometheus.Gatherer
	productListLimit int
}

func NewServer(deps Deps) *Server {
	limit := deps.ProductListLimit
	if limit < 1 {
		limit = 100
	}
	return &Server{
		catalog:          deps.Catalog,
		ledger:           deps.Ledger,
		checkout:         deps.Checkout,
		rates:            deps.Rates,
		barcodes:         deps.Barcodes,
		metrics:          deps.Metrics,
		gatherer:         deps.Gatherer,
		productListLimit: limit,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /api/products", "list_products", s.handleListProducts)
	s.handle(mux, "POST /api/products", "create_product", s.handleCreateProduct)
	s.handle(mux, "GET /api/barcode/{code}", "barcode", s.handleBarcode)
	s.handle(mux, "GET /api/rate", "rate", s.handleRate)
	s.handle(mux, "POST /api/checkout", "checkout", s.handleCheckout)
	s.handle(mux, "GET /api/transactions", "list_transactions", s.handleListTransactions)
	s.handle(mux, "GET /api/transactions/{id}", "get_transaction", s.handleGetTransaction)
	s.handle(mux, "GET /api/export.csv", "export_csv", s.handleExportCSV)
	s.handle(mux, "GET /api/export.xlsx", "export_xlsx", s.handleExportXLSX)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	return requestID(recoverer(cors(mux)))
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Instrument(name, handler)
	}
	mux.Handle(pattern, handler)
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Log(logging.Fields{Step: "respond", Status: "encode_failed", Error: err.Error()})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Message: message})
}

// respondInternal logs err and answers with a generic message, so no
// connection or query details reach the client.
func respondInternal(w http.ResponseWriter, r *http.Request, step string, err error) {
	fields := logging.FromContext(r.Context())
	fields.Step = step
	fields.Status = "error"
	fields.Error = err.Error()
	logging.Log(fields)

	respondError(w, http.StatusInternalServerError, "internal server error")
}
