package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/safar/kasir/internal/checkout"
	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/export"
	"github.com/safar/kasir/internal/gateway"
	"github.com/safar/kasir/internal/models"
	"github.com/safar/kasir/internal/store"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	defaultExportLimit      = 200
	maxExportLimit          = 5000

	maxBodyBytes = 1 << 20
)

// decodeBody decodes a JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < 1 {
		return def, nil
	}
	if n > max {
		return max, nil
	}
	return n, nil
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("query"))

	limit := 0
	if search == "" {
		limit = s.productListLimit
	}

	products, err := s.catalog.ListProducts(r.Context(), search, limit)
	if err != nil {
		respondInternal(w, r, "list_products", err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}

type createProductRequest struct {
	Barcode string          `json:"barcode"`
	Name    string          `json:"name"`
	Unit    string          `json:"unit"`
	Price   checkout.Number `json:"price"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := s.catalog.CreateProduct(r.Context(), store.NewProduct{
		Barcode: req.Barcode,
		Name:    req.Name,
		Unit:    req.Unit,
		Price:   req.Price.Value,
	})
	if err != nil {
		var (
			validationErr *models.ValidationError
			constraintErr *database.ConstraintError
		)
		switch {
		case errors.As(err, &validationErr):
			respondError(w, http.StatusBadRequest, validationErr.Message)
		case errors.As(err, &constraintErr):
			respondError(w, http.StatusBadRequest, constraintMessage(constraintErr))
		default:
			respondInternal(w, r, "create_product", err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func constraintMessage(err *database.ConstraintError) string {
	if err.Constraint == "products_barcode_key" {
		return "a product with this barcode already exists"
	}
	return err.Error()
}

type barcodeResponse struct {
	Source  string          `json:"source"`
	Product *models.Product `json:"product"`
}

func (s *Server) handleBarcode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.PathValue("code"))

	external, err := s.barcodes.Lookup(r.Context(), code)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, errorResponse{
			Message: "failed to fetch product data from Open Food Facts",
			Error:   err.Error(),
		})
		return
	}
	if external == nil {
		respondError(w, http.StatusNotFound, "product not found in Open Food Facts")
		return
	}

	product, err := s.catalog.GetOrCreateProductByBarcode(r.Context(), code, external.Name, external.Price)
	if err != nil {
		respondInternal(w, r, "barcode", err)
		return
	}

	respondJSON(w, http.StatusOK, barcodeResponse{Source: gateway.BarcodeSource, Product: product})
}

type rateResponse struct {
	Base string `json:"base"`
	To   string `json:"to"`
	Rate string `json:"rate"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	base := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("base")))
	if base == "" {
		base = "USD"
	}

	rate, err := s.rates.GetRate(r.Context(), base)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, errorResponse{
			Message: "failed to fetch exchange rate",
			Error:   err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, rateResponse{Base: base, To: s.rates.BaseCurrency(), Rate: rate.String()})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	receipt, err := s.checkout.Checkout(r.Context(), req)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			respondError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		respondInternal(w, r, "checkout", err)
		return
	}

	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, receipt)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTransactionLimit, maxTransactionLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.ledger.ListTransactions(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			respondError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		respondInternal(w, r, "list_transactions", err)
		return
	}

	if page.NextCursor != "" {
		w.Header().Set("X-Next-Cursor", page.NextCursor)
	}
	respondJSON(w, http.StatusOK, page.Items)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction ID")
		return
	}

	receipt, err := s.ledger.GetReceipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrTransactionNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondInternal(w, r, "get_transaction", err)
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "text/csv; charset=utf-8", "csv", export.WriteCSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", export.WriteXLSX)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, contentType, ext string, write func(io.Writer, []models.Receipt) error) {
	limit, err := queryInt(r, "limit", defaultExportLimit, maxExportLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipts, err := s.ledger.ListReceipts(r.Context(), limit)
	if err != nil {
		respondInternal(w, r, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, receipts); err != nil {
		respondInternal(w, r, "export", err)
		return
	}

	filename := fmt.Sprintf("transactions-%s.%s", time.Now().Format("20060102-150405"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
