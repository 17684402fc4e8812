package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	barcodeService = "open food facts"

	// BarcodeSource names the database products are looked up in.
	BarcodeSource = "openfoodfacts"

	// PlaceholderName is used when the database knows a barcode but has no
	// name for it.
	PlaceholderName = "Produk"
)

// ExternalProduct is what the product database knows about a barcode. It
// carries no price.
type ExternalProduct struct {
	Barcode string
	Name    string
	Price   int64
}

type BarcodeClient struct {
	baseURL string
	client  *http.Client
}

func NewBarcodeClient(baseURL string, timeout time.Duration) *BarcodeClient {
	return &BarcodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type offProductResponse struct {
	Product *struct {
		ProductName string `json:"product_name"`
		GenericName string `json:"generic_name"`
	} `json:"product"`
}

// Lookup returns (nil, nil) when the database does not know the barcode.
func (c *BarcodeClient) Lookup(ctx context.Context, code string) (*ExternalProduct, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	var body offProductResponse
	endpoint := c.baseURL + "/api/v2/product/" + url.PathEscape(code) + ".json"
	status, err := getJSON(ctx, c.client, barcodeService, endpoint, &body)
	if err != nil {
		var upstreamErr *UpstreamError
		if status == http.StatusNotFound && errors.As(err, &upstreamErr) {
			return nil, nil
		}
		return nil, err
	}

	if body.Product == nil {
		return nil, nil
	}

	name := strings.TrimSpace(body.Product.ProductName)
	if name == "" {
		name = strings.TrimSpace(body.Product.GenericName)
	}
	if name == "" {
		name = PlaceholderName
	}

	return &ExternalProduct{Barcode: code, Name: name, Price: 0}, nil
}
