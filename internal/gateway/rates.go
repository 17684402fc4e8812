package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const rateService = "exchange rate service"

// RateClient asks an exchangerate.host compatible API how many units of the
// base currency one unit of another currency is worth.
type RateClient struct {
	baseURL      string
	baseCurrency string
	client       *http.Client
}

func NewRateClient(baseURL, baseCurrency string, timeout time.Duration) *RateClient {
	return &RateClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		baseCurrency: strings.ToUpper(baseCurrency),
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *RateClient) BaseCurrency() string {
	return c.baseCurrency
}

type latestRatesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// GetRate returns base-currency units per one unit of from. It never
// substitutes a default: every failure is an *UpstreamError.
func (c *RateClient) GetRate(ctx context.Context, from string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	if from == c.baseCurrency {
		return decimal.NewFromInt(1), nil
	}

	q := url.Values{}
	q.Set("base", from)
	q.Set("symbols", c.baseCurrency)

	var body latestRatesResponse
	if _, err := getJSON(ctx, c.client, rateService, c.baseURL+"/latest?"+q.Encode(), &body); err != nil {
		return decimal.Zero, err
	}

	rate, ok := body.Rates[c.baseCurrency]
	if !ok {
		return decimal.Zero, &UpstreamError{Service: rateService, Err: fmt.Errorf("no %s rate for %s", c.baseCurrency, from)}
	}
	if !rate.IsPositive() {
		return decimal.Zero, &UpstreamError{Service: rateService, Err: errors.New("rate is not positive")}
	}

	return rate, nil
}
