// Package gateway holds the clients for the external services the till
// depends on: an exchange-rate API and the Open Food Facts product database.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// UpstreamError reports a failed call to an external service: a transport
// error, a timeout, a non-success status or an unusable body.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const maxBodyBytes = 1 << 20

// getJSON fetches url and decodes a 2xx JSON body into out. It returns the
// response status so callers can give meaning to specific codes.
func getJSON(ctx context.Context, client *http.Client, service, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &UpstreamError{Service: service, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "kasir/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return 0, &UpstreamError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return resp.StatusCode, &UpstreamError{Service: service, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", http.StatusText(resp.StatusCode))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return resp.StatusCode, &UpstreamError{Service: service, Err: fmt.Errorf("decode body: %w", err)}
	}

	return resp.StatusCode, nil
}
