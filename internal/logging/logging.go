// Package logging writes one JSON object per line through the standard
// logger.
package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const DefaultService = "kasir"

type Fields struct {
	Service       string `json:"service"`
	RequestID     string `json:"request_id,omitempty"`
	TransactionID int64  `json:"transaction_id,omitempty"`
	Step          string `json:"step,omitempty"`
	Status        string `json:"status,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

type entry struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func Log(fields Fields) {
	if fields.Service == "" {
		fields.Service = DefaultService
	}

	data, err := json.Marshal(entry{Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// FromContext returns fields pre-filled with the request id carried by ctx.
func FromContext(ctx context.Context) Fields {
	return Fields{Service: DefaultService, RequestID: RequestID(ctx)}
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
