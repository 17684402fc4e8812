// Package events publishes recorded sales to Kafka for downstream consumers
// such as bookkeeping or stock replenishment.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/kasir/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const SaleRecordedType = "sale.recorded"

type SaleRecorded struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	TransactionID int64           `json:"transaction_id"`
	Total         int64           `json:"total"`
	Currency      string          `json:"currency"`
	RateToBase    decimal.Decimal `json:"rate_to_base"`
	RateEstimated bool            `json:"rate_estimated"`
	Paid          int64           `json:"paid"`
	Change        int64           `json:"change"`
	ItemCount     int             `json:"item_count"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

func NewSaleRecorded(receipt *models.Receipt) SaleRecorded {
	t := receipt.Transaction
	quantity := 0
	for _, it := range receipt.Items {
		quantity += it.Quantity
	}
	return SaleRecorded{
		EventID:       uuid.NewString(),
		Type:          SaleRecordedType,
		TransactionID: t.ID,
		Total:         t.Total,
		Currency:      t.Currency,
		RateToBase:    t.RateToBase,
		RateEstimated: t.RateEstimated,
		Paid:          t.Paid,
		Change:        t.Change,
		ItemCount:     quantity,
		RecordedAt:    t.CreatedAt,
	}
}

type Publisher interface {
	PublishSale(ctx context.Context, receipt *models.Receipt) error
	Close() error
}

// Nop is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishSale(context.Context, *models.Receipt) error { return nil }
func (Nop) Close() error                                        { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewPublisher returns a Kafka publisher for brokersCSV, or Nop when the list
// is empty.
func NewPublisher(brokersCSV, topic string) Publisher {
	brokers := ParseBrokers(brokersCSV)
	if len(brokers) == 0 {
		return Nop{}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func ParseBrokers(brokersCSV string) []string {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// PublishSale keys the message by transaction id so every event for one sale
// lands on the same partition.
func (p *KafkaPublisher) PublishSale(ctx context.Context, receipt *models.Receipt) error {
	event := NewSaleRecorded(receipt)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TransactionID, 10)),
		Value: data,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish sale event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
