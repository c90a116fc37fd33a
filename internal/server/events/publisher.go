// Package events publishes payment.recorded messages to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
)

// PaymentRecordedEvent is the message value. Amount is a decimal string in
// major units.
type PaymentRecordedEvent struct {
	TransactionID string `json:"transactionId"`
	ApplicationID string `json:"applicationId"`
	ScholarshipID string `json:"scholarshipId,omitempty"`
	PayerEmail    string `json:"payerEmail"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	TrackingID    string `json:"trackingId"`
	PaidAt        string `json:"paidAt"`
}

type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// NewProducerConfig waits for all in-sync replicas and reports successes,
// which SyncProducer requires.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	return config
}

func Dial(brokers []string) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func NewPaymentRecordedEvent(p *models.Payment) PaymentRecordedEvent {
	return PaymentRecordedEvent{
		TransactionID: p.TransactionID,
		ApplicationID: p.ApplicationID,
		ScholarshipID: p.ScholarshipID,
		PayerEmail:    p.PayerEmail,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		TrackingID:    p.TrackingID,
		PaidAt:        p.PaidAt.UTC().Format(time.RFC3339Nano),
	}
}

// PaymentRecorded sends one message keyed by transaction id, so every
// message for a transaction lands on the same partition.
func (p *Publisher) PaymentRecorded(ctx context.Context, pay *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewPaymentRecordedEvent(pay))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(pay.TransactionID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
