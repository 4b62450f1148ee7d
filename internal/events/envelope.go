// Package events defines the envelope and payloads published to kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderUpdated       = "OrderUpdated"
	EventOrderDeleted       = "OrderDeleted"
	EventStockChanged       = "StockChanged"
	EventAppointmentCreated = "AppointmentCreated"
)

const (
	TopicOrders       = "storefront.orders"
	TopicStock        = "storefront.inventory.stock"
	TopicAppointments = "storefront.appointments"
)

// PartitionKey keeps every event of one aggregate on the same partition.
func PartitionKey(id string) []byte { return []byte(id) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a version 1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID        string      `json:"order_id"`
	Ref            string      `json:"ref"`
	CustomerName   string      `json:"customer_name"`
	CustomerPhone  string      `json:"customer_phone"`
	Items          []OrderItem `json:"items"`
	Subtotal       string      `json:"subtotal"`
	Total          string      `json:"total"`
	ContactMessage string      `json:"contact_message"`
}

type OrderStatusPayload struct {
	OrderID string `json:"order_id"`
	Ref     string `json:"ref"`
	From    string `json:"from"`
	To      string `json:"to"`
	Total   string `json:"total"`
}

type StockChangedPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	OrderRef  string `json:"order_ref,omitempty"`
	Reason    string `json:"reason"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
	Delta     int    `json:"delta"`
	InStock   bool   `json:"in_stock"`
}

type AppointmentCreatedPayload struct {
	AppointmentID string `json:"appointment_id"`
	Ref           string `json:"ref"`
	Service       string `json:"service"`
	Date          string `json:"date"`
	Slot          string `json:"slot"`
	ContactPref   string `json:"contact_pref"`
}
