// Package transport предоставляет wire-формат событий саги.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/akriventsev/automat/framework/saga"
)

// Заголовки сообщений, заполняемые кодеком
const (
	HeaderEventName     = "event_name"
	HeaderCorrelationID = "correlation_id"
)

// Envelope wire-представление события саги.
// Имя события едет в конверте и в заголовке сообщения, поэтому
// маршрутизация возможна без десериализации payload.
type Envelope struct {
	EventName     string            `json:"event_name"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// PayloadFactory создает пустое значение payload для десериализации
type PayloadFactory func() interface{}

// Codec кодирует события саги в сообщения и обратно.
// Типы payload регистрируются явно по имени события; для события без
// зарегистрированной фабрики payload остается сырым JSON.
type Codec struct {
	factories map[string]PayloadFactory
}

// NewCodec создает новый кодек
func NewCodec() *Codec {
	return &Codec{
		factories: make(map[string]PayloadFactory),
	}
}

// RegisterPayload регистрирует фабрику payload для имени события
func (c *Codec) RegisterPayload(eventName string, factory PayloadFactory) *Codec {
	c.factories[eventName] = factory
	return c
}

// Encode кодирует событие в сообщение с указанным subject
func (c *Codec) Encode(subject string, event saga.Event) (*Message, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of event %s: %w", event.Name(), err)
	}

	envelope := Envelope{
		EventName: event.Name(),
		Payload:   payload,
		Timestamp: event.Timestamp(),
	}
	if correlatable, ok := event.Payload().(saga.Correlatable); ok {
		envelope.CorrelationID = correlatable.CorrelationID()
	}
	if base, ok := event.(*saga.BaseEvent); ok && len(base.Metadata()) > 0 {
		envelope.Metadata = base.Metadata()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope of event %s: %w", event.Name(), err)
	}

	headers := map[string]string{
		HeaderEventName: event.Name(),
	}
	if envelope.CorrelationID != "" {
		headers[HeaderCorrelationID] = envelope.CorrelationID
	}

	return &Message{
		Subject: subject,
		Data:    data,
		Headers: headers,
	}, nil
}

// Decode декодирует сообщение в событие саги.
// Correlation ID конверта переносится в метаданные события, откуда его
// читает экстрактор MetadataCorrelation.
func (c *Codec) Decode(msg *Message) (saga.Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.EventName == "" {
		return nil, fmt.Errorf("envelope has no event name")
	}

	var payload interface{}
	if factory, ok := c.factories[envelope.EventName]; ok {
		typed := factory()
		if len(envelope.Payload) > 0 {
			if err := json.Unmarshal(envelope.Payload, typed); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload of event %s: %w", envelope.EventName, err)
			}
		}
		payload = typed
	} else if len(envelope.Payload) > 0 {
		payload = envelope.Payload
	}

	event := saga.NewEvent(envelope.EventName, payload)
	if !envelope.Timestamp.IsZero() {
		event.WithTimestamp(envelope.Timestamp)
	}
	for key, value := range envelope.Metadata {
		event.WithMetadata(key, value)
	}
	if envelope.CorrelationID != "" {
		event.WithMetadata(HeaderCorrelationID, envelope.CorrelationID)
	}

	return event, nil
}

// MetadataCorrelation экстрактор correlation ID из метаданных события,
// заполненных кодеком при декодировании конверта.
func MetadataCorrelation(event saga.Event) (string, error) {
	base, ok := event.(*saga.BaseEvent)
	if !ok {
		return "", fmt.Errorf("event %s carries no metadata", event.Name())
	}
	id, ok := base.Metadata().Get(HeaderCorrelationID)
	if !ok || id == "" {
		return "", fmt.Errorf("event %s has no %s metadata", event.Name(), HeaderCorrelationID)
	}
	return id, nil
}
