package messagebus

import (
	"context"
	"errors"
	"testing"

	"github.com/akriventsev/automat/framework/transport"
)

func TestInMemoryAdapter_PublishSubscribe(t *testing.T) {
	adapter := NewInMemoryAdapter(DefaultInMemoryConfig())
	ctx := context.Background()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var received *transport.Message
	err := adapter.Subscribe(ctx, "saga.order", func(ctx context.Context, msg *transport.Message) error {
		received = msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	headers := map[string]string{"event_name": "OrderCreated"}
	if err := adapter.Publish(ctx, "saga.order", []byte(`{"order_id":"1"}`), headers); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if received == nil {
		t.Fatal("Ordered delivery must invoke the handler synchronously")
	}
	if received.Subject != "saga.order" {
		t.Errorf("Expected subject 'saga.order', got '%s'", received.Subject)
	}
	if received.Headers["event_name"] != "OrderCreated" {
		t.Error("Headers must be delivered with the message")
	}
}

func TestInMemoryAdapter_OrderedDeliveryPropagatesError(t *testing.T) {
	adapter := NewInMemoryAdapter(InMemoryConfig{Ordered: true})
	ctx := context.Background()

	handlerErr := errors.New("processing failed")
	_ = adapter.Subscribe(ctx, "saga.order", func(ctx context.Context, msg *transport.Message) error {
		return handlerErr
	})

	if err := adapter.Publish(ctx, "saga.order", nil, nil); !errors.Is(err, handlerErr) {
		t.Errorf("Expected handler error to propagate, got %v", err)
	}
}

func TestInMemoryAdapter_Unsubscribe(t *testing.T) {
	adapter := NewInMemoryAdapter(DefaultInMemoryConfig())
	ctx := context.Background()

	delivered := 0
	_ = adapter.Subscribe(ctx, "saga.order", func(ctx context.Context, msg *transport.Message) error {
		delivered++
		return nil
	})
	if adapter.SubscriberCount("saga.order") != 1 {
		t.Fatal("Expected one subscriber")
	}

	if err := adapter.Unsubscribe("saga.order"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	_ = adapter.Publish(ctx, "saga.order", nil, nil)
	if delivered != 0 {
		t.Error("Unsubscribed handler must not receive messages")
	}
}

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		subject string
		pattern string
		match   bool
	}{
		{"saga.order", "saga.order", true},
		{"saga.order", "saga.*", true},
		{"saga.order.created", "saga.*", false},
		{"saga.order.created", "saga.>", true},
		{"saga.order", "saga.>", true},
		{"billing.order", "saga.>", false},
		{"saga", "saga.*", false},
	}
	for _, c := range cases {
		if got := matchSubject(c.subject, c.pattern); got != c.match {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", c.subject, c.pattern, got, c.match)
		}
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory()

	bus, err := factory.Create("inmemory", DefaultInMemoryConfig())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if bus == nil {
		t.Fatal("Expected an adapter")
	}

	if _, err := factory.Create("rabbitmq", nil); err == nil {
		t.Error("Unknown bus type must be rejected")
	}

	if err := factory.Register("inmemory", nil); err == nil {
		t.Error("Nil creator must be rejected")
	}

	registered := factory.ListRegistered()
	if len(registered) != 4 {
		t.Errorf("Expected 4 built-in adapters, got %d", len(registered))
	}
}

func TestKafkaConfig_Validate(t *testing.T) {
	if err := (KafkaConfig{}).Validate(); err == nil {
		t.Error("Empty brokers must be invalid")
	}
	if err := (KafkaConfig{Brokers: []string{"localhost"}, GroupID: "g"}).Validate(); err == nil {
		t.Error("Broker without port must be invalid")
	}
	if err := DefaultKafkaConfig().Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}

func TestNATSConfig_Validate(t *testing.T) {
	if err := (NATSConfig{}).Validate(); err == nil {
		t.Error("Empty URL must be invalid")
	}
	if err := (NATSConfig{URL: "http://localhost"}).Validate(); err == nil {
		t.Error("Non-nats URL must be invalid")
	}
	if err := DefaultNATSConfig().Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}

func TestRedisConfig_Validate(t *testing.T) {
	if err := (RedisConfig{}).Validate(); err == nil {
		t.Error("Empty addr must be invalid")
	}
	if err := DefaultRedisConfig().Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}
