package container

import (
	"fmt"
	"testing"
)

func TestContainer_SetGet(t *testing.T) {
	cnt := NewContainer()

	if err := Set(cnt, "region", "eu-west-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := Set(cnt, "region", "us-east-1"); err == nil {
		t.Error("Duplicate registration must fail")
	}

	value, err := Get[string](cnt, "region")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "eu-west-1" {
		t.Errorf("Expected 'eu-west-1', got '%s'", value)
	}

	if _, err := Get[int](cnt, "region"); err == nil {
		t.Error("Wrong type must be rejected")
	}
	if _, err := Get[string](cnt, "ghost"); err == nil {
		t.Error("Unknown key must return an error")
	}
}

func TestContainer_Factory(t *testing.T) {
	cnt := NewContainer()

	calls := 0
	err := cnt.SetFactory("request-id", func(c *Container) (interface{}, error) {
		calls++
		return fmt.Sprintf("req-%d", calls), nil
	})
	if err != nil {
		t.Fatalf("SetFactory failed: %v", err)
	}

	first, _ := Get[string](cnt, "request-id")
	second, _ := Get[string](cnt, "request-id")
	if first == second {
		t.Error("Transient factory must produce a new value per Get")
	}

	if err := cnt.SetFactory("request-id", nil); err == nil {
		t.Error("Duplicate factory must fail")
	}
}

func TestContainer_ScopeInheritsParent(t *testing.T) {
	parent := NewContainer()
	_ = Set(parent, "bus", "nats")

	scope := parent.BeginScope()
	value, err := Get[string](scope, "bus")
	if err != nil {
		t.Fatalf("Scope must see parent dependencies: %v", err)
	}
	if value != "nats" {
		t.Errorf("Expected 'nats', got '%s'", value)
	}

	// Scope-зависимости не видны родителю
	_ = Set(scope, "event", "OrderCreated")
	if parent.Has("event") {
		t.Error("Parent must not see scope dependencies")
	}
	if !scope.Has("event") || !scope.Has("bus") {
		t.Error("Scope must see both own and inherited dependencies")
	}
}

func TestContainer_ScopeOverridesParent(t *testing.T) {
	parent := NewContainer()
	_ = Set(parent, "correlation_id", "parent")

	scope := parent.BeginScope()
	_ = Set(scope, "correlation_id", "order-1")

	value, _ := Get[string](scope, "correlation_id")
	if value != "order-1" {
		t.Errorf("Scope registration must shadow the parent, got '%s'", value)
	}

	parentValue, _ := Get[string](parent, "correlation_id")
	if parentValue != "parent" {
		t.Errorf("Parent value must be untouched, got '%s'", parentValue)
	}
}
