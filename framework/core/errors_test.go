package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError_Error(t *testing.T) {
	err := NewError(ErrNotFound, "instance order-1 not found")
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("Error string must contain the code, got '%s'", err.Error())
	}
	if !strings.Contains(err.Error(), "order-1") {
		t.Errorf("Error string must contain the message, got '%s'", err.Error())
	}

	wrapped := Wrap(errors.New("connection refused"), ErrHandlerFailed, "handler crashed")
	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("Wrapped error must include the cause, got '%s'", wrapped.Error())
	}
}

func TestWrap_NilError(t *testing.T) {
	if Wrap(nil, ErrHandlerFailed, "x") != nil {
		t.Error("Wrapping nil must return nil")
	}
	if WrapWithCode(nil, ErrHandlerFailed) != nil {
		t.Error("WrapWithCode of nil must return nil")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError(ErrVersionConflict, "stale write")
	if !IsCode(err, ErrVersionConflict) {
		t.Error("IsCode must match the error's code")
	}
	if IsCode(err, ErrNotFound) {
		t.Error("IsCode must not match a different code")
	}
	if IsCode(nil, ErrNotFound) {
		t.Error("IsCode of nil must be false")
	}
	if IsCode(errors.New("plain"), ErrNotFound) {
		t.Error("IsCode of a plain error must be false")
	}
}

func TestIsCode_WrappedChain(t *testing.T) {
	inner := NewError(ErrVersionConflict, "stale write")
	outer := fmt.Errorf("failed to save instance: %w", inner)
	if !IsCode(outer, ErrVersionConflict) {
		t.Error("IsCode must find the code through wrapped errors")
	}
}

func TestEngineError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(ErrNotFound, "missing"))
	if !errors.Is(err, &EngineError{Code: ErrNotFound}) {
		t.Error("errors.Is must match EngineError by code")
	}
	if errors.Is(err, &EngineError{Code: ErrAlreadyExists}) {
		t.Error("errors.Is must not match a different code")
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, ErrHandlerFailed, "handler failed")
	if !errors.Is(err, cause) {
		t.Error("Cause must be reachable through Unwrap")
	}
}

func TestEngineError_WithContext(t *testing.T) {
	err := NewError(ErrInvalidConfig, "port is zero").WithContext("rest adapter")
	if !strings.Contains(err.Error(), "rest adapter") {
		t.Errorf("Context must be prepended, got '%s'", err.Error())
	}
	if err.Code != ErrInvalidConfig {
		t.Error("WithContext must preserve the code")
	}
}

func TestNewError_CapturesStack(t *testing.T) {
	err := NewError(ErrNotFound, "x")
	if err.StackTrace == "" {
		t.Error("NewError must capture a stack trace")
	}
}
