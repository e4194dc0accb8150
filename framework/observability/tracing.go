// Copyright 2024 Automat Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability предоставляет distributed tracing и debugging
// utilities для saga-движка.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig конфигурация distributed tracing
type TracingConfig struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Exporter         string // "jaeger", "zipkin", "otlp", "stdout"
	ExporterEndpoint string
	SamplingRate     float64 // 0.0 - 1.0
	Environment      string
}

// DefaultTracingConfig возвращает конфигурацию tracing по умолчанию
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:          false,
		ServiceName:      "automat",
		ServiceVersion:   "1.0.0",
		Exporter:         "stdout",
		ExporterEndpoint: "",
		SamplingRate:     1.0,
		Environment:      "development",
	}
}

// Validate проверяет корректность конфигурации
func (c TracingConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be in [0, 1], got %f", c.SamplingRate)
	}
	switch c.Exporter {
	case "jaeger", "zipkin", "otlp", "stdout":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", c.Exporter)
	}
	return nil
}

// TracingManager управляет жизненным циклом tracing-провайдера
type TracingManager struct {
	config   TracingConfig
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracingManager создает новый TracingManager
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing config: %w", err)
	}
	return &TracingManager{config: config}, nil
}

// Start инициализирует tracer provider и глобальную propagation
func (tm *TracingManager) Start(ctx context.Context) error {
	if !tm.config.Enabled {
		tm.tracer = otel.Tracer(tm.config.ServiceName)
		return nil
	}

	exporter, err := tm.createExporter(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tm.config.ServiceName),
			semconv.ServiceVersionKey.String(tm.config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(tm.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case tm.config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case tm.config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(tm.config.SamplingRate)
	}

	tm.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tm.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tm.tracer = tm.provider.Tracer(tm.config.ServiceName)
	return nil
}

// Stop останавливает tracer provider и сбрасывает буферы экспортера
func (tm *TracingManager) Stop(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tm.provider.Shutdown(shutdownCtx)
}

// Tracer возвращает tracer сервиса
func (tm *TracingManager) Tracer() trace.Tracer {
	if tm.tracer == nil {
		return otel.Tracer(tm.config.ServiceName)
	}
	return tm.tracer
}

// createExporter создает trace exporter по конфигурации
func (tm *TracingManager) createExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch tm.config.Exporter {
	case "jaeger":
		endpoint := tm.config.ExporterEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:14268/api/traces"
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	case "zipkin":
		endpoint := tm.config.ExporterEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		return zipkin.New(endpoint)
	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if tm.config.ExporterEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(tm.config.ExporterEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", tm.config.Exporter)
	}
}

// TraceDispatch оборачивает диспетчеризацию события в сагу в span.
// Span получает атрибуты машины, события и correlation id; ошибка
// обработчика записывается в статус span'а.
func TraceDispatch(ctx context.Context, tracer trace.Tracer, machineName, eventName, correlationID string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("saga.dispatch %s", eventName),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("saga.machine", machineName),
			attribute.String("saga.event", eventName),
			attribute.String("saga.correlation_id", correlationID),
		),
	)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// TraceTransition добавляет событие перехода состояния в текущий span
func TraceTransition(ctx context.Context, fromState, toState string) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("saga.transition", trace.WithAttributes(
		attribute.String("saga.from_state", fromState),
		attribute.String("saga.to_state", toState),
	))
}

// HTTPTracingMiddleware Gin middleware для tracing HTTP запросов
func HTTPTracingMiddleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		spanName := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(c.FullPath()),
				semconv.HTTPURLKey.String(c.Request.URL.String()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", c.Writer.Status()))
		}
	}
}

// ExtractCorrelationID извлекает correlation id из baggage контекста
func ExtractCorrelationID(ctx context.Context) string {
	return baggage.FromContext(ctx).Member("correlation_id").Value()
}

// InjectCorrelationID помещает correlation id в baggage контекста
func InjectCorrelationID(ctx context.Context, correlationID string) context.Context {
	member, err := baggage.NewMember("correlation_id", correlationID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// CorrelationIDMiddleware Gin middleware, поддерживающий сквозной
// correlation id: берет его из заголовка X-Correlation-ID или генерирует
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := InjectCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-ID", correlationID)
		c.Next()
	}
}
