package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config конфигурация экспорта метрик
type Config struct {
	ExporterType  string // prometheus
	ServiceName   string
	ResourceAttrs map[string]string
}

// DefaultConfig возвращает конфигурацию метрик по умолчанию
func DefaultConfig() *Config {
	return &Config{
		ExporterType: "prometheus",
		ServiceName:  "automat",
	}
}

// Setup настраивает экспорт метрик и устанавливает глобальный MeterProvider
func Setup(config *Config) (*metric.MeterProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var reader metric.Reader
	var err error

	switch config.ExporterType {
	case "prometheus", "":
		reader, err = setupPrometheusExporter()
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(buildResourceAttributes(config)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(provider)

	return provider, nil
}

// setupPrometheusExporter настраивает Prometheus exporter
func setupPrometheusExporter() (metric.Reader, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// buildResourceAttributes собирает resource attributes из конфигурации
func buildResourceAttributes(config *Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.ServiceName),
	}
	for k, v := range config.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
