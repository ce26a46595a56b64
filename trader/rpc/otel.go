package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
)

// TelemetryConfig selects the OpenTelemetry signals and where they are exported
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	EnableTracing bool
	UseOTLPTraces bool
	OTLPTracesURL string

	EnableMetrics  bool
	UsePrometheus  bool // quote and verdict counters end up on /server/metrics
	UseOTLPMetrics bool
	OTLPMetricsURL string

	EnableLogs  bool
	UseOTLPLogs bool
	OTLPLogsURL string

	// InsecureOTLP sends telemetry without TLS, local setups only
	InsecureOTLP   bool
	OTLPCACertFile string

	// DevelopmentMode prints every signal to stdout instead of exporting it
	DevelopmentMode bool
}

// DefaultTelemetryConfig exposes metrics to prometheus and keeps the rest off
func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		ServiceName:    "spectra-trade",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		EnableMetrics:  true,
		UsePrometheus:  true,
		OTLPTracesURL:  "localhost:4318",
		OTLPMetricsURL: "localhost:4318",
		OTLPLogsURL:    "localhost:4318",
	}
}

// TelemetryFromConfig maps the service config file onto a TelemetryConfig
func TelemetryFromConfig(cfg *config.RPCTraderConfig) *TelemetryConfig {
	return &TelemetryConfig{
		ServiceName:     cfg.ServiceName,
		ServiceVersion:  cfg.ServiceVersion,
		Environment:     cfg.Environment,
		EnableTracing:   cfg.EnableTracing,
		UseOTLPTraces:   cfg.UseOTLPTraces,
		OTLPTracesURL:   cfg.OTLPTracesURL,
		EnableMetrics:   cfg.EnableMetrics,
		UsePrometheus:   cfg.UsePrometheus,
		UseOTLPMetrics:  cfg.UseOTLPMetrics,
		OTLPMetricsURL:  cfg.OTLPMetricsURL,
		EnableLogs:      cfg.EnableLogs,
		UseOTLPLogs:     cfg.UseOTLPLogs,
		OTLPLogsURL:     cfg.OTLPLogsURL,
		InsecureOTLP:    cfg.InsecureOTLP,
		DevelopmentMode: cfg.DevelopmentMode,
	}
}

func (c *TelemetryConfig) enabled() bool {
	return c != nil && (c.EnableTracing || c.EnableMetrics || c.EnableLogs)
}

// SetupTelemetry installs the global tracer, meter and logger providers.
// The returned func flushes and stops them, it is safe to call on error.
func SetupTelemetry(ctx context.Context, cfg *TelemetryConfig) (func(context.Context) error, error) {
	if cfg == nil {
		cfg = DefaultTelemetryConfig()
	}

	var stops []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for i := len(stops) - 1; i >= 0; i-- {
			err = errors.Join(err, stops[i](ctx))
		}
		stops = nil
		return err
	}
	fail := func(err error) (func(context.Context) error, error) {
		return shutdown, errors.Join(err, shutdown(ctx))
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.EnableTracing {
		tp, err := tracerProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		stops = append(stops, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if cfg.EnableMetrics {
		mp, err := meterProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		stops = append(stops, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	if cfg.EnableLogs {
		lp, err := loggerProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		stops = append(stops, lp.Shutdown)
		global.SetLoggerProvider(lp)
	}

	return shutdown, nil
}

// otlpTLS returns the client TLS config for OTLP exporters, nil when insecure
func otlpTLS(cfg *TelemetryConfig) (*tls.Config, error) {
	if cfg.InsecureOTLP {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.OTLPCACertFile != "" {
		pem, err := os.ReadFile(cfg.OTLPCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to append CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

func tracerProvider(ctx context.Context, res *resource.Resource, cfg *TelemetryConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch {
	case cfg.DevelopmentMode:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case cfg.UseOTLPTraces:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPTracesURL)}
		if cfg.InsecureOTLP {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if tlsConfig, tlsErr := otlpTLS(cfg); tlsErr != nil {
			return nil, tlsErr
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	), nil
}

func meterProvider(ctx context.Context, res *resource.Resource, cfg *TelemetryConfig) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.UsePrometheus {
		// registers with the default prometheus registry served by promhttp
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	if cfg.UseOTLPMetrics {
		var exporter sdkmetric.Exporter
		var err error
		interval := time.Minute
		if cfg.DevelopmentMode {
			exporter, err = stdoutmetric.New()
			interval = 10 * time.Second
		} else {
			otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPMetricsURL)}
			if cfg.InsecureOTLP {
				otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
			} else if tlsConfig, tlsErr := otlpTLS(cfg); tlsErr != nil {
				return nil, tlsErr
			} else {
				otlpOpts = append(otlpOpts, otlpmetrichttp.WithTLSClientConfig(tlsConfig))
			}
			exporter, err = otlpmetrichttp.New(ctx, otlpOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func loggerProvider(ctx context.Context, res *resource.Resource, cfg *TelemetryConfig) (*sdklog.LoggerProvider, error) {
	var exporter sdklog.Exporter
	var err error

	switch {
	case cfg.DevelopmentMode:
		exporter, err = stdoutlog.New()
	case cfg.UseOTLPLogs:
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTLPLogsURL)}
		if cfg.InsecureOTLP {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if tlsConfig, tlsErr := otlpTLS(cfg); tlsErr != nil {
			return nil, tlsErr
		} else {
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	default:
		return sdklog.NewLoggerProvider(sdklog.WithResource(res)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	), nil
}
