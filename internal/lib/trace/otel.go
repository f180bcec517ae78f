// Package trace sets up the OpenTelemetry tracer provider wdrunner reports
// module and session spans to.
package trace

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/liuxd6825/wdrunner/internal/lib/strvals"
)

const serviceName = "wdrunner"

var (
	// ErrInvalidTracesOutput is returned for an output other than "none" or "otel".
	ErrInvalidTracesOutput = errors.New("invalid traces output")
	// ErrInvalidProto is returned for a proto other than http or grpc.
	ErrInvalidProto = errors.New("invalid protocol")
	// ErrInvalidURLScheme is returned for an endpoint URL that is not http(s).
	ErrInvalidURLScheme = errors.New("invalid URL scheme")
	// ErrInvalidGRPCWithURLPath is returned when a grpc exporter is given a URL path.
	ErrInvalidGRPCWithURLPath = errors.New("grpc protocol does not support URL path")
)

// TracerProvider is a trace.TracerProvider that can be shut down.
type TracerProvider struct {
	trace.TracerProvider
	shutdown func(ctx context.Context) error
}

// Shutdown flushes pending spans and releases the exporter. The provider is
// a no-op afterwards.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.shutdown(ctx)
}

type exporterParams struct {
	proto    string
	endpoint string
	urlPath  string
	insecure bool
	headers  map[string]string
}

func defaultExporterParams() exporterParams {
	return exporterParams{
		proto:    "grpc",
		endpoint: "127.0.0.1:4317",
		insecure: true,
		headers:  make(map[string]string),
	}
}

// NewNoopTracerProvider returns a provider whose spans go nowhere.
func NewNoopTracerProvider() *TracerProvider {
	prov := noop.NewTracerProvider()
	otel.SetTracerProvider(prov)
	return &TracerProvider{
		TracerProvider: prov,
		shutdown:       func(context.Context) error { return nil },
	}
}

// TracerProviderFromConfigLine builds a provider from a --traces-output value:
//
//	none
//	otel[=<endpoint>|<http(s) URL>][,proto=http|grpc][,header.<name>=<value>]
//
// The endpoint defaults to 127.0.0.1:4317 over insecure grpc.
func TracerProviderFromConfigLine(ctx context.Context, line string) (*TracerProvider, error) {
	if line == "" || line == "none" {
		return NewNoopTracerProvider(), nil
	}
	params, err := parseConfigLine(line)
	if err != nil {
		return nil, err
	}

	var client otlptrace.Client
	switch params.proto {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(params.endpoint),
			otlptracehttp.WithHeaders(params.headers),
		}
		if params.urlPath != "" {
			opts = append(opts, otlptracehttp.WithURLPath(params.urlPath))
		}
		if params.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	default:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(params.endpoint),
			otlptracegrpc.WithHeaders(params.headers),
		}
		if params.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating the traces exporter: %w", err)
	}
	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	return &TracerProvider{TracerProvider: prov, shutdown: prov.Shutdown}, nil
}

func parseConfigLine(line string) (exporterParams, error) {
	params := defaultExporterParams()
	out := line
	if i := strings.IndexAny(line, "=,"); i >= 0 {
		out = line[:i]
	}
	if out != "otel" {
		return params, fmt.Errorf("%w %q", ErrInvalidTracesOutput, out)
	}

	tokens, err := strvals.Parse(line)
	if err != nil {
		return params, fmt.Errorf("error while parsing otel configuration: %w", err)
	}
	for _, t := range tokens {
		switch {
		case t.Key == "otel":
			if t.Value == "" {
				continue
			}
			if err := params.setEndpoint(t.Value); err != nil {
				return params, fmt.Errorf("couldn't parse the otel endpoint: %w", err)
			}
		case t.Key == "proto":
			if t.Value != "http" && t.Value != "grpc" {
				return params, fmt.Errorf("%w: %q", ErrInvalidProto, t.Value)
			}
			params.proto = t.Value
		case strings.HasPrefix(t.Key, "header."):
			params.headers[strings.TrimPrefix(t.Key, "header.")] = t.Value
		default:
			return params, fmt.Errorf("unknown otel config key %s", t.Key)
		}
	}

	if params.proto == "grpc" && params.urlPath != "" {
		return params, ErrInvalidGRPCWithURLPath
	}
	return params, nil
}

// setEndpoint accepts a bare host:port, which keeps the current proto, or an
// http(s) URL, which switches to the http exporter.
func (p *exporterParams) setEndpoint(s string) error {
	if !strings.Contains(s, "://") {
		p.endpoint = s
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidURLScheme, u.Scheme)
	}
	p.proto = "http"
	p.endpoint = u.Host
	p.urlPath = u.Path
	p.insecure = u.Scheme == "http"
	return nil
}
