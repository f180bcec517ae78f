package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigLine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		line string
		exp  exporterParams
		err  error
	}{
		{
			line: "otel",
			exp:  defaultExporterParams(),
		},
		{
			line: "otel=collector:4317,header.X-Token=abc",
			exp: exporterParams{
				proto: "grpc", endpoint: "collector:4317", insecure: true,
				headers: map[string]string{"X-Token": "abc"},
			},
		},
		{
			line: "otel=https://collector:4318/v1/traces",
			exp: exporterParams{
				proto: "http", endpoint: "collector:4318", urlPath: "/v1/traces",
				headers: map[string]string{},
			},
		},
		{
			line: "otel=https://collector:4318/v1/traces,proto=grpc",
			err:  ErrInvalidGRPCWithURLPath,
		},
		{line: "jaeger", err: ErrInvalidTracesOutput},
		{line: "otel,proto=udp", err: ErrInvalidProto},
		{line: "otel=ftp://collector", err: ErrInvalidURLScheme},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.line, func(t *testing.T) {
			t.Parallel()
			params, err := parseConfigLine(tc.line)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, params)
		})
	}
}

func TestNoneIsNoop(t *testing.T) {
	t.Parallel()

	tp, err := TracerProviderFromConfigLine(context.Background(), "none")
	require.NoError(t, err)
	_, span := tp.Tracer("test").Start(context.Background(), "module")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
}
