package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient wraps base's transport with otelhttp so outbound calls to
// the extraction service, embedding backend, and chat providers produce
// spans/metrics under whatever tracer/meter provider InitOTel installed
// (a no-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset).
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}
