package observability

import (
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sunpeak-solar/api/internal/platform/requestctx"
)

const traceparentHeader = "traceparent"

var tracer = otel.Tracer("github.com/sunpeak-solar/api/internal/platform/observability")

// TraceMiddleware parses an inbound W3C traceparent header, starts a server
// span, and stores trace metadata on the request context.
func TraceMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if remoteSpanCtx, ok := parseTraceparent(r.Header.Get(traceparentHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remoteSpanCtx)
			}

			spanName := spanNameFromRequest(r)
			ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(standardSpanAttributes(r)...)

			spanCtx := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID: spanCtx.TraceID().String(),
				SpanID:  spanCtx.SpanID().String(),
				Sampled: spanCtx.IsSampled(),
			}

			ctx = requestctx.WithTrace(ctx, info)
			r = r.WithContext(ctx)

			if formatted := formatTraceparent(info); formatted != "" {
				w.Header().Set(traceparentHeader, formatted)
			}

			defer span.End()
			next.ServeHTTP(w, r)
		})
	}
}

// parseTraceparent accepts the "00-<trace-id>-<span-id>-<flags>" form and
// rejects anything else.
func parseTraceparent(header string) (trace.SpanContext, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return trace.SpanContext{}, false
	}

	parts := strings.Split(header, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return trace.SpanContext{}, false
	}

	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return trace.SpanContext{}, false
	}

	flags := trace.TraceFlags(0)
	if parts[3] == "01" {
		flags = trace.FlagsSampled
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func formatTraceparent(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	flags := "00"
	if info.Sampled {
		flags = "01"
	}
	return fmt.Sprintf("00-%s-%s-%s", info.TraceID, info.SpanID, flags)
}

func spanNameFromRequest(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s %s", r.Method, path)
}

func standardSpanAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("url.scheme", scheme),
	}
	if r.URL != nil {
		if path := r.URL.Path; path != "" {
			attrs = append(attrs, attribute.String("url.path", path))
		}
		if target := r.URL.RequestURI(); target != "" {
			attrs = append(attrs, attribute.String("url.full", target))
		}
	}
	if host := r.Host; host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}
