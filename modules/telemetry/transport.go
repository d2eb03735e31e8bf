// Copyright 2025 bookii
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

package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport is an instrumented http.RoundTripper. Every request gets a
// client span with trace context injected into the outgoing headers, and
// is recorded against the HTTPClientMetrics.
type Transport struct {
	base       http.RoundTripper
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	metrics    *HTTPClientMetrics
}

// NewTransport wraps base with tracing and metrics. A nil base falls back
// to http.DefaultTransport; a nil metrics disables recording.
func NewTransport(base http.RoundTripper, metrics *HTTPClientMetrics) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:       base,
		tracer:     otel.Tracer("modules/telemetry"),
		propagator: otel.GetTextMapPropagator(),
		metrics:    metrics,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(),
		fmt.Sprintf("%s %s", req.Method, req.URL.Path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLFull(req.URL.String()),
			semconv.ServerAddress(req.URL.Host),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if t.metrics != nil {
			t.metrics.RecordRequest(ctx, req.Method, req.URL.Path, "error",
				float64(elapsed.Milliseconds()), 0)
		}
		return nil, err
	}

	span.SetAttributes(
		semconv.HTTPResponseStatusCode(resp.StatusCode),
		attribute.Int64("http.response.body.size", resp.ContentLength),
	)
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	if t.metrics != nil {
		t.metrics.RecordRequest(ctx, req.Method, req.URL.Path,
			strconv.Itoa(resp.StatusCode),
			float64(elapsed.Milliseconds()), resp.ContentLength)
	}

	return resp, nil
}
