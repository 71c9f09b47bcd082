package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTP span attributes
const (
	HTTPMethodKey = attribute.Key("http.method")
	HTTPURLKey    = attribute.Key("http.url")
	HTTPStatusKey = attribute.Key("http.status_code")
)

// Booking span attributes
const (
	UserIDKey       = attribute.Key("user.id")
	BookingIDKey    = attribute.Key("booking.id")
	BookingStatus   = attribute.Key("booking.status")
	VehicleClassKey = attribute.Key("booking.vehicle_class")
	PromoCodeKey    = attribute.Key("promo.code")
	FareSubtotalKey = attribute.Key("fare.subtotal_minor")
)

// TraceExternalAPI wraps a call to the ride API in a client span.
func TraceExternalAPI(ctx context.Context, tracerName, serviceName, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, fmt.Sprintf("%s.%s", serviceName, operation),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("external.service", serviceName),
		attribute.String("external.operation", operation),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// BookingAttributes builds the common booking attribute set, skipping blanks.
func BookingAttributes(bookingID, userID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if bookingID != "" {
		attrs = append(attrs, BookingIDKey.String(bookingID))
	}
	if userID != "" {
		attrs = append(attrs, UserIDKey.String(userID))
	}
	return attrs
}
