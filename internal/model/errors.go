package model

import (
	"fmt"
	"math"
)

// ValidationError reports a rejected request field. HTTP handlers map it to
// 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateLatLng checks that a coordinate pair is on the globe.
func ValidateLatLng(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Invalid("lat", "must be between -90 and 90, got %g", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return Invalid("lng", "must be between -180 and 180, got %g", lng)
	}
	return nil
}

// MaxPrice is the largest accepted price, in dollars.
const MaxPrice = 1000.0

// ValidatePrice checks 0 < price <= MaxPrice.
func ValidatePrice(field string, price float64) error {
	if !(price > 0 && price <= MaxPrice) {
		return Invalid(field, "must be greater than 0 and at most %g", MaxPrice)
	}
	return nil
}
