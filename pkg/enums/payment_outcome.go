package enums

import (
	"fmt"
	"strings"
)

// PaymentOutcome is the result a payment provider reports for a checkout.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
	PaymentCancelled PaymentOutcome = "cancelled"
	PaymentTimedOut  PaymentOutcome = "timed_out"
)

var validPaymentOutcomes = []PaymentOutcome{
	PaymentSucceeded,
	PaymentFailed,
	PaymentCancelled,
	PaymentTimedOut,
}

// Settles reports whether the outcome converts holds into sales.
func (o PaymentOutcome) Settles() bool {
	return o == PaymentSucceeded
}

func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentOutcomes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment outcome %q", value)
}
