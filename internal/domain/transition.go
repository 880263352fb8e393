package domain

import "fmt"

// PaymentTransitions is the payment state machine. Verified and rejected are
// terminal and reachable only from paid.
var PaymentTransitions = map[string][]string{
	string(PaymentPending):  {string(PaymentPaid)},
	string(PaymentPaid):     {string(PaymentVerified), string(PaymentRejected)},
	string(PaymentVerified): {},
	string(PaymentRejected): {},
}

// ReceiptTransitions is the legacy receipt state machine.
var ReceiptTransitions = map[string][]string{
	string(ReceiptPending):  {string(ReceiptApproved), string(ReceiptRejected)},
	string(ReceiptApproved): {},
	string(ReceiptRejected): {},
}

// ValidateTransition checks whether transitioning from current to target is
// allowed according to the given transition map. The returned error wraps
// ErrInvalidTransition.
func ValidateTransition(transitions map[string][]string, current, target string) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown current state %q: %w", current, ErrInvalidTransition)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q is not allowed: %w", current, target, ErrInvalidTransition)
}
