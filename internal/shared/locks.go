package shared

import "fmt"

// FinanceLockKey builds redis keys for period transitions.
func FinanceLockKey(periodID int64) string {
	return fmt.Sprintf("finance:period:%d:lock", periodID)
}

// IdempotencyKey builds the key recorded for one business event.
func IdempotencyKey(event, reference string) string {
	return fmt.Sprintf("%s:%s", event, reference)
}
