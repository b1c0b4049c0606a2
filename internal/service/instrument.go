package service

import (
	"time"

	"coin-ledger/pkg/apperror"
	"coin-ledger/pkg/metrics"
)

// observe records the outcome of a ledger operation started at start.
// Call it deferred with a pointer to the named error result.
func observe(operation string, start time.Time, errp *error) {
	result := "OK"
	if errp != nil && *errp != nil {
		result = apperror.CodeOf(*errp)
		if result == "" {
			result = "SYS_001"
		}
	}
	metrics.ObserveOperation(operation, result, time.Since(start))
}
