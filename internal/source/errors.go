package source

import "errors"

// Sentinel errors for transport failures. Callers discriminate with errors.Is.
var (
	// ErrPermanent marks a client-side rejection (4xx class, missing file,
	// unsupported location). Never retried.
	ErrPermanent = errors.New("permanent source error")

	// ErrExhausted marks a transient failure that survived the full retry budget.
	ErrExhausted = errors.New("retries exhausted")

	// ErrRangeIgnored is returned when a ranged open was answered with a full
	// body. Resuming against such a source would corrupt the output.
	ErrRangeIgnored = errors.New("server ignored range request")
)
