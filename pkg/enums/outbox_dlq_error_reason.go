package enums

import (
	"fmt"
	"slices"
)

// OutboxDLQErrorReason records why the relay gave up on a field event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnresolvable covers rows the event registry cannot map
	// to a topic or whose payload no longer decodes.
	OutboxDLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable_event"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonUnresolvable,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMaxAttempts,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	if r := OutboxDLQErrorReason(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid dead letter reason %q", value)
}
