package errors

// Reason names the precise domain failure behind a coded error. It is
// surfaced to clients as details.reason.
type Reason string

const (
	ReasonAlreadyInMarket    Reason = "ALREADY_IN_MARKET"
	ReasonNoActiveSession    Reason = "NO_ACTIVE_SESSION"
	ReasonVisitInProgress    Reason = "VISIT_IN_PROGRESS"
	ReasonVisitAlreadyOpen   Reason = "VISIT_ALREADY_OPEN"
	ReasonVisitAlreadyClosed Reason = "VISIT_ALREADY_CLOSED"
	ReasonNoOpenVisit        Reason = "NO_OPEN_VISIT"
	ReasonRequestInProgress  Reason = "REQUEST_IN_PROGRESS"

	ReasonOutcomeRequired     Reason = "OUTCOME_REQUIRED"
	ReasonInvalidOutcome      Reason = "INVALID_OUTCOME"
	ReasonOutOfGeofenceRange  Reason = "OUT_OF_GEOFENCE_RANGE"
	ReasonInvalidOrderedItems Reason = "INVALID_ORDERED_ITEMS"
	ReasonInvalidOrderValue   Reason = "INVALID_ORDER_VALUE"
	ReasonInvalidLocation     Reason = "INVALID_LOCATION"
	ReasonInvalidDealerRef    Reason = "INVALID_DEALER_REF"

	ReasonVisitNotFound          Reason = "VISIT_NOT_FOUND"
	ReasonSessionNotFound        Reason = "SESSION_NOT_FOUND"
	ReasonLeadNotFound           Reason = "LEAD_NOT_FOUND"
	ReasonDealerNotFound         Reason = "DEALER_NOT_FOUND"
	ReasonRepresentativeNotFound Reason = "REPRESENTATIVE_NOT_FOUND"
	ReasonTerritoryNotFound      Reason = "TERRITORY_NOT_FOUND"

	ReasonCapabilityDenied Reason = "CAPABILITY_DENIED"
	ReasonLeadNotAssigned  Reason = "LEAD_NOT_ASSIGNED"

	ReasonTokenExpired   Reason = "TOKEN_EXPIRED"
	ReasonSessionRevoked Reason = "SESSION_REVOKED"
)

// WithReason builds a coded error whose details carry the reason plus any
// state fields the caller needs to recover.
func WithReason(code Code, reason Reason, message string, state map[string]any) *Error {
	details := map[string]any{"reason": string(reason)}
	for k, v := range state {
		details[k] = v
	}
	return New(code, message).WithDetails(details)
}

// StateConflict reports a disallowed transition along with the current state.
func StateConflict(reason Reason, message string, state map[string]any) *Error {
	return WithReason(CodeStateConflict, reason, message, state)
}

func Validation(reason Reason, message string, state map[string]any) *Error {
	return WithReason(CodeValidation, reason, message, state)
}

func NotFound(reason Reason, message string) *Error {
	return WithReason(CodeNotFound, reason, message, nil)
}

func Forbidden(reason Reason, message string) *Error {
	return WithReason(CodeForbidden, reason, message, nil)
}

// ReasonOf extracts details.reason from a coded error, if present.
func ReasonOf(err error) Reason {
	typed := As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	if r, ok := details["reason"].(string); ok {
		return Reason(r)
	}
	return ""
}
