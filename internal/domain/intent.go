package domain

import "strings"

// Intent tags what the caller wants to do. Values match the intent backend wire names.
type Intent string

const (
	IntentCreateRequest  Intent = "CREATE_MAINTENANCE_REQUEST"
	IntentQueryStatus    Intent = "QUERY_STATUS"
	IntentListRequests   Intent = "LIST_MY_REQUESTS"
	IntentEmergency      Intent = "EMERGENCY"
	IntentGeneralInquiry Intent = "GENERAL_INQUIRY"
	IntentUnknown        Intent = "UNKNOWN"
)

// Intents lists every intent variant.
var Intents = []Intent{
	IntentCreateRequest,
	IntentQueryStatus,
	IntentListRequests,
	IntentEmergency,
	IntentGeneralInquiry,
	IntentUnknown,
}

// ParseIntent maps a wire name to an Intent; anything unrecognised is IntentUnknown.
func ParseIntent(raw string) Intent {
	candidate := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Intents {
		if candidate == known {
			return known
		}
	}
	return IntentUnknown
}

// IntentResult is the classifier output for one utterance.
type IntentResult struct {
	Intent             Intent       `json:"intent"`
	Confidence         float64      `json:"confidence"`
	ExtractedDraft     *TicketDraft `json:"extractedData,omitempty"`
	ReferencedTicketID *int64       `json:"ticketId,omitempty"`
	IsEmergency        bool         `json:"isEmergency"`
	AdditionalInfo     string       `json:"additionalInfo,omitempty"`
}

// UnknownIntent is the result used whenever classification is unavailable.
func UnknownIntent() IntentResult {
	return IntentResult{Intent: IntentUnknown, Confidence: 0, IsEmergency: false}
}
