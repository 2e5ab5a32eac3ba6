package domain

import "encoding/json"

// RequestType names the downstream function a batched sub-request targets.
type RequestType string

const (
	TypeGenerateRecommendations RequestType = "generate-recommendations"
	TypeFilterRecommendations   RequestType = "filter-recommendations"
	TypeGeocodeAddress          RequestType = "geocode-address"
)

// Valid reports whether t is one of the dispatchable request types.
func (t RequestType) Valid() bool {
	switch t {
	case TypeGenerateRecommendations, TypeFilterRecommendations, TypeGeocodeAddress:
		return true
	}
	return false
}

// SubRequest is one entry of a BatchRequest.
type SubRequest struct {
	ID   string          `json:"id"`
	Type RequestType     `json:"type"`
	Body json.RawMessage `json:"body"`
}

// BatchRequest is the envelope accepted by the batch endpoint.
type BatchRequest struct {
	Requests []SubRequest `json:"requests"`
}

// SubResponse carries either Data or Error for the sub-request with ID.
type SubResponse struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// BatchResponse holds exactly one SubResponse per input request id.
type BatchResponse struct {
	Responses []SubResponse `json:"responses"`
}
