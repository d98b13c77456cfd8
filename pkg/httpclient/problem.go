package httpclient

import (
	"bytes"
	"encoding/json"
)

// ProblemDetails is the structured error body returned by the backend (RFC 7807).
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ParseProblem decodes body as ProblemDetails. It reports false when the body is
// not a JSON object or carries neither a title nor a detail.
func ParseProblem(body []byte) (ProblemDetails, bool) {
	var p ProblemDetails
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, false
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return ProblemDetails{}, false
	}
	if p.Title == "" && p.Detail == "" {
		return ProblemDetails{}, false
	}
	return p, true
}
