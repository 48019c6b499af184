package assess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/linnemanlabs/guardian/internal/incident"
)

// maxReasonLen bounds the raw response recorded in a heuristic reason.
const maxReasonLen = 200

// rawAssessment is the exact object the reasoning service is asked to return.
type rawAssessment struct {
	Urgency            *float64  `json:"urgency"`
	Reason             *string   `json:"reason"`
	RecommendedActions *[]string `json:"recommended_actions"`
}

// parseAssessment interprets the raw reasoning response. It first tries the
// whole response as the exact object; failing that, it extracts the first
// balanced {...} substring and tries again.
func parseAssessment(raw string) (*incident.Assessment, error) {
	if res, err := parseStrict(raw); err == nil {
		return res, nil
	}

	obj, ok := firstBalancedObject(raw)
	if !ok {
		return nil, errors.New("no JSON object in response")
	}
	res, err := parseStrict(obj)
	if err != nil {
		return nil, fmt.Errorf("embedded object: %w", err)
	}
	return res, nil
}

func parseStrict(s string) (*incident.Assessment, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()

	var ra rawAssessment
	if err := dec.Decode(&ra); err != nil {
		return nil, err
	}
	// Reject trailing content after the object.
	if dec.More() {
		return nil, errors.New("trailing content after object")
	}
	if ra.Urgency == nil || ra.Reason == nil || ra.RecommendedActions == nil {
		return nil, errors.New("missing required field")
	}
	return &incident.Assessment{
		Urgency:            *ra.Urgency,
		Reason:             *ra.Reason,
		RecommendedActions: *ra.RecommendedActions,
	}, nil
}

// firstBalancedObject returns the first {...} substring with balanced braces,
// skipping braces inside JSON string literals.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
