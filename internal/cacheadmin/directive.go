package cacheadmin

import "errors"

// Clear actions, echoed back in ClearResponse
const (
	ActionAll      = "all"
	ActionPattern  = "pattern"
	ActionCustomer = "customer"
	ActionMetrics  = "metrics"
)

var (
	errNoDirective    = errors.New("one of all, pattern, customerId or metrics is required")
	errManyDirectives = errors.New("only one of all, pattern, customerId or metrics may be set")
	errEmptyPattern   = errors.New("pattern must not be empty")
	errEmailOnly      = errors.New("email requires customerId")
)

// ClearRequest is the body of POST /api/admin/cache/clear.
// Pointer fields tell an absent directive apart from a zero one.
type ClearRequest struct {
	All        *bool   `json:"all,omitempty"`
	Pattern    *string `json:"pattern,omitempty"`
	CustomerID *string `json:"customerId,omitempty"`
	Email      string  `json:"email,omitempty"`
	Metrics    *bool   `json:"metrics,omitempty"`
}

// directive returns the single action the request asks for
func (c ClearRequest) directive() (string, error) {
	var set []string
	if c.All != nil && *c.All {
		set = append(set, ActionAll)
	}
	if c.Pattern != nil {
		set = append(set, ActionPattern)
	}
	if c.CustomerID != nil {
		set = append(set, ActionCustomer)
	}
	if c.Metrics != nil && *c.Metrics {
		set = append(set, ActionMetrics)
	}

	switch len(set) {
	case 0:
		if c.Email != "" {
			return "", errEmailOnly
		}
		return "", errNoDirective
	case 1:
	default:
		return "", errManyDirectives
	}

	if set[0] == ActionPattern && *c.Pattern == "" {
		return "", errEmptyPattern
	}
	return set[0], nil
}
