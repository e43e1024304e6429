package fbs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CPRRule binds a (method, path-prefix) pair to the body location where
// the caller's CPR number is merged before the request is forwarded. The
// prefix is matched against the path remainder after the agency segment,
// so the same rule covers placeholder, bare-id and isil-style paths.
type CPRRule struct {
	Method string
	Prefix string
	apply  func(body map[string]any, cpr string)
}

// Rules are evaluated in order, first match wins. New endpoint versions
// are covered by adding rows, not by branching.
var cprRules = []CPRRule{
	{
		Method: "POST",
		Prefix: "/patrons/withGuardian/",
		apply: func(body map[string]any, cpr string) {
			guardian, ok := body["guardian"].(map[string]any)
			if !ok {
				guardian = map[string]any{}
				body["guardian"] = guardian
			}
			guardian["personIdentifier"] = cpr
		},
	},
	{
		Method: "PUT",
		Prefix: "/patrons/patronid/",
		apply: func(body map[string]any, cpr string) {
			change, ok := body["pincodeChange"].(map[string]any)
			if !ok {
				change = map[string]any{}
				body["pincodeChange"] = change
			}
			change["libraryCardNumber"] = cpr
		},
	},
	{
		Method: "POST",
		Prefix: "/patrons/v",
		apply: func(body map[string]any, cpr string) {
			body["personIdentifier"] = cpr
		},
	},
}

// CPRRuleFor returns the rule matching the given method and inbound path,
// if any. A match means the operation requires the caller's CPR number.
func CPRRuleFor(method string, path string) (CPRRule, bool) {
	remainder := pathAfterAgency(path)
	if remainder == "" {
		return CPRRule{}, false
	}

	for _, rule := range cprRules {
		if rule.Method == method && strings.HasPrefix(remainder, rule.Prefix) {
			return rule, true
		}
	}
	return CPRRule{}, false
}

// Apply merges the CPR number into a JSON request body according to the
// rule. An empty body is treated as an empty JSON object.
func (r CPRRule) Apply(body []byte, cpr string) ([]byte, error) {
	parsed := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("fbs: parsing request body for cpr merge: %w", err)
		}
	}

	r.apply(parsed, cpr)

	merged, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("fbs: serializing request body after cpr merge: %w", err)
	}
	return merged, nil
}

// pathAfterAgency returns the path remainder following the agency segment,
// starting with "/", or "" when the path has no agency segment.
func pathAfterAgency(path string) string {
	segments := splitPath(path)
	index := agencySegmentIndex(segments)
	if index < 0 || index+1 >= len(segments) {
		return ""
	}
	return "/" + strings.Join(segments[index+1:], "/")
}
