package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that libinjection
// fingerprints as SQL injection.
type InjectionCheckResult struct {
	ParamName   string // Parameter name, with an index suffix for list items
	ParamValue  string // The offending string value
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckParameterForInjection fingerprints a single parameter value.
// Only strings are inspected; lists are inspected item by item.
// Returns nil when nothing suspicious was found.
func CheckParameterForInjection(paramName string, value any) []InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return []InjectionCheckResult{{
				ParamName:   paramName,
				ParamValue:  v,
				Fingerprint: string(fingerprint),
			}}
		}
	case []any:
		var results []InjectionCheckResult
		for i, item := range v {
			results = append(results, CheckParameterForInjection(fmt.Sprintf("%s[%d]", paramName, i), item)...)
		}
		return results
	case []string:
		var results []InjectionCheckResult
		for i, item := range v {
			results = append(results, CheckParameterForInjection(fmt.Sprintf("%s[%d]", paramName, i), item)...)
		}
		return results
	}
	return nil
}

// CheckAllParameters fingerprints every parameter value. Results are ordered
// by parameter name.
func CheckAllParameters(params map[string]any) []InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []InjectionCheckResult
	for _, name := range names {
		results = append(results, CheckParameterForInjection(name, params[name])...)
	}
	return results
}
