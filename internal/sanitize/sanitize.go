// Package sanitize strips sensitive fields from response payloads before
// they cross the service boundary.
package sanitize

import (
	"encoding/json"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

// baseFields are removed for every caller.
var baseFields = []string{"passwordHash", "sessionToken", "refreshToken"}

// restrictedFields are additionally removed for everyone below SuperAdmin.
var restrictedFields = []string{"ipAddress", "userAgent"}

// FieldsFor returns the strip set for a role.
func FieldsFor(role rbac.Role) map[string]struct{} {
	strip := make(map[string]struct{}, len(baseFields)+len(restrictedFields))
	for _, field := range baseFields {
		strip[field] = struct{}{}
	}
	if role != rbac.RoleSuperAdmin {
		for _, field := range restrictedFields {
			strip[field] = struct{}{}
		}
	}
	return strip
}

// Output returns a copy of data with role-inappropriate fields removed.
// Objects and arrays are walked recursively; structs are first flattened
// through a JSON round trip so handlers can return domain types directly.
// Nil and primitive inputs pass through unchanged, the input is never
// mutated, and sanitizing twice yields the same result as sanitizing once.
func Output(data any, role rbac.Role) any {
	return clean(data, FieldsFor(role))
}

func clean(value any, strip map[string]struct{}) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			if _, drop := strip[key]; drop {
				continue
			}
			out[key] = clean(nested, strip)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = clean(nested, strip)
		}
		return out
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v
	default:
		// Structs, typed maps and typed slices reshape into generic JSON
		// form; the reshaped tree contains only the cases above, so the
		// recursion terminates. Anything that does not marshal is passed
		// through untouched: the sanitizer must be total.
		round, ok := roundTrip(v)
		if !ok {
			return v
		}
		return clean(round, strip)
	}
}

func roundTrip(value any) (any, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	return generic, true
}
