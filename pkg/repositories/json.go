package repositories

import (
	"encoding/json"
)

// jsonText stores raw JSON as text, substituting fallback when empty.
func jsonText(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

// rawJSON returns stored text as raw JSON, or null when it is not valid.
func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
