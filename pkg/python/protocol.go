package python

import (
	"encoding/json"
	"strings"
)

// Output tags written by the shim at the start of a stdout line.
const (
	PlotTag         = "__PLOTLY_DATA__:"
	SchemaTag       = "__SCHEMA_JSON__:"
	DisplayBlockTag = "__SI_DISPLAY_BLOCK__:"
	CommandTag      = "__SI_CMD__:"
)

// Line is one classified line of script stdout.
type Line interface {
	// Text is the line exactly as the script printed it.
	Text() string
	line()
}

// PlotLine carries a Plotly figure payload.
type PlotLine struct {
	Raw     string
	Payload json.RawMessage
}

// SchemaLine carries the parameter schema recorded in SCHEMA mode.
type SchemaLine struct {
	Raw     string
	Payload json.RawMessage
}

// DisplayBlockLine carries an html or markdown block for the UI.
type DisplayBlockLine struct {
	Raw     string
	Payload string
}

// CommandLine carries a UI command such as a layout change.
type CommandLine struct {
	Raw     string
	Payload string
}

// PlainLine is anything the shim did not tag, or a tagged line with a bad payload.
type PlainLine struct {
	Raw string
}

func (l PlotLine) Text() string         { return l.Raw }
func (l SchemaLine) Text() string       { return l.Raw }
func (l DisplayBlockLine) Text() string { return l.Raw }
func (l CommandLine) Text() string      { return l.Raw }
func (l PlainLine) Text() string        { return l.Raw }

func (PlotLine) line()         {}
func (SchemaLine) line()       {}
func (DisplayBlockLine) line() {}
func (CommandLine) line()      {}
func (PlainLine) line()        {}

// SplitLines splits captured output into lines. Exactly one trailing newline
// is dropped so it never yields an empty entry, and a trailing "\r" is
// stripped from every line.
func SplitLines(out string) []string {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		return nil
	}
	parts := strings.Split(out, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

// ParseLine classifies a single stdout line.
func ParseLine(raw string) Line {
	switch {
	case strings.HasPrefix(raw, PlotTag):
		if payload, ok := jsonPayload(raw, PlotTag); ok {
			return PlotLine{Raw: raw, Payload: payload}
		}
	case strings.HasPrefix(raw, SchemaTag):
		if payload, ok := jsonPayload(raw, SchemaTag); ok {
			return SchemaLine{Raw: raw, Payload: payload}
		}
	case strings.HasPrefix(raw, DisplayBlockTag):
		return DisplayBlockLine{Raw: raw, Payload: strings.TrimPrefix(raw, DisplayBlockTag)}
	case strings.HasPrefix(raw, CommandTag):
		return CommandLine{Raw: raw, Payload: strings.TrimPrefix(raw, CommandTag)}
	}
	return PlainLine{Raw: raw}
}

func jsonPayload(raw, tag string) (json.RawMessage, bool) {
	payload := strings.TrimSpace(strings.TrimPrefix(raw, tag))
	if !json.Valid([]byte(payload)) {
		return nil, false
	}
	return json.RawMessage(payload), true
}

// Output is stdout after plot and schema payloads have been set aside.
type Output struct {
	Logs       []string
	PlotlyData json.RawMessage
	SchemaData json.RawMessage
}

// Demux parses stdout once. The last plot and the last schema win; every
// other line, display blocks and commands included, stays in Logs in order.
func Demux(stdout string) Output {
	out := Output{Logs: []string{}}
	for _, raw := range SplitLines(stdout) {
		switch l := ParseLine(raw).(type) {
		case PlotLine:
			out.PlotlyData = l.Payload
		case SchemaLine:
			out.SchemaData = l.Payload
		default:
			out.Logs = append(out.Logs, l.Text())
		}
	}
	return out
}
