package python

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// ShimVersion identifies the runtime protocol spoken by shim.py.tmpl.
const ShimVersion = 1

//go:embed shim.py.tmpl
var shimSource string

var shimTemplate = template.Must(template.New("shim").Parse(shimSource))

type shimData struct {
	UserCode string
}

// ComposeScript renders the runtime shim with userCode at its single
// insertion point. User code is inserted verbatim and never parsed as a template.
func ComposeScript(userCode string) (string, error) {
	var b strings.Builder
	if err := shimTemplate.Execute(&b, shimData{UserCode: userCode}); err != nil {
		return "", fmt.Errorf("failed to render python shim: %w", err)
	}
	return b.String(), nil
}
