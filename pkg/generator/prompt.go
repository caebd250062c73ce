package generator

import (
	"fmt"
	"strings"

	"github.com/autoskill-ai/autoskill/pkg/templates"
)

// outputContract is appended to every synthesis prompt so responses are
// machine-extractable.
const outputContract = `Respond with exactly three sections, in this order:

CODE
A fenced python block containing the complete skill module. It must define
a function named "execute" that takes a single dict argument "parameters"
and returns a dict with a boolean "success" key and a "result" key.

MANIFEST
A fenced yaml block with:
  description: one-line summary of what the skill does
  entry_point: the function name (normally "execute")
  parameters: a JSON-schema style object describing the expected parameters

DEPENDENCIES
One pip package per line, or "none" if the standard library suffices.`

func buildPrompt(tmpl *templates.Template, name, description string) string {
	var b strings.Builder
	b.WriteString(tmpl.Content)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Write a skill named %q.\n", name)
	fmt.Fprintf(&b, "Task description: %s\n\n", description)
	b.WriteString(outputContract)
	return b.String()
}

// buildRepairPrompt re-prompts after validation rejected the previous
// response. The violations are listed verbatim so the model can address
// each one.
func buildRepairPrompt(base, previousCode, feedback string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYour previous response was rejected. The code was:\n\n```python\n")
	b.WriteString(previousCode)
	b.WriteString("\n```\n\nProblems found:\n")
	b.WriteString(feedback)
	b.WriteString("\nProduce a corrected response with the same three sections.")
	return b.String()
}
