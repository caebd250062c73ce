package lifecycle

import (
	"github.com/invopop/jsonschema"
)

// Input shapes for exposing the manager as agent tools. An adapter (MCP
// server, function-calling bridge) advertises these schemas and maps
// decoded inputs onto the corresponding Manager methods.

type CreateSkillInput struct {
	Name        string `json:"name" jsonschema:"required,description=Unique skill name"`
	Description string `json:"description" jsonschema:"required,description=What the skill should do"`
	Template    string `json:"template,omitempty" jsonschema:"description=Prompt template name"`
	Isolation   string `json:"isolation,omitempty" jsonschema:"description=Isolation level for this skill"`
	Force       bool   `json:"force,omitempty" jsonschema:"description=Skip near-duplicate detection"`
}

type ExecuteSkillInput struct {
	Name       string         `json:"name" jsonschema:"required,description=Skill to execute"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"description=Parameters passed to the skill"`
}

type UpdateSkillInput struct {
	Name        string `json:"name" jsonschema:"required,description=Skill to regenerate"`
	Description string `json:"description" jsonschema:"required,description=New task description"`
}

type DeleteSkillInput struct {
	Name string `json:"name" jsonschema:"required,description=Skill to delete"`
}

// GenerateSchema reflects a JSON schema for an input type, with additional
// properties disallowed and definitions inlined.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// ToolSchemas returns the schema for every tool the manager can back.
func ToolSchemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"create_skill":  GenerateSchema[CreateSkillInput](),
		"execute_skill": GenerateSchema[ExecuteSkillInput](),
		"update_skill":  GenerateSchema[UpdateSkillInput](),
		"delete_skill":  GenerateSchema[DeleteSkillInput](),
	}
}
