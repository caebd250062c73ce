package generator

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Model responses carry three labelled sections. Headings are matched
// leniently: "CODE", "## CODE", "CODE:" all work, and fences inside a
// section are stripped.
var sectionRe = regexp.MustCompile(`(?i)^#{0,6}\s*(CODE|MANIFEST|DEPENDENCIES)\s*:?\s*$`)

var fenceRe = regexp.MustCompile("^```[a-zA-Z0-9_-]*\\s*$")

type sections struct {
	Code         string
	Manifest     string
	Dependencies string
}

// manifestDoc is the YAML the model returns under MANIFEST.
type manifestDoc struct {
	Description string         `yaml:"description"`
	EntryPoint  string         `yaml:"entry_point"`
	Parameters  map[string]any `yaml:"parameters"`
}

func splitSections(output string) (*sections, error) {
	parts := map[string][]string{}
	current := ""
	for _, line := range strings.Split(output, "\n") {
		if m := sectionRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = strings.ToUpper(m[1])
			continue
		}
		if current == "" {
			continue
		}
		parts[current] = append(parts[current], line)
	}

	s := &sections{
		Code:         stripFences(parts["CODE"]),
		Manifest:     stripFences(parts["MANIFEST"]),
		Dependencies: stripFences(parts["DEPENDENCIES"]),
	}

	if s.Code == "" {
		// Some models skip the headings and return one fenced python
		// block; accept it when it is unambiguous.
		if code := soleFencedBlock(output); code != "" {
			s.Code = code
		}
	}
	if s.Code == "" {
		return nil, skilltypes.NewError(skilltypes.ErrGeneration, "model response contains no CODE section")
	}
	return s, nil
}

func stripFences(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if fenceRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func soleFencedBlock(output string) string {
	var blocks []string
	var current []string
	inBlock := false
	for _, line := range strings.Split(output, "\n") {
		if fenceRe.MatchString(strings.TrimSpace(line)) {
			if inBlock {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			inBlock = !inBlock
			continue
		}
		if inBlock {
			current = append(current, line)
		}
	}
	if len(blocks) != 1 {
		return ""
	}
	return strings.TrimSpace(blocks[0])
}

func parseManifest(raw string) (*manifestDoc, error) {
	doc := &manifestDoc{}
	if strings.TrimSpace(raw) == "" {
		return doc, nil
	}
	if err := yaml.Unmarshal([]byte(raw), doc); err != nil {
		return nil, skilltypes.WrapError(skilltypes.ErrGeneration, err, "model returned malformed manifest YAML")
	}
	return doc, nil
}

func parseDependencies(raw string) []string {
	var deps []string
	for _, line := range strings.Split(raw, "\n") {
		dep := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if dep == "" || strings.EqualFold(dep, "none") {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}
