// Package validator performs static analysis of generated skill code before
// it is accepted or executed. Checks run in a fixed order and collect every
// violation instead of short-circuiting, so the generator and the reflection
// engine can feed the full list back to the model in one re-prompt.
//
// Validation is pure: no filesystem, no subprocess, no network.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Violation is one failed rule with its location in the source.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Result is the outcome of a validation pass. OK is false if any rule failed.
type Result struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
}

// Err folds the violations into a single error, or nil when the result is OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	var merr *multierror.Error
	for _, v := range r.Violations {
		if v.Line > 0 {
			merr = multierror.Append(merr, fmt.Errorf("%s (line %d): %s", v.Rule, v.Line, v.Message))
		} else {
			merr = multierror.Append(merr, fmt.Errorf("%s: %s", v.Rule, v.Message))
		}
	}
	return skilltypes.WrapError(skilltypes.ErrValidation, merr.ErrorOrNil(), "code rejected by validator")
}

// Feedback renders the violations as numbered repair instructions for a
// re-prompt.
func (r Result) Feedback() string {
	if r.OK {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Static validation found the following issues that must be fixed:\n")
	for i, v := range r.Violations {
		if v.Line > 0 {
			fmt.Fprintf(&sb, "%d. [%s] line %d: %s\n", i+1, v.Rule, v.Line, v.Message)
		} else {
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, v.Rule, v.Message)
		}
	}
	return sb.String()
}

// Rule names, stable across releases so callers can match on them.
const (
	RuleSyntax     = "syntax"
	RuleForbidden  = "forbidden-construct"
	RuleDependency = "dependency-audit"
)

type constructRule struct {
	pattern *regexp.Regexp
	message string
	allowed func(p skilltypes.SecurityProfile) bool
}

var constructRules = []constructRule{
	{
		pattern: regexp.MustCompile(`(^|[^\w.])(eval|exec|compile|__import__)\s*\(`),
		message: "dynamic code execution primitives are not permitted",
		allowed: func(p skilltypes.SecurityProfile) bool { return p.AllowDynamicExec },
	},
	{
		pattern: regexp.MustCompile(`(subprocess\.|os\.system\s*\(|os\.popen\s*\(|os\.exec[a-z]*\s*\()`),
		message: "process spawning is not permitted",
		allowed: func(p skilltypes.SecurityProfile) bool { return p.AllowSubprocess },
	},
	{
		pattern: regexp.MustCompile(`(^|[^\w.])(socket\.|urllib|requests\.|http\.client|httpx)`),
		message: "network access is not permitted",
		allowed: func(p skilltypes.SecurityProfile) bool { return p.AllowNetwork },
	},
	{
		pattern: regexp.MustCompile(`(^|[^\w.])(open\s*\(|os\.remove|os\.unlink|os\.rmdir|shutil\.)`),
		message: "filesystem access is not permitted",
		allowed: func(p skilltypes.SecurityProfile) bool { return p.AllowFilesystem },
	},
}

var (
	entryPointRe = regexp.MustCompile(`(?m)^def\s+execute\s*\(`)
	importRe     = regexp.MustCompile(`^\s*(?:import\s+([\w.]+)|from\s+([\w.]+)\s+import)`)
)

// Validator checks skill source code against the active security profile and
// the dependency allow/deny lists.
type Validator struct {
	profile     skilltypes.SecurityProfile
	allowedDeps []glob.Glob
	deniedDeps  []glob.Glob
	allowedMods []glob.Glob
}

// New compiles the profile's allow/deny patterns into a validator. Invalid
// glob patterns are rejected here rather than at check time.
func New(profile skilltypes.SecurityProfile) (*Validator, error) {
	v := &Validator{profile: profile}

	var err error
	if v.allowedDeps, err = compileGlobs(profile.AllowedDependencies); err != nil {
		return nil, err
	}
	if v.deniedDeps, err = compileGlobs(profile.DeniedDependencies); err != nil {
		return nil, err
	}
	if v.allowedMods, err = compileGlobs(profile.AllowedImportModules); err != nil {
		return nil, err
	}
	return v, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Check validates source code and its declared dependency list. All rules
// run; every violation is collected.
func (v *Validator) Check(source string, dependencies []string) Result {
	var violations []Violation
	violations = append(violations, v.checkSyntax(source)...)
	violations = append(violations, v.checkConstructs(source)...)
	violations = append(violations, v.checkDependencies(dependencies)...)
	return Result{OK: len(violations) == 0, Violations: violations}
}

// checkSyntax performs shape-level checks: non-empty source, balanced
// brackets outside strings and comments, a well-formed entry point, and no
// stray markdown fences left over from model output.
func (v *Validator) checkSyntax(source string) []Violation {
	var violations []Violation

	if strings.TrimSpace(source) == "" {
		return []Violation{{Rule: RuleSyntax, Message: "source code is empty"}}
	}
	if line := findFence(source); line > 0 {
		violations = append(violations, Violation{
			Rule:    RuleSyntax,
			Message: "markdown code fence found in source",
			Line:    line,
		})
	}
	if line, ch := findUnbalanced(source); ch != 0 {
		violations = append(violations, Violation{
			Rule:    RuleSyntax,
			Message: fmt.Sprintf("unbalanced %q", ch),
			Line:    line,
		})
	}
	if !entryPointRe.MatchString(source) {
		violations = append(violations, Violation{
			Rule:    RuleSyntax,
			Message: "missing entry point: def execute(parameters)",
		})
	}
	return violations
}

func (v *Validator) checkConstructs(source string) []Violation {
	var violations []Violation
	for lineNo, line := range strings.Split(source, "\n") {
		code := stripComment(line)
		if strings.TrimSpace(code) == "" {
			continue
		}
		for _, rule := range constructRules {
			if rule.allowed(v.profile) {
				continue
			}
			if rule.pattern.MatchString(code) {
				violations = append(violations, Violation{
					Rule:    RuleForbidden,
					Message: rule.message,
					Line:    lineNo + 1,
				})
			}
		}
		if len(v.allowedMods) > 0 {
			if m := importRe.FindStringSubmatch(code); m != nil {
				module := m[1]
				if module == "" {
					module = m[2]
				}
				root := strings.SplitN(module, ".", 2)[0]
				if !matchesAny(v.allowedMods, root) {
					violations = append(violations, Violation{
						Rule:    RuleForbidden,
						Message: fmt.Sprintf("import of module %q is not on the allow-list", root),
						Line:    lineNo + 1,
					})
				}
			}
		}
	}
	return violations
}

func (v *Validator) checkDependencies(dependencies []string) []Violation {
	var violations []Violation
	for _, dep := range dependencies {
		name := dependencyName(dep)
		if name == "" {
			continue
		}
		if matchesAny(v.deniedDeps, name) {
			violations = append(violations, Violation{
				Rule:    RuleDependency,
				Message: fmt.Sprintf("dependency %q is on the deny-list", name),
			})
			continue
		}
		if len(v.allowedDeps) > 0 && !matchesAny(v.allowedDeps, name) {
			violations = append(violations, Violation{
				Rule:    RuleDependency,
				Message: fmt.Sprintf("dependency %q is not on the allow-list", name),
			})
		}
	}
	return violations
}

// dependencyName strips version constraints from a requirement line.
func dependencyName(dep string) string {
	dep = strings.TrimSpace(dep)
	for _, sep := range []string{"==", ">=", "<=", "~=", ">", "<", "[", " "} {
		if i := strings.Index(dep, sep); i >= 0 {
			dep = dep[:i]
		}
	}
	return strings.ToLower(dep)
}

// stripComment removes a trailing # comment, respecting string literals.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

func findFence(source string) int {
	for lineNo, line := range strings.Split(source, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return lineNo + 1
		}
	}
	return 0
}

// findUnbalanced scans brackets outside strings and comments. It reports the
// line of the first unmatched opener or closer, or (0, 0) when balanced.
func findUnbalanced(source string) (int, byte) {
	type opener struct {
		ch   byte
		line int
	}
	var stack []opener
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for lineNo, line := range strings.Split(source, "\n") {
		code := stripComment(line)
		var quote byte
		for i := 0; i < len(code); i++ {
			c := code[i]
			switch {
			case quote != 0:
				if c == '\\' {
					i++
				} else if c == quote {
					quote = 0
				}
			case c == '\'' || c == '"':
				quote = c
			case c == '(' || c == '[' || c == '{':
				stack = append(stack, opener{ch: c, line: lineNo + 1})
			case c == ')' || c == ']' || c == '}':
				if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
					return lineNo + 1, c
				}
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return top.line, top.ch
	}
	return 0, 0
}
