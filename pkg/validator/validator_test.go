package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

const validSource = `import json

def execute(parameters):
    numbers = parameters.get("numbers", [])
    return {"success": True, "result": sorted(numbers)}
`

func newValidator(t *testing.T, profile skilltypes.SecurityProfile) *Validator {
	t.Helper()
	v, err := New(profile)
	require.NoError(t, err)
	return v
}

func TestCheckValidSource(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{AllowFilesystem: true})
	result := v.Check(validSource, nil)
	assert.True(t, result.OK)
	assert.Empty(t, result.Violations)
	assert.NoError(t, result.Err())
	assert.Empty(t, result.Feedback())
}

func TestCheckSyntaxViolations(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{AllowFilesystem: true})

	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"empty source", "   \n", "source code is empty"},
		{"missing entry point", "def run(parameters):\n    return {}\n", "missing entry point"},
		{"unbalanced bracket", "def execute(parameters):\n    return sorted([1, 2\n", "unbalanced"},
		{"markdown fence", "```python\ndef execute(parameters):\n    return {}\n```\n", "markdown code fence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Check(tt.source, nil)
			assert.False(t, result.OK)
			require.NotEmpty(t, result.Violations)
			assert.Contains(t, result.Feedback(), tt.message)
		})
	}
}

func TestCheckForbiddenConstructs(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{})

	source := `import subprocess

def execute(parameters):
    eval("1 + 1")
    subprocess.run(["ls"])
    f = open("/etc/passwd")
    return {"success": True}
`
	result := v.Check(source, nil)
	assert.False(t, result.OK)

	rules := map[string]int{}
	for _, violation := range result.Violations {
		rules[violation.Message]++
	}
	assert.Contains(t, rules, "dynamic code execution primitives are not permitted")
	assert.Contains(t, rules, "process spawning is not permitted")
	assert.Contains(t, rules, "filesystem access is not permitted")
}

func TestProfilePermitsConstructs(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{
		AllowDynamicExec: true,
		AllowSubprocess:  true,
		AllowNetwork:     true,
		AllowFilesystem:  true,
	})

	source := `import requests

def execute(parameters):
    eval("1")
    data = open("file.txt").read()
    return {"success": True, "result": data}
`
	result := v.Check(source, nil)
	assert.True(t, result.OK, "permissive profile should accept all constructs: %v", result.Violations)
}

func TestCommentsAndStringsAreIgnored(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{})

	source := `def execute(parameters):
    # eval("this is just a comment")
    label = "not a real open( call"
    return {"success": True, "result": label}
`
	result := v.Check(source, nil)
	assert.True(t, result.OK, "violations: %v", result.Violations)
}

func TestImportAllowList(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{
		AllowFilesystem:      true,
		AllowedImportModules: []string{"json", "math", "collections"},
	})

	source := `import json
import numpy as np
from math import sqrt

def execute(parameters):
    return {"success": True}
`
	result := v.Check(source, nil)
	assert.False(t, result.OK)
	require.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0].Message, `"numpy"`)
	assert.Equal(t, 2, result.Violations[0].Line)
}

func TestDependencyAudit(t *testing.T) {
	t.Run("deny list", func(t *testing.T) {
		v := newValidator(t, skilltypes.SecurityProfile{
			AllowFilesystem:    true,
			DeniedDependencies: []string{"torch*", "tensorflow*"},
		})
		result := v.Check(validSource, []string{"numpy==1.26.0", "torch>=2.0"})
		assert.False(t, result.OK)
		require.Len(t, result.Violations, 1)
		assert.Contains(t, result.Violations[0].Message, `"torch"`)
	})

	t.Run("allow list", func(t *testing.T) {
		v := newValidator(t, skilltypes.SecurityProfile{
			AllowFilesystem:     true,
			AllowedDependencies: []string{"numpy", "pandas"},
		})
		result := v.Check(validSource, []string{"numpy", "requests"})
		assert.False(t, result.OK)
		require.Len(t, result.Violations, 1)
		assert.Contains(t, result.Violations[0].Message, `"requests"`)
	})

	t.Run("version constraints stripped", func(t *testing.T) {
		v := newValidator(t, skilltypes.SecurityProfile{
			AllowFilesystem:     true,
			AllowedDependencies: []string{"numpy"},
		})
		result := v.Check(validSource, []string{"NumPy>=1.20,<2"})
		assert.True(t, result.OK, "violations: %v", result.Violations)
	})
}

func TestAllViolationsCollected(t *testing.T) {
	v := newValidator(t, skilltypes.SecurityProfile{
		DeniedDependencies: []string{"torch"},
	})
	source := "eval('x')\nf = open('x')\n"
	result := v.Check(source, []string{"torch"})
	assert.False(t, result.OK)
	// syntax (entry point) + two constructs + dependency: nothing short-circuits
	assert.GreaterOrEqual(t, len(result.Violations), 4)

	err := result.Err()
	require.Error(t, err)
	assert.Equal(t, skilltypes.ErrValidation, skilltypes.KindOf(err))
}

func TestInvalidPatternRejectedAtConstruction(t *testing.T) {
	_, err := New(skilltypes.SecurityProfile{AllowedDependencies: []string{"[invalid"}})
	assert.Error(t, err)
}
