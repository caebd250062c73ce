package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	presenter := New()
	assert.NotNil(t, presenter)
	assert.Equal(t, os.Stdout, presenter.output)
	assert.Equal(t, os.Stderr, presenter.errorOutput)
	assert.False(t, presenter.quiet)
}

func TestNewWithOptions(t *testing.T) {
	var output, errorOutput bytes.Buffer
	presenter := NewWithOptions(&output, &errorOutput, ColorNever)

	assert.Equal(t, &output, presenter.output)
	assert.Equal(t, &errorOutput, presenter.errorOutput)
	assert.Equal(t, ColorNever, presenter.colorMode)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		autoskillColor string
		expected      ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"AUTOSKILL_COLOR always", "", "always", ColorAlways},
		{"AUTOSKILL_COLOR force", "", "force", ColorAlways},
		{"AUTOSKILL_COLOR never", "", "never", ColorNever},
		{"AUTOSKILL_COLOR off", "", "off", ColorNever},
		{"AUTOSKILL_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"invalid value", "", "invalid", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("NO_COLOR")
			os.Unsetenv("AUTOSKILL_COLOR")
			t.Cleanup(func() {
				os.Unsetenv("NO_COLOR")
				os.Unsetenv("AUTOSKILL_COLOR")
			})

			if tt.noColor != "" {
				os.Setenv("NO_COLOR", tt.noColor)
			}
			if tt.autoskillColor != "" {
				os.Setenv("AUTOSKILL_COLOR", tt.autoskillColor)
			}
			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestErrorOutput(t *testing.T) {
	var output, errorOutput bytes.Buffer
	presenter := NewWithOptions(&output, &errorOutput, ColorNever)

	presenter.Error(errors.New("boom"), "creating skill")
	assert.Contains(t, errorOutput.String(), "[ERROR] creating skill: boom")
	assert.Empty(t, output.String())

	errorOutput.Reset()
	presenter.Error(errors.New("bare"), "")
	assert.Contains(t, errorOutput.String(), "[ERROR] bare")

	errorOutput.Reset()
	presenter.Error(nil, "ignored")
	assert.Empty(t, errorOutput.String())
}

func TestQuietModeSuppressesOutput(t *testing.T) {
	var output, errorOutput bytes.Buffer
	presenter := NewWithOptions(&output, &errorOutput, ColorNever)
	presenter.SetQuiet(true)
	assert.True(t, presenter.IsQuiet())

	presenter.Success("done")
	presenter.Warning("careful")
	presenter.Info("fyi")
	presenter.Section("header")
	presenter.Separator()
	assert.Empty(t, output.String())

	// Errors are never suppressed.
	presenter.Error(errors.New("boom"), "")
	assert.Contains(t, errorOutput.String(), "boom")
}

func TestSection(t *testing.T) {
	var output, errorOutput bytes.Buffer
	presenter := NewWithOptions(&output, &errorOutput, ColorNever)

	presenter.Section("Skills")
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	assert.Equal(t, []string{"Skills", "------"}, lines)
}
