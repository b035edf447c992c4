package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/skein/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
tasks:
  - id: summarize
    description: Summarize a document.
    prompt: "Summarize in {{.max_words}} words: {{.text}}"
    prompt_version: v2
    model: gemini-flash
    input:
      text: string
      max_words: int
    output:
      summary: string
  - id: tag
    prompt: "Extract tags from: {{.text}}"
    model: gemini-flash
    output:
      tags: "[string]"
    max_retries: 5
`

func TestParse(t *testing.T) {
	cat, err := catalog.Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, []string{"summarize", "tag"}, cat.IDs())

	task, ok := cat.Task("summarize")
	require.True(t, ok)
	assert.Equal(t, "v2", task.PromptVersion)
	assert.Equal(t, "gemini-flash", task.Model)
	require.NotNil(t, task.InputSchema)
	require.NotNil(t, task.OutputSchema)
	assert.NoError(t, task.InputSchema["max_words"].Validate(10))
	assert.Error(t, task.InputSchema["max_words"].Validate("ten"))

	tag, ok := cat.Task("tag")
	require.True(t, ok)
	assert.Equal(t, "v1", tag.PromptVersion, "prompt version defaults to v1")
	assert.Equal(t, 5, tag.MaxRetries)
	assert.NoError(t, tag.OutputSchema["tags"].Validate([]any{"a", "b"}))
	assert.Error(t, tag.OutputSchema["tags"].Validate([]any{1, 2}))

	_, ok = cat.Task("missing")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"not yaml", `{{{`},
		{"missing prompt", "tasks:\n  - id: broken\n    model: m\n"},
		{"missing id", "tasks:\n  - prompt: p\n    model: m\n"},
		{"unknown type", "tasks:\n  - id: t\n    prompt: p\n    model: m\n    output:\n      x: wat\n"},
		{"duplicate id", "tasks:\n  - id: t\n    prompt: p\n    model: m\n  - id: t\n    prompt: p\n    model: m\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	cat, err := catalog.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	_, err = catalog.Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
