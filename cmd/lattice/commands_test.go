package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRenderRoundTrip(t *testing.T) {
	p := writeFile(t, "# One\n\n- a\n- b")

	assert.Equal(t, "# One\n\n- a\n- b\n", run(t, "render", "--format", "md", p))

	out := run(t, "render", "--format", "html", p)
	assert.True(t, strings.Contains(out, "<li>a</li>"), out)
}

func TestMarkmapCommand(t *testing.T) {
	p := writeFile(t, "# One\n\n## Two\n\n## Three")

	var node map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, "markmap", "--expand-level=-1", p)), &node))
	assert.Contains(t, node, "payload")
	assert.Contains(t, node, "children")
}

func TestParseCommand(t *testing.T) {
	p := writeFile(t, "plain text")
	out := run(t, "parse", p)
	assert.True(t, json.Valid([]byte(out)), out)
}
