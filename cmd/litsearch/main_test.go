package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
passages:
  - source: book-page
    id: bb-66
    ref: "66"
    title: How It Works
    text: Resentment is the number one offender.
  - source: reflection
    id: dr-0112
    ref: "01-12"
    title: Freedom From Resentment
    text: Resentment destroys more alcoholics than anything else.
  - source: step
    id: step-4
    ref: "4"
    text: Made a searching and fearless moral inventory of ourselves.
`

// run executes the app with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"litsearch"}, args...))
	return out.String(), err
}

func seededIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LITSEARCH_INDEX__PATH", filepath.Join(dir, "index.db"))
	t.Setenv("LITSEARCH_EMBEDDING__PROVIDER", "local")
	t.Setenv("LITSEARCH_CONFIG", "")

	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(fixtureYAML), 0o600))

	out, err := run(t, "seed", "--file", fixtures, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3, skipped 0, failed 0")
	return dir
}

func TestSearchCommand(t *testing.T) {
	seededIndex(t)

	out, err := run(t, "search", "Resentment", "is", "the", "number", "one", "offender.")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Big Book, p.66 (100%)  /big-book/page/66")
	assert.Contains(t, out, "How It Works")

	out, err = run(t, "search", "--json", "--source", "reflections", "--min-score", "0.1", "resentment")
	require.NoError(t, err)
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "Daily Reflection, January 12 - Freedom From Resentment", resp.Citations[0].Label)
	assert.Len(t, resp.SourcesQueried, 1)

	out, err = run(t, "search", "--context", "Made a searching and fearless moral inventory of ourselves.")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] From Step 4:")

	out, err = run(t, "search", "zebra crossing")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching passages.")

	out, err = run(t, "search", "--json", "--min-score", "0", "resentment")
	require.NoError(t, err)
	resp = jsonResponse{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Citations, 3, "an explicit zero keeps every match")
}

func TestSearchCommandErrors(t *testing.T) {
	seededIndex(t)

	_, err := run(t, "search")
	assert.ErrorContains(t, err, "query is required")

	_, err = run(t, "search", "--source", "podcast", "anything")
	assert.Error(t, err)
}

func TestBookCommand(t *testing.T) {
	seededIndex(t)

	out, err := run(t, "book", "--min-score", "0.1", "resentment")
	require.NoError(t, err)
	assert.Contains(t, out, "Big Book, p.66")
	assert.NotContains(t, out, "Daily Reflection")
}

func TestEvalCommand(t *testing.T) {
	dir := seededIndex(t)
	queries := filepath.Join(dir, "queries.txt")
	require.NoError(t, os.WriteFile(queries, []byte("# smoke\nResentment is the number one offender.\n\nzebra\n"), 0o600))

	out, err := run(t, "eval", "--file", queries, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `top="Big Book, p.66"`)
	assert.Contains(t, out, "2 queries, 0 errors, 0 partial, 1 empty")

	_, err = run(t, "eval")
	assert.Error(t, err, "file flag is required")
}

func TestStatusCommand(t *testing.T) {
	seededIndex(t)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "book-page    passages=1 embeddings=1")
	assert.Contains(t, out, "Embedding:  local/")

	out, err = run(t, "status", "--json")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "local", st["embedding_provider"])
}

func TestEmbedCommand(t *testing.T) {
	seededIndex(t)

	out, err := run(t, "embed", "hope")
	require.NoError(t, err)
	assert.Contains(t, out, "Provider:  local")
	assert.Contains(t, out, "Dimension: 384")

	_, err = run(t, "embed")
	assert.ErrorContains(t, err, "text is required")
}

func TestBadConfigFlag(t *testing.T) {
	t.Setenv("LITSEARCH_CONFIG", "")
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "status")
	assert.ErrorContains(t, err, "config file not found")

	_, err = run(t, "--log-level", "loud", "status")
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "litsearch dev")
	assert.Contains(t, out, "Build Mode:")
}

func TestSeedCommand(t *testing.T) {
	dir := seededIndex(t)
	fixtures := filepath.Join(dir, "fixtures.yaml")

	out, err := run(t, "seed", "--file", fixtures)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 0, skipped 3, failed 0")

	out, err = run(t, "seed", "--file", fixtures, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3, skipped 0, failed 0")

	_, err = run(t, "seed", "--file", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
