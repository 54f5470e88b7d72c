package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamzoek/stamzoek/pkg/version"
)

const samplePage = `II.1 Jan Jansen, geboren te Leiden 12 maart 1688, overleden
aldaar 3 juni 1745, zoon van Pieter Jansen en Maria de Vries.
Hij trouwde te Leiden op 14 mei 1712 met Anna van Dijk.

II.2 Willem Jansen, geboren te Leiden 1690, broer van de voorgaande.
`

// execute runs the CLI with the given arguments and captures stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Reset shared flag state between runs.
	root = rootFlags{}

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDocument(t *testing.T, pages ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "boek-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i, text := range pages {
		path := filepath.Join(dir, strconv.Itoa(i+1)+".txt")
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
}

func TestIngestQueryCheck(t *testing.T) {
	dataDir := t.TempDir()
	docDir := writeDocument(t, samplePage)

	out, err := execute(t, "ingest", docDir,
		"--data-dir", dataDir, "--offline", "--doc-id", "boek-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested boek-1")

	// The saved vector index must be reloadable by later commands.
	_, err = os.Stat(filepath.Join(dataDir, "vectors.hnsw"))
	require.NoError(t, err)

	out, err = execute(t, "query", "Maria de Vries",
		"--data-dir", dataDir, "--offline", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Query   string `json:"query"`
		Results []struct {
			DocumentID string `json:"document_id"`
			Page       int    `json:"page"`
			Stage      string `json:"stage"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Maria de Vries", resp.Query)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "boek-1", resp.Results[0].DocumentID)
	assert.Equal(t, 1, resp.Results[0].Page)
	assert.Equal(t, "direct", resp.Results[0].Stage)

	out, err = execute(t, "check", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Consistent")
}

func TestIngest_MissingDirectory(t *testing.T) {
	dataDir := t.TempDir()
	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "absent"),
		"--data-dir", dataDir, "--offline")
	assert.Error(t, err)
}

func TestQuery_EmptyIndex(t *testing.T) {
	dataDir := t.TempDir()
	out, err := execute(t, "query", "niemand",
		"--data-dir", dataDir, "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}
