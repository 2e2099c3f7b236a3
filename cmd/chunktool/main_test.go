package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/datachunk/internal/config"
	"github.com/Faultbox/datachunk/pkg/chunk"
	"github.com/Faultbox/datachunk/pkg/scripts"
)

func mapFile(t *testing.T, team string) []byte {
	t.Helper()
	keys := chunk.NewNameKeyTable()
	w := chunk.NewBinaryWriter(chunk.WithNameKeys(keys))

	require.NoError(t, w.OpenChunk(scripts.LabelScriptTeams, 1))
	d := chunk.NewDict()
	d.SetAsciiString(keys.NameToKey("teamName"), team)
	d.SetInt(keys.NameToKey("teamMaxInstances"), 3)
	require.NoError(t, w.WriteDict(d))
	require.NoError(t, w.CloseChunk())

	require.NoError(t, w.OpenChunk("WorldInfo", 1))
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3}))
	require.NoError(t, w.CloseChunk())

	data, err := w.Bytes()
	require.NoError(t, err)
	return data
}

func newTestFS(t *testing.T) billy.Filesystem {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/maps/alpine.scb", mapFile(t, "teamCiv"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/maps/desert/oasis.scb", mapFile(t, "teamOasis"), 0o644))
	return fs
}

func run(t *testing.T, fs billy.Filesystem, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(fs)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "info", "--toc", "/maps/alpine.scb")
	require.NoError(t, err)
	assert.Contains(t, out, "Format:  binary")
	assert.Contains(t, out, "ScriptTeams")
	assert.Contains(t, out, "WorldInfo")
	assert.Contains(t, out, "teamName")
	assert.Contains(t, out, "Total:   2 top-level chunks")
}

func TestToJSONAndBack(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "to-json", "/maps/alpine.scb")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 chunks, 1 raw)")

	doc, err := util.ReadFile(fs, "/maps/alpine.json")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"teamCiv"`)

	_, err = run(t, fs, "to-binary", "/maps/alpine.json", "/back/alpine.scb")
	require.NoError(t, err)

	original, err := util.ReadFile(fs, "/maps/alpine.scb")
	require.NoError(t, err)
	back, err := util.ReadFile(fs, "/back/alpine.scb")
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestToJSON_CompactIndent(t *testing.T) {
	fs := newTestFS(t)

	_, err := run(t, fs, "to-json", "--indent", "0", "/maps/alpine.scb", "/out/alpine.json")
	require.NoError(t, err)

	doc, err := util.ReadFile(fs, "/out/alpine.json")
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "\n  ")
}

func TestToJSON_IndentFromConfig(t *testing.T) {
	fs := newTestFS(t)
	cfgPath := filepath.Join(t.TempDir(), "chunktool.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("convert:\n  indent: 0\n"), 0o644))

	_, err := run(t, fs, "--config", cfgPath, "to-json", "/maps/alpine.scb", "/out/compact.json")
	require.NoError(t, err)
	doc, err := util.ReadFile(fs, "/out/compact.json")
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "\n")

	_, err = run(t, fs, "--config", cfgPath, "to-json", "--indent", "4", "/maps/alpine.scb", "/out/wide.json")
	require.NoError(t, err)
	doc, err = util.ReadFile(fs, "/out/wide.json")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "\n    \"")

	_, err = run(t, fs, "to-json", "--indent", "-1", "/maps/alpine.scb", "/out/bad.json")
	assert.ErrorContains(t, err, "invalid indent")
}

func TestToBinary_RefusesOverwrite(t *testing.T) {
	fs := newTestFS(t)
	_, err := run(t, fs, "to-binary", "/maps/alpine.scb")
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "dump", "/maps/alpine.scb")
	require.NoError(t, err)
	assert.Contains(t, out, "ScriptTeams v1 {\n")
	assert.Contains(t, out, `teamName:`)
	assert.Contains(t, out, "WorldInfo v1 {\n  bytes [3] 010203\n}\n")
}

func TestDiff(t *testing.T) {
	fs := newTestFS(t)
	_, err := run(t, fs, "to-json", "/maps/alpine.scb")
	require.NoError(t, err)

	out, err := run(t, fs, "diff", "/maps/alpine.scb", "/maps/alpine.json")
	require.NoError(t, err)
	assert.Equal(t, "identical\n", out)

	out, err = run(t, fs, "diff", "/maps/alpine.scb", "/maps/desert/oasis.scb")
	assert.ErrorIs(t, err, errFilesDiffer)
	assert.Contains(t, out, "--- /maps/alpine.scb\n")
	assert.Contains(t, out, `"teamCiv"`)
	assert.Contains(t, out, `"teamOasis"`)
}

func TestQuery(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "query", "/maps/alpine.scb", "$.chunks[*].label")
	require.NoError(t, err)
	assert.Equal(t, "\"ScriptTeams\"\n\"WorldInfo\"\n", out)

	_, err = run(t, fs, "to-json", "/maps/alpine.scb")
	require.NoError(t, err)
	out, err = run(t, fs, "query", "/maps/alpine.json", "$.chunks[1].version")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, fs, "query", "/maps/alpine.scb", "$[[[")
	assert.Error(t, err)
}

func TestScripts(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "scripts", "/maps/alpine.scb")
	require.NoError(t, err)
	assert.Contains(t, out, "Teams:   1\n")
	assert.Contains(t, out, "Scripts: 0\n")
}

func TestBatchConvert(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, util.WriteFile(fs, "/maps/notes.txt", []byte("ignored"), 0o644))

	out, err := run(t, fs, "convert", "--workers", "2", "--to", "json", "/maps", "/json")
	require.NoError(t, err)
	assert.Equal(t, "converted 2 of 2 files (4 chunks, 2 raw)\n", out)

	for _, name := range []string{"/json/alpine.json", "/json/desert/oasis.json"} {
		doc, err := util.ReadFile(fs, name)
		require.NoError(t, err, name)
		assert.True(t, strings.HasPrefix(string(doc), "{"), name)
	}

	out, err = run(t, fs, "convert", "--to", "binary", "/json", "/bin")
	require.NoError(t, err)
	assert.Contains(t, out, "converted 2 of 2 files")

	original, err := util.ReadFile(fs, "/maps/desert/oasis.scb")
	require.NoError(t, err)
	back, err := util.ReadFile(fs, "/bin/desert/oasis.scb")
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestStrictRejectsUnknownChunks(t *testing.T) {
	fs := newTestFS(t)
	_, err := run(t, fs, "--strict", "to-json", "/maps/alpine.scb")
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	fs := newTestFS(t)

	out, err := run(t, fs, "--workers", "7", "--strict", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "workers: 7\n")
	assert.Contains(t, out, "strict: true\n")
	assert.Contains(t, out, "level: warn\n")
}

func TestConfigInit(t *testing.T) {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("config dir does not follow XDG_CONFIG_HOME")
	}
	fs := newTestFS(t)

	out, err := run(t, fs, "--workers", "3", "config", "init")
	require.NoError(t, err)
	path := config.DefaultPath()
	require.Equal(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "datachunk", "config.yaml"), path)
	assert.Equal(t, "wrote "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "workers: 3")

	_, err = run(t, fs, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	// The written file is picked up by later runs.
	out, err = run(t, fs, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "workers: 3\n")

	other := filepath.Join(t.TempDir(), "team.yaml")
	_, err = run(t, fs, "--debug", "config", "init", "--path", other)
	require.NoError(t, err)
	data, err = os.ReadFile(other)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level: debug")
}
