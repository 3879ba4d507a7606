package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySyncWritesEventFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARESIGHT_DATA_PATH", dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"notify-sync", "--env-file", filepath.Join(dir, "missing.env"), "--source", "sheets", "--records", "12"})
	require.NoError(t, rootCmd.Execute())

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".event"))
	assert.Contains(t, entries[0].Name(), "sync_complete")
	assert.Contains(t, out.String(), "sync_complete event written")
}

func TestRetrieveAgainstEmptyStore(t *testing.T) {
	retrieveCategory = ""
	dir := t.TempDir()
	t.Setenv("CARESIGHT_DATA_PATH", dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"retrieve", "--env-file", filepath.Join(dir, "missing.env"), "--log-level", "error", "血圧は？"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"records": []`)
	assert.FileExists(t, filepath.Join(dir, "caresight.db"))
}

func TestRetrieveRejectsUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARESIGHT_DATA_PATH", dir)

	rootCmd.SetArgs([]string{"retrieve", "--env-file", filepath.Join(dir, "missing.env"), "--category", "laundry", "x"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestPrintJSONKeepsJapanese(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, map[string]string{"category": "食事"}))
	assert.Contains(t, out.String(), "食事")
}
