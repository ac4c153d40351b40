package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewcore/internal/core"
)

const fixturePath = "testdata/pale.yaml"

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BREWCORE_CONFIG", "BREWCORE_STORAGE_DRIVER", "BREWCORE_SQLITE_PATH", "BREWCORE_POSTGRES_DSN",
		"BREWCORE_BLOB_DRIVER", "BREWCORE_BLOB_FS_ROOT", "BREWCORE_METRICS_DRIVER",
	} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestGetPrintsDerivedValue(t *testing.T) {
	isolateEnv(t)
	out, errOut, code := runCLI(t, "get", "recipe", "pale-1", "OG", "--file", fixturePath)
	require.Equal(t, 0, code, errOut)
	og, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.061992750768261, og, 1e-9)

	out, errOut, code = runCLI(t, "get", "recipe", "pale-1", "sortedBoilEntries", "-f", fixturePath)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "dextrose\ncascade\n", out)

	_, errOut, code = runCLI(t, "get", "recipe", "sketch", "OG", "-f", fixturePath)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "undefined")
}

func TestSheetTableAndJSON(t *testing.T) {
	isolateEnv(t)
	out, errOut, code := runCLI(t, "sheet", "--file", fixturePath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Pale No. 1 (pale-1)")
	assert.Contains(t, out, "Sketch (sketch)")
	assert.Regexp(t, `strikeWaterVolume\s+18\.900`, out)
	assert.Regexp(t, `sortedBoilEntries\s+\[dextrose cascade\]`, out)

	out, errOut, code = runCLI(t, "sheet", "sketch", "-o", "json", "--file", fixturePath)
	require.Equal(t, 0, code, errOut)
	var sheet core.Sheet
	require.NoError(t, json.Unmarshal([]byte(out), &sheet))
	cold, ok := sheet.Field("preBoilVolumeCold")
	require.True(t, ok)
	require.NotNil(t, cold.Value)
	assert.InDelta(t, 19.2, *cold.Value, 1e-9)
	og, _ := sheet.Field("OG")
	assert.NotEmpty(t, og.Undefined)

	_, _, code = runCLI(t, "sheet", "-o", "xml", "--file", fixturePath)
	assert.Equal(t, 1, code)
}

func TestExportWritesToFilesystemBlobStore(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	t.Setenv("BREWCORE_BLOB_FS_ROOT", root)

	out, errOut, code := runCLI(t, "export", "pale-1", "--file", fixturePath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "pale-1\tfile://")

	raw, err := os.ReadFile(filepath.Join(root, "sheets", "pale-1.json"))
	require.NoError(t, err)
	var sheet core.Sheet
	require.NoError(t, json.Unmarshal(raw, &sheet))
	assert.Equal(t, "pale-1", sheet.RecipeID)
}

func TestLoadPersistsIntoSQLite(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "brew.db")
	t.Setenv("BREWCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("BREWCORE_SQLITE_PATH", db)

	out, errOut, code := runCLI(t, "load", fixturePath)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "pale-1\nsketch\n", out)

	out, errOut, code = runCLI(t, "get", "recipe", "pale-1", "boilOff")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "5\n", out)
}

func TestGraphListsFieldsInOrder(t *testing.T) {
	isolateEnv(t)
	out, errOut, code := runCLI(t, "graph", "--entity", "recipe")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "LEVEL"))
	cold := strings.Index(out, "recipe.preBoilVolumeCold")
	strike := strings.Index(out, "recipe.strikeWaterVolume")
	require.NotEqual(t, -1, cold)
	require.NotEqual(t, -1, strike)
	assert.Less(t, cold, strike)
	assert.NotContains(t, out, "mash_entry.")
}

func TestMetricsFlagReportsEngineActivity(t *testing.T) {
	isolateEnv(t)
	t.Setenv("BREWCORE_METRICS_DRIVER", "prometheus")
	_, errOut, code := runCLI(t, "get", "recipe", "pale-1", "preBoilVolumeCold", "--metrics", "-f", fixturePath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, errOut, "recomputations 1")
	assert.Contains(t, errOut, "brewcore_field_recomputations_total entity=recipe field=preBoilVolumeCold 1")
}

func TestFixtureErrors(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key":       "recipes:\n  - id: r\n    colour: amber\n",
		"unknown attribute": "recipes:\n  - id: r\n    attributes:\n      colour: 12\n",
		"dangling relation": "recipes:\n  - id: r\n    relations:\n      yeast: nope\n",
		"beer attributes":   "beers:\n  - id: b\n    attributes:\n      abv: 5\n",
		"negative amount":   "recipes:\n  - id: r\n    mash:\n      - attributes:\n          amount: -5\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, errOut, code := runCLI(t, "load", path)
		assert.Equal(t, 1, code, name)
		assert.NotEmpty(t, errOut, name)
	}
}

func TestDecodeFixtureKeepsFileOrder(t *testing.T) {
	f, err := os.Open(fixturePath)
	require.NoError(t, err)
	defer f.Close()
	fx, err := decodeFixture(f)
	require.NoError(t, err)
	require.Len(t, fx.Recipes, 2)
	assert.Equal(t, "pale-1", fx.Recipes[0].ID)
	assert.Len(t, fx.Recipes[0].Mash, 2)
	assert.Equal(t, "cascade", fx.Recipes[0].Boil[0].ID)
}

type closeCountingStore struct {
	core.PersistentStore
	closes int
}

func (s *closeCountingStore) Close() error {
	s.closes++
	return nil
}

func TestStoreClosedWhenCommandFails(t *testing.T) {
	isolateEnv(t)
	for name, args := range map[string][]string{
		"undefined value": {"get", "recipe", "sketch", "OG", "-f", fixturePath},
		"unknown recipe":  {"sheet", "missing", "-f", fixturePath},
		"succeeds":        {"get", "recipe", "pale-1", "boilOff", "-f", fixturePath},
	} {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			root, a := newRootCommand(&stdout, &stderr)
			var opened *closeCountingStore
			a.openStore = func(cfg core.StorageConfig, rules *core.RulesEngine) (core.PersistentStore, error) {
				store, err := core.OpenPersistentStore(cfg, rules)
				if err != nil {
					return nil, err
				}
				opened = &closeCountingStore{PersistentStore: store}
				return opened, nil
			}
			root.SetArgs(args)
			code := a.execute(root)
			assert.Equal(t, name == "succeeds", code == 0, stderr.String())
			require.NotNil(t, opened)
			assert.Equal(t, 1, opened.closes)
			require.NoError(t, a.teardown())
			assert.Equal(t, 1, opened.closes, "teardown is idempotent")
		})
	}
}
