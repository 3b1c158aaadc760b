package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplatform/sdk-go/evo"
)

func testEnvironment() evo.Environment {
	return evo.Environment{
		HubURL:      "https://hub.example.com",
		OrgID:       uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		WorkspaceID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
	}
}

func TestNew_CreatesRootAndGitignore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache-root")

	c, err := New(root, true)
	require.NoError(t, err)

	info, err := os.Stat(c.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	contents, err := os.ReadFile(filepath.Join(c.Root(), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*\n", string(contents))
}

func TestNew_RequiresExistingDirWithoutMkdir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := New(root, false)
	assert.Error(t, err)
}

func TestNew_RejectsNonDirectoryRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, false)
	assert.Error(t, err)
}

func TestCache_GetLocationIsStableAndIdempotent(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()

	first, err := c.GetLocation(env, "scope-a")
	require.NoError(t, err)

	second, err := c.GetLocation(env, "scope-a")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	info, err := os.Stat(first)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCache_GetLocationDiffersByScope(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()

	a, err := c.GetLocation(env, "scope-a")
	require.NoError(t, err)

	b, err := c.GetLocation(env, "scope-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCache_ClearCacheOneLocation(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()

	location, err := c.GetLocation(env, "scope-a")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(location, "data.bin"), []byte("x"), 0o644))

	other, err := c.GetLocation(env, "scope-b")
	require.NoError(t, err)

	scope := "scope-a"
	require.NoError(t, c.ClearCache(&env, &scope))

	_, err = os.Stat(location)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestCache_ClearCacheEverythingPreservesRoot(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()
	_, err = c.GetLocation(env, "scope-a")
	require.NoError(t, err)
	_, err = c.GetLocation(env, "scope-b")
	require.NoError(t, err)

	require.NoError(t, c.ClearCache(nil, nil))

	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)

	info, err := os.Stat(c.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCache_ClearCacheRequiresBothOrNeither(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()
	err = c.ClearCache(&env, nil)
	assert.Error(t, err)

	scope := "scope-a"
	err = c.ClearCache(nil, &scope)
	assert.Error(t, err)
}

func TestCache_TemporaryLocationCleansUp(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	dir, cleanup, err := c.TemporaryLocation()
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, cleanup())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCache_EnvironmentMetaRoundTrips(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	env := testEnvironment()
	require.NoError(t, c.SaveEnvironmentMeta(env))

	loaded, err := c.LoadEnvironmentMeta()
	require.NoError(t, err)
	assert.Equal(t, env, loaded)
}

func TestCache_LoadEnvironmentMetaMissingFileFails(t *testing.T) {
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)

	_, err = c.LoadEnvironmentMeta()
	assert.Error(t, err)
}
