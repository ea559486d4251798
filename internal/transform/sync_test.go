package transform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"protogen/internal/fingerprint"
	"protogen/internal/manifest"
)

type fixture struct {
	syncer    *Syncer
	store     *manifest.Store
	sourceDir string
	targetDir string

	// transformed records the target paths the transform ran against.
	transformed []string
}

func setupSyncer(t *testing.T) *fixture {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := manifest.NewStore(db, zap.NewNop())
	require.NoError(t, err)
	hasher, err := fingerprint.NewHasher(64)
	require.NoError(t, err)

	return &fixture{
		syncer:    NewSyncer(hasher, store, zap.NewNop()),
		store:     store,
		sourceDir: t.TempDir(),
		targetDir: t.TempDir(),
	}
}

// sync runs one pass with a ReplaceAll("oldpkg", "newpkg") transform for
// everything except ".txt" files.
func (f *fixture) sync(t *testing.T) Result {
	t.Helper()
	isTransformable := func(rel string) bool {
		return !strings.HasSuffix(rel, ".txt")
	}
	transform := func(src, dst string) error {
		f.transformed = append(f.transformed, dst)
		return Rewrite(src, dst, ReplaceAll("oldpkg", "newpkg"))
	}

	result, err := f.syncer.Sync(f.sourceDir, f.targetDir, isTransformable, transform)
	require.NoError(t, err)
	return result
}

func (f *fixture) writeSource(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.sourceDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (f *fixture) readTarget(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.targetDir, rel))
	require.NoError(t, err)
	return string(data)
}

func TestSyncNoopIdempotence(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "svc.pb.go", "package oldpkg\n")
	f.writeSource(t, "nested/deep.pb.go", "import oldpkg\n")

	first := f.sync(t)
	assert.Equal(t, 2, first.Written)

	f.transformed = nil
	second := f.sync(t)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 0, second.Deleted)
	assert.Equal(t, 2, second.Unchanged)
	assert.Empty(t, f.transformed)
}

func TestSyncFingerprintSensitivity(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "a.pb.go", "package oldpkg // a\n")
	f.writeSource(t, "b.pb.go", "package oldpkg // b\n")
	f.sync(t)

	untouched, err := os.Stat(filepath.Join(f.targetDir, "b.pb.go"))
	require.NoError(t, err)

	f.writeSource(t, "a.pb.go", "package oldpkg // a, edited\n")
	f.transformed = nil
	result := f.sync(t)

	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, "package newpkg // a, edited\n", f.readTarget(t, "a.pb.go"))

	// The other output was not rewritten.
	require.Len(t, f.transformed, 1)
	assert.Equal(t, filepath.Dir(f.transformed[0]), f.targetDir)
	after, err := os.Stat(filepath.Join(f.targetDir, "b.pb.go"))
	require.NoError(t, err)
	assert.True(t, untouched.ModTime().Equal(after.ModTime()))
}

func TestSyncRemovalPropagation(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "keep.pb.go", "package oldpkg\n")
	f.writeSource(t, "gone/drop.pb.go", "package oldpkg\n")
	f.sync(t)

	require.NoError(t, os.RemoveAll(filepath.Join(f.sourceDir, "gone")))
	result := f.sync(t)

	assert.Equal(t, 1, result.Deleted)
	_, err := os.Stat(filepath.Join(f.targetDir, "gone", "drop.pb.go"))
	assert.True(t, os.IsNotExist(err))

	// The empty parent directory is pruned too.
	_, err = os.Stat(filepath.Join(f.targetDir, "gone"))
	assert.True(t, os.IsNotExist(err))

	// And the manifest entry is gone.
	scope := manifest.Scope(f.sourceDir, f.targetDir)
	m, err := f.store.Load(scope)
	require.NoError(t, err)
	assert.NotContains(t, m, "gone/drop.pb.go")
	assert.Contains(t, m, "keep.pb.go")
}

func TestSyncTransformSelectivity(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "code.pb.go", "use oldpkg here\nand oldpkg there\n")
	f.writeSource(t, "notes.txt", "oldpkg stays verbatim")
	f.sync(t)

	assert.Equal(t, "use newpkg here\nand newpkg there\n", f.readTarget(t, "code.pb.go"))
	assert.Equal(t, "oldpkg stays verbatim", f.readTarget(t, "notes.txt"))
}

func TestSyncLeavesNoTempFiles(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "a.pb.go", "package oldpkg\n")
	f.writeSource(t, "b.txt", "copy me")
	f.sync(t)

	entries, err := os.ReadDir(f.targetDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".tmp-"), "leftover temp file %s", entry.Name())
	}
}

func TestSyncOutputMode(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "code.pb.go", "package oldpkg\n")
	f.writeSource(t, "notes.txt", "copy me")
	f.sync(t)

	for _, rel := range []string{"code.pb.go", "notes.txt"} {
		info, err := os.Stat(filepath.Join(f.targetDir, rel))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm(), rel)
	}
}

func TestSyncMissingSourceRemovesAll(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "a.pb.go", "package oldpkg\n")
	f.sync(t)

	require.NoError(t, os.RemoveAll(f.sourceDir))
	result := f.sync(t)

	assert.Equal(t, 1, result.Deleted)
	_, err := os.Stat(filepath.Join(f.targetDir, "a.pb.go"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncToleratesAlreadyDeletedOutput(t *testing.T) {
	f := setupSyncer(t)
	f.writeSource(t, "a.pb.go", "package oldpkg\n")
	f.sync(t)

	// Output vanishes out of band, then the source is removed: deletion
	// of the missing output must be tolerated.
	require.NoError(t, os.Remove(filepath.Join(f.targetDir, "a.pb.go")))
	require.NoError(t, os.Remove(filepath.Join(f.sourceDir, "a.pb.go")))

	result := f.sync(t)
	assert.Equal(t, 0, result.Deleted)
}
