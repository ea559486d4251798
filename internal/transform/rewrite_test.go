package transform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite(t *testing.T) {
	dir := t.TempDir()

	t.Run("AppliesLineFnPerLine", func(t *testing.T) {
		src := filepath.Join(dir, "in.go")
		dst := filepath.Join(dir, "out.go")
		require.NoError(t, os.WriteFile(src, []byte("one\ntwo\nthree\n"), 0644))

		require.NoError(t, Rewrite(src, dst, strings.ToUpper))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "ONE\nTWO\nTHREE\n", string(data))
	})

	t.Run("ReplaceAll", func(t *testing.T) {
		src := filepath.Join(dir, "pkg.go")
		dst := filepath.Join(dir, "pkg_out.go")
		require.NoError(t, os.WriteFile(src, []byte("package oldpkg\n// oldpkg, oldpkg\nuntouched\n"), 0644))

		require.NoError(t, Rewrite(src, dst, ReplaceAll("oldpkg", "newpkg")))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "package newpkg\n// newpkg, newpkg\nuntouched\n", string(data))
	})

	t.Run("EmptyFromIsIdentity", func(t *testing.T) {
		fn := ReplaceAll("", "whatever")
		assert.Equal(t, "line", fn("line"))
	})

	t.Run("MissingSource", func(t *testing.T) {
		err := Rewrite(filepath.Join(dir, "nope"), filepath.Join(dir, "out"), strings.ToUpper)
		assert.Error(t, err)
	})

	t.Run("TruncatesExistingTarget", func(t *testing.T) {
		src := filepath.Join(dir, "short.go")
		dst := filepath.Join(dir, "existing.go")
		require.NoError(t, os.WriteFile(src, []byte("x\n"), 0644))
		require.NoError(t, os.WriteFile(dst, []byte("much longer previous content\n"), 0644))

		require.NoError(t, Rewrite(src, dst, ReplaceAll("", "")))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "x\n", string(data))
	})
}
