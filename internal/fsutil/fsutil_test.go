package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestReadFileScoped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "financials.txt", "EBITDA 15%")
	writeFile(t, dir, filepath.Join("a", "b", "plan.md"), "growth")
	writeFile(t, dir, "empty.txt", "")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain", filepath.Join(dir, "financials.txt"), "EBITDA 15%"},
		{"nested", filepath.Join(dir, "a", "b", "plan.md"), "growth"},
		{"unnormalized", dir + string(filepath.Separator) + "." + string(filepath.Separator) + "financials.txt", "EBITDA 15%"},
		{"empty", filepath.Join(dir, "empty.txt"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadFileScoped(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestReadFileScoped_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	for _, p := range []string{
		"",
		".",
		string(filepath.Separator),
		filepath.Join(dir, "missing.txt"),
		filepath.Join(dir, "nodir", "file.txt"),
		filepath.Join(dir, "sub"),
	} {
		_, err := ReadFileScoped(p)
		assert.Error(t, err, "path %q", p)
	}
}

func TestReadFileLimited(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "report.txt", strings.Repeat("x", 64))

	data, err := ReadFileLimited(p, 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)

	_, err = ReadFileLimited(p, 63)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 63")

	data, err = ReadFileLimited(p, 0)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}
