package checkorchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileIsStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("apache trusted releases"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("apache trusted releases!"), 0o644))

	h1, err := HashFile(a)
	require.NoError(t, err)
	h2, err := HashFile(a)
	require.NoError(t, err)
	h3, err := HashFile(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64) // 32-byte BLAKE3 digest, hex-encoded
}

func TestHashFileLargerThanChunkSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	data := make([]byte, chunkSize+1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h1, err := HashFile(path)
	require.NoError(t, err)
	h2, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestAbsolutePrimaryPath(t *testing.T) {
	args := FunctionArguments{RevisionDir: "/var/atr/unfinished/foo/1.0/00001", PrimaryRelPath: "foo-1.0-source.tar.gz"}
	assert.Equal(t, "/var/atr/unfinished/foo/1.0/00001/foo-1.0-source.tar.gz", args.AbsolutePrimaryPath())
}
