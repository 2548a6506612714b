package casda_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
)

func TestSplitChecksums(t *testing.T) {
	files, sums := casda.SplitChecksums([]string{
		"https://x/a.fits",
		"https://x/a.fits.checksum",
		"https://x/b.fits?token=1",
		"https://x/b.fits.CHECKSUM?token=1",
	})
	assert.Equal(t, []string{"https://x/a.fits", "https://x/b.fits?token=1"}, files)
	assert.Equal(t, []string{"https://x/a.fits.checksum", "https://x/b.fits.CHECKSUM?token=1"}, sums)
}

func TestDownloadFiles(t *testing.T) {
	a := newFakeArchive(t)
	c := newClient(a, true)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := c.DownloadFiles(context.Background(), []string{a.url("/files/a.fits"), a.url("/files/a.fits.checksum")}, dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.fits"), filepath.Join(dir, "a.fits.checksum")}, paths)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "content of a.fits", string(b))
	assert.Equal(t, 2, a.anonymous(), "downloads are sent without credentials")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no partial files left behind")
}

func TestDownloadFiles_StopsOnFailure(t *testing.T) {
	a := newFakeArchive(t)
	c := newClient(a, true)
	dir := t.TempDir()

	paths, err := c.DownloadFiles(context.Background(), []string{a.url("/files/a.fits"), a.url("/nowhere/b.fits")}, dir)
	require.Error(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.fits")}, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
