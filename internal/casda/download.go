package casda

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
)

// SplitChecksums separates data file urls from their .checksum companions, keeping order.
func SplitChecksums(urls []string) (files, checksums []string) {
	for _, u := range urls {
		if constants.IsChecksumURL(u) {
			checksums = append(checksums, u)
		} else {
			files = append(files, u)
		}
	}
	return files, checksums
}

// DownloadFiles saves every url into dir and returns the local paths in input order.
// A failed download aborts the batch; files already written are kept.
func (c *Client) DownloadFiles(ctx context.Context, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	paths := make([]string, 0, len(urls))
	for _, u := range urls {
		name, err := fileName(u)
		if err != nil {
			return paths, err
		}
		dst := filepath.Join(dir, name)
		n, err := c.downloadOne(ctx, u, dst)
		if err != nil {
			return paths, err
		}
		c.logger.Info("casda.download.ok", "url", u, "path", dst, "bytes", n)
		paths = append(paths, dst)
	}
	return paths, nil
}

func (c *Client) downloadOne(ctx context.Context, u, dst string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := c.transport.Download(ctx, transport.Request{URL: u}, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("download %s: %w", u, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return n, fmt.Errorf("move %s into place: %w", dst, err)
	}
	return n, nil
}

func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("url %q has no file name", raw)
	}
	return name, nil
}
