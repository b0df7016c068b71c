// Package fetch implements a disk cache for repository metadata
// fetches, keyed by URL and expiring by age.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/pkg/downloader"
)

const (
	// DefaultMaxAge is how long a cached file stays valid.
	DefaultMaxAge = 24 * time.Hour
	// requestTimeout bounds every network fetch.
	requestTimeout = 10 * time.Second
)

// Cache downloads URLs and keeps the raw bytes in a cache directory.
// Cache files are named after the URL hash and path with a trailing
// UNIX timestamp; the newest one wins. file:// URLs bypass the cache and
// read the local path directly.
type Cache struct {
	dir    string
	maxAge time.Duration
	client *http.Client
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:    dir,
		maxAge: DefaultMaxAge,
		client: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Get downloads the given URL or serves it from the cache. A network
// or HTTP failure returns an error; callers treat that as an expected
// miss, not a fault.
func (c *Cache) Get(ctx context.Context, rawURL string) ([]byte, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return os.ReadFile(u.Path)
	}

	if data := c.getCached(log, rawURL); data != nil {
		return data, nil
	}
	return c.download(ctx, rawURL)
}

// GetString is Get with the response decoded as text.
func (c *Cache) GetString(ctx context.Context, rawURL string) (string, error) {
	data, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cachePath derives the cache file prefix for a URL. The full URL is
// hashed into the prefix so URLs that sanitize to the same name (same
// host and path, different scheme or query) never share a cache file.
func (c *Cache) cachePath(rawURL string) string {
	u, _ := url.Parse(rawURL)
	name := strings.ReplaceAll(u.Host+u.Path, "/", "_")
	return filepath.Join(c.dir, downloader.HashString(rawURL)+"_"+name)
}

// getCached returns the newest live cache file for a URL, deleting it
// and reporting a miss when it has outlived maxAge.
func (c *Cache) getCached(log logr.Logger, rawURL string) []byte {
	matches, err := filepath.Glob(c.cachePath(rawURL) + "_*")
	if err != nil || len(matches) == 0 {
		log.V(2).Info("no cache file found")
		return nil
	}
	sort.Strings(matches)
	newest := matches[len(matches)-1]

	tsRaw := newest[strings.LastIndex(newest, "_")+1:]
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil
	}
	if time.Since(time.Unix(ts, 0)) > c.maxAge {
		log.V(2).Info("removing outdated cache file", "file", newest)
		if err := os.Remove(newest); err != nil {
			log.V(1).Info("failed to remove outdated cache file", "file", newest, "err", err)
		}
		return nil
	}

	data, err := os.ReadFile(newest)
	if err != nil {
		log.V(1).Info("failed to read cache file", "file", newest, "err", err)
		return nil
	}
	log.V(2).Info("cache hit", "file", newest)
	return data
}

// download streams the URL into a fresh cache file while assembling
// the response bytes.
func (c *Cache) download(ctx context.Context, rawURL string) ([]byte, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.V(1).Info("download failed", "err", err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.V(1).Info("download failed", "code", resp.StatusCode)
		return nil, fmt.Errorf("http response failed with code: %d", resp.StatusCode)
	}

	target := fmt.Sprintf("%s_%d", c.cachePath(rawURL), time.Now().Unix())
	f, err := os.Create(target)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(f, &buf), resp.Body); err != nil {
		return nil, err
	}
	log.V(2).Info("downloaded file", "file", target, "size", buf.Len())
	return buf.Bytes(), nil
}
