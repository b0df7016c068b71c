// Package proxy resolves packages across a set of apt repositories,
// downloading through the persistent package cache.
package proxy

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/internal/fsutil"
	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/cache"
	"github.com/djcass44/aptfetch/pkg/deb"
	"github.com/djcass44/aptfetch/pkg/downloader"
	"github.com/djcass44/aptfetch/pkg/repo"
	"github.com/djcass44/aptfetch/pkg/version"
)

// Proxy fans package lookups out over its registered repositories and
// funnels downloads through a shared cache.
type Proxy struct {
	apts  []*repo.Apt
	cache *cache.Cache
}

func NewProxy(c *cache.Cache) *Proxy {
	return &Proxy{cache: c}
}

func (x *Proxy) Apts() []*repo.Apt {
	return x.apts
}

// AddApt registers a repository, skipping duplicates. Returns true if
// the repository was added.
func (x *Proxy) AddApt(a *repo.Apt) bool {
	for _, existing := range x.apts {
		if existing.Equal(a) {
			return false
		}
	}
	x.apts = append(x.apts, a)
	return true
}

// RemoveApt drops a repository. Returns true if it was registered.
func (x *Proxy) RemoveApt(a *repo.Apt) bool {
	for i, existing := range x.apts {
		if existing.Equal(a) {
			x.apts = append(x.apts[:i], x.apts[i+1:]...)
			return true
		}
	}
	return false
}

// FindPackage returns the best available package satisfying the
// dependency, searching every repository whose architecture matches.
// A cached copy of the winning version contributes its local file.
// Returns nil when no repository provides a satisfying package.
func (x *Proxy) FindPackage(ctx context.Context, vd version.VersionDepends) (*deb.Package, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkg", vd.String())

	var candidates []*deb.Package
	for _, a := range x.apts {
		if !a.Arch().Matches(vd.Arch) {
			continue
		}
		ps, err := a.FindPackage(ctx, vd.Name)
		if err != nil {
			log.Error(err, "failed to search repository", "repo", a.ID())
			continue
		}
		candidates = append(candidates, ps...)
	}

	if !vd.Version.Empty() {
		matching := candidates[:0]
		for _, p := range candidates {
			if deb.Filter(p, vd.Version, vd.VersionRelation) {
				matching = append(matching, p)
			}
		}
		candidates = matching
	}
	if len(candidates) == 0 {
		log.V(1).Info("no repository provides package")
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if best.Compare(c) < 0 {
			best = c
		}
	}

	// reuse the cached blob when we already hold this exact version
	cached, err := x.cache.Get(ctx, best.Arch, best.Name, best.Version, version.Exact)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.LocalFile != "" {
		best.LocalFile = cached.LocalFile
	}
	return best, nil
}

// DownloadPackage ensures the package's deb is on disk, serving from
// the cache when possible and registering fresh downloads with it.
// An empty relation means the exact version is required. When location
// is given the returned package's deb resides in it, cache hits
// included; an empty location downloads into a temporary directory.
func (x *Proxy) DownloadPackage(ctx context.Context, a arch.Arch, p *deb.Package, rel version.Relation, location string) (*deb.Package, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkg", p.String())
	if rel == "" {
		rel = version.Exact
	}

	cached, err := x.cache.Get(ctx, a, p.Name, p.Version, rel)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.LocalFile != "" {
		log.V(1).Info("serving package from cache", "file", cached.LocalFile)
		return x.downloadFromCache(cached, location)
	}

	if p.LocalFile != "" {
		if _, err := os.Stat(p.LocalFile); err == nil {
			return x.downloadFromCache(p, location)
		}
		p.LocalFile = ""
	}

	if p.FileURL == "" {
		// index entry was constructed elsewhere, resolve it against
		// our repositories to learn the download url
		found, err := x.FindPackage(ctx, version.VersionDepends{
			Name:            p.Name,
			Arch:            a,
			VersionRelation: rel,
			Version:         p.Version,
		})
		if err != nil {
			return nil, err
		}
		if found == nil {
			log.V(1).Info("package has no download url and no repository provides it")
			return nil, nil
		}
		p = found
		if p.LocalFile != "" {
			return x.downloadFromCache(p, location)
		}
	}

	ownLocation := location == ""
	if ownLocation {
		location, err = os.MkdirTemp("", "aptfetch-*")
		if err != nil {
			return nil, err
		}
	}

	if strings.HasPrefix(p.FileURL, "file://") {
		src := strings.TrimPrefix(p.FileURL, "file://")
		dst := filepath.Join(location, filepath.Base(src))
		if err := fsutil.CopyFile(src, dst); err != nil {
			log.Error(err, "failed to copy local package", "src", src)
			return nil, err
		}
		p.LocalFile = dst
	} else {
		d, err := downloader.NewDownloader(location)
		if err != nil {
			return nil, err
		}
		file, err := d.Download(ctx, p.FileURL)
		if err != nil {
			return nil, err
		}
		p.LocalFile = file
	}

	if ownLocation {
		// nothing else references the temp file, hand it to the cache
		if file := x.cache.Add(ctx, p, true); file != "" {
			p.LocalFile = file
		}
	} else {
		// the caller owns location, the cache gets its own copy
		local := p.LocalFile
		x.cache.Add(ctx, p, false)
		p.LocalFile = local
	}
	return p, nil
}

// downloadFromCache materialises an already present deb in the
// caller's directory. An empty location serves the package where it
// is.
func (x *Proxy) downloadFromCache(p *deb.Package, location string) (*deb.Package, error) {
	if location == "" || filepath.Dir(p.LocalFile) == location {
		return p, nil
	}
	dst := filepath.Join(location, filepath.Base(p.LocalFile))
	if err := fsutil.CopyFile(p.LocalFile, dst); err != nil {
		return nil, err
	}
	p.LocalFile = dst
	return p, nil
}

// DownloadVersion finds and downloads the best package satisfying the
// dependency. Returns nil when nothing satisfies it.
func (x *Proxy) DownloadVersion(ctx context.Context, vd version.VersionDepends, location string) (*deb.Package, error) {
	p, err := x.FindPackage(ctx, vd)
	if err != nil || p == nil {
		return nil, err
	}
	return x.DownloadPackage(ctx, vd.Arch, p, vd.VersionRelation, location)
}

// DownloadDebPackages downloads the requested packages and, when
// downloadDepends is set, the transitive closure of their
// dependencies. Only the first alternative of an OR-group is followed;
// later alternatives are never attempted, even when the first one is
// unresolvable. Debs are collected under the debs directory and, when
// extract is set, unpacked under the contents directory; empty
// directories are created as temporary ones. Unresolvable package
// names are returned in missing rather than failing the whole run.
func (x *Proxy) DownloadDebPackages(
	ctx context.Context,
	packages []version.VersionDepends,
	extract bool,
	downloadDepends bool,
	debs string,
	contents string,
) (debsDir string, contentsDir string, missing []string, err error) {
	log := logr.FromContextOrDiscard(ctx)

	if debs == "" {
		debs, err = os.MkdirTemp("", "aptfetch-debs-*")
		if err != nil {
			return "", "", nil, err
		}
	}
	if extract && contents == "" {
		contents, err = os.MkdirTemp("", "aptfetch-contents-*")
		if err != nil {
			return "", "", nil, err
		}
	}

	done := map[string]bool{}
	queue := append([]version.VersionDepends{}, packages...)
	for len(queue) > 0 {
		vd := queue[0]
		queue = queue[1:]
		if done[vd.Name] {
			continue
		}
		done[vd.Name] = true

		p, err := x.DownloadVersion(ctx, vd, "")
		if err != nil {
			// a failed fetch must not abort the rest of the closure
			log.Error(err, "failed to download package", "pkg", vd.String())
			missing = append(missing, vd.Name)
			continue
		}
		if p == nil || p.LocalFile == "" {
			log.Info("could not resolve package", "pkg", vd.String())
			missing = append(missing, vd.Name)
			continue
		}

		dst := filepath.Join(debs, filepath.Base(p.LocalFile))
		if dst != p.LocalFile {
			if err := fsutil.CopyFile(p.LocalFile, dst); err != nil {
				return "", "", nil, err
			}
		}

		if downloadDepends {
			for _, group := range p.GetDepends() {
				if len(group) == 0 {
					continue
				}
				// first alternative only
				alt := group[0]
				if !done[alt.Name] {
					queue = append(queue, alt)
				}
			}
		}

		if extract {
			if _, err := x.ExtractPackage(ctx, p, contents); err != nil {
				return "", "", nil, err
			}
		}
	}

	return debs, contents, missing, nil
}

// ExtractPackage unpacks the package's data archive into location,
// downloading the deb first when needed.
func (x *Proxy) ExtractPackage(ctx context.Context, p *deb.Package, location string) (string, error) {
	if p.LocalFile == "" {
		downloaded, err := x.DownloadPackage(ctx, p.Arch, p, version.Exact, "")
		if err != nil {
			return "", err
		}
		if downloaded == nil {
			return "", deb.ErrMissingLocalFile
		}
		p = downloaded
	}
	return p.Extract(ctx, location)
}

// ParseRepos builds repository facades for a list of descriptors,
// logging and skipping invalid entries.
func ParseRepos(ctx context.Context, configs []repo.Config, a arch.Arch) []*repo.Apt {
	log := logr.FromContextOrDiscard(ctx)
	apts := make([]*repo.Apt, 0, len(configs))
	for _, cfg := range configs {
		apt, err := repo.FromConfig(cfg, a)
		if err != nil {
			log.Error(err, "skipping invalid repository", "url", cfg.AptRepo)
			continue
		}
		apts = append(apts, apt)
	}
	return apts
}
