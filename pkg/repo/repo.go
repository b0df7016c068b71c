// Package repo models APT repositories and loads their package
// indices.
//
// Two repository shapes exist: the normal distribution layout
// (dists/<dist>/<component>/binary-<arch>) and the flat layout where
// index files sit directly under a configured directory.
//
// https://wiki.debian.org/DebianRepository/Format
package repo

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/ulikunitz/xz"

	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/control"
	"github.com/djcass44/aptfetch/pkg/deb"
	"github.com/djcass44/aptfetch/pkg/fetch"
)

// packagesFiles are the accepted package-index filenames, in
// preference order.
var packagesFiles = []string{"Packages.xz", "Packages.gz"}

// Repo is one APT repository of either shape.
type Repo interface {
	// URL is the repository root.
	URL() string
	// Arch is the architecture this repository was registered for.
	Arch() arch.Arch
	// ID is a stable identity string, derived from the url and the
	// shape-specific fields, usable as a cache key.
	ID() string
	// SourcesEntry renders the repository as an apt sources.list line.
	SourcesEntry() string
	// Packages is the loaded package index, keyed by package name.
	Packages() map[string][]*deb.Package
	// Loaded reports whether the index has been parsed already.
	Loaded() bool
	// LoadIndex fetches the release metadata and parses the package
	// indices through the given fetch cache.
	LoadIndex(ctx context.Context, cache *fetch.Cache) error
	// Equal reports structural equality (url, arch, shape fields).
	Equal(other Repo) bool

	metaPath() string
	parseRelease(ctx context.Context, cache *fetch.Cache, info *control.ReleaseInfo)
}

// repoBase carries what both repository shapes share.
type repoBase struct {
	url      string
	arch     arch.Arch
	packages map[string][]*deb.Package
}

func newRepoBase(url string, a arch.Arch) repoBase {
	return repoBase{
		url:      strings.TrimSuffix(url, "/"),
		arch:     a,
		packages: map[string][]*deb.Package{},
	}
}

func (r *repoBase) URL() string {
	return r.url
}

func (r *repoBase) Arch() arch.Arch {
	return r.arch
}

func (r *repoBase) Packages() map[string][]*deb.Package {
	return r.packages
}

func (r *repoBase) Loaded() bool {
	return len(r.packages) > 0
}

// loadIndex fetches and parses the InRelease file, then delegates the
// index selection to the shape-specific parseRelease.
func loadIndex(ctx context.Context, cache *fetch.Cache, r Repo) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("repo", r.ID())

	release, err := cache.GetString(ctx, fmt.Sprintf("%s/%s/InRelease", r.URL(), r.metaPath()))
	if err != nil {
		log.V(1).Info("failed to fetch InRelease", "err", err)
		return err
	}
	r.parseRelease(ctx, cache, control.ParseRelease(release))
	log.V(1).Info("loaded package index", "count", len(r.Packages()))
	return nil
}

// parsePackages fetches and parses a single Packages file, stamping
// each package with the repository identity and an absolute download
// URL.
func parsePackages(ctx context.Context, cache *fetch.Cache, r Repo, base *repoBase, path string) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repo", r.ID(), "path", path)

	data, err := cache.Get(ctx, fmt.Sprintf("%s/%s/%s", base.url, r.metaPath(), path))
	if err != nil {
		log.V(1).Info("unable to fetch package index", "err", err)
		return
	}
	content, err := decompressIndex(path, data)
	if err != nil {
		log.V(1).Info("unable to decompress package index", "err", err)
		return
	}

	for _, p := range deb.ParsePackages(ctx, content) {
		p.Repo = r.ID()
		if p.FileURL != "" {
			p.FileURL = base.url + "/" + strings.TrimPrefix(p.FileURL, "/")
		}
		base.packages[p.Name] = append(base.packages[p.Name], p)
	}
}

// decompressIndex expands Packages.xz or Packages.gz content by
// extension.
func decompressIndex(path string, data []byte) (string, error) {
	var reader io.Reader
	var err error
	switch {
	case strings.HasSuffix(path, ".xz"):
		reader, err = xz.NewReader(bytes.NewReader(data))
	case strings.HasSuffix(path, ".gz"):
		reader, err = gzip.NewReader(bytes.NewReader(data))
	default:
		return "", fmt.Errorf("unknown compression of index %s", path)
	}
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DebRepo is a normal distribution-shaped APT repository.
type DebRepo struct {
	repoBase
	dist       string
	components []string
}

func NewDebRepo(url, dist string, components []string, a arch.Arch) *DebRepo {
	if len(components) == 0 {
		components = []string{"main"}
	}
	// set semantics, deterministic order
	seen := map[string]bool{}
	var unique []string
	for _, c := range components {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}
	sort.Strings(unique)
	return &DebRepo{
		repoBase:   newRepoBase(url, a),
		dist:       dist,
		components: unique,
	}
}

func (r *DebRepo) Dist() string {
	return r.dist
}

func (r *DebRepo) Components() []string {
	return r.components
}

func (r *DebRepo) ID() string {
	return fmt.Sprintf("%s_%s_%s", r.url, r.dist, strings.Join(r.components, "_"))
}

func (r *DebRepo) SourcesEntry() string {
	return fmt.Sprintf("deb %s %s %s", r.url, r.dist, strings.Join(r.components, " "))
}

func (r *DebRepo) metaPath() string {
	return "dists/" + r.dist
}

func (r *DebRepo) Equal(other Repo) bool {
	o, ok := other.(*DebRepo)
	if !ok {
		return false
	}
	if r.url != o.url || r.arch != o.arch || r.dist != o.dist {
		return false
	}
	if len(r.components) != len(o.components) {
		return false
	}
	for i := range r.components {
		if r.components[i] != o.components[i] {
			return false
		}
	}
	return true
}

func (r *DebRepo) LoadIndex(ctx context.Context, cache *fetch.Cache) error {
	return loadIndex(ctx, cache, r)
}

// findPackagesFile locates the architecture- and component-scoped
// package index inside the release checksum tables.
func (r *DebRepo) findPackagesFile(info *control.ReleaseInfo, component string) string {
	var accepted []string
	for _, p := range packagesFiles {
		accepted = append(accepted, fmt.Sprintf("%s/binary-%s/%s", component, r.arch, p))
	}
	for _, files := range info.Hashes() {
		for _, file := range files {
			for _, name := range accepted {
				if file.Filename == name {
					return file.Filename
				}
			}
		}
	}
	return ""
}

func (r *DebRepo) parseRelease(ctx context.Context, cache *fetch.Cache, info *control.ReleaseInfo) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repo", r.ID())
	for _, component := range r.components {
		path := r.findPackagesFile(info, component)
		if path == "" {
			log.V(1).Info("no package index for component", "component", component)
			continue
		}
		parsePackages(ctx, cache, r, &r.repoBase, path)
	}
}

// FlatRepo is a flat APT repository without a distribution folder.
//
// https://wiki.debian.org/DebianRepository/Format#Flat_Repository_Format
type FlatRepo struct {
	repoBase
	directory string
}

func NewFlatRepo(url, directory string, a arch.Arch) *FlatRepo {
	return &FlatRepo{
		repoBase:  newRepoBase(url, a),
		directory: directory,
	}
}

func (r *FlatRepo) Directory() string {
	return r.directory
}

func (r *FlatRepo) ID() string {
	return fmt.Sprintf("%s_%s", r.url, r.directory)
}

func (r *FlatRepo) SourcesEntry() string {
	return fmt.Sprintf("deb %s %s/", r.url, r.directory)
}

func (r *FlatRepo) metaPath() string {
	return r.directory
}

func (r *FlatRepo) Equal(other Repo) bool {
	o, ok := other.(*FlatRepo)
	if !ok {
		return false
	}
	return r.url == o.url && r.arch == o.arch && r.directory == o.directory
}

func (r *FlatRepo) LoadIndex(ctx context.Context, cache *fetch.Cache) error {
	return loadIndex(ctx, cache, r)
}

// parseRelease parses every checksum-table entry matching an accepted
// index filename; flat repositories are not architecture scoped.
func (r *FlatRepo) parseRelease(ctx context.Context, cache *fetch.Cache, info *control.ReleaseInfo) {
	// every hash algorithm lists the same files, parse each once
	parsed := map[string]bool{}
	for _, files := range info.Hashes() {
		for _, file := range files {
			for _, name := range packagesFiles {
				if file.Filename == name && !parsed[name] {
					parsed[name] = true
					parsePackages(ctx, cache, r, &r.repoBase, file.Filename)
				}
			}
		}
	}
}
