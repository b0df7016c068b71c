package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/djcass44/aptfetch/internal/fsutil"
	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/deb"
	"github.com/djcass44/aptfetch/pkg/fetch"
)

// ErrNoRepo is returned when a repository descriptor selects neither
// repository shape.
var ErrNoRepo = errors.New("repository config must contain a distro or a directory")

// ubuntuKeyring is used as a fallback for the public Ubuntu archive
// when no key is configured.
const ubuntuKeyring = "/etc/apt/trusted.gpg.d/ubuntu-keyring-2018-archive.gpg"

// Config is a repository descriptor as consumed from build
// configuration files. The presence of Distro selects the normal
// distribution shape, the presence of Directory the flat shape.
type Config struct {
	AptRepo    string   `json:"apt_repo"`
	Distro     string   `json:"distro,omitempty"`
	Components []string `json:"components,omitempty"`
	Directory  string   `json:"directory,omitempty"`
	Key        string   `json:"key,omitempty"`
	GPG        string   `json:"gpg,omitempty"`
}

// Apt wraps one repository plus its optional signing key.
type Apt struct {
	repo  Repo
	cache *fetch.Cache

	// KeyURL points at an armored public key (file or http url),
	// KeyGPG at a local dearmored keyring.
	KeyURL string
	KeyGPG string
}

// NewApt wraps a repository. stateDir overrides the shared metadata
// cache folder and is primarily useful in tests.
func NewApt(r Repo, keyURL, keyGPG, stateDir string) (*Apt, error) {
	if stateDir == "" {
		var err error
		stateDir, err = fsutil.CacheFolder("apt")
		if err != nil {
			return nil, err
		}
	}
	cache, err := fetch.NewCache(stateDir)
	if err != nil {
		return nil, err
	}

	a := &Apt{
		repo:   r,
		cache:  cache,
		KeyURL: keyURL,
		KeyGPG: keyGPG,
	}
	if a.KeyGPG == "" && strings.Contains(r.URL(), "ubuntu.com/ubuntu") {
		a.KeyGPG = ubuntuKeyring
	}
	return a, nil
}

// FromConfig builds the facade for a repository descriptor.
func FromConfig(cfg Config, a arch.Arch) (*Apt, error) {
	if cfg.AptRepo == "" {
		return nil, ErrNoRepo
	}
	var r Repo
	switch {
	case cfg.Distro != "":
		r = NewDebRepo(cfg.AptRepo, cfg.Distro, cfg.Components, a)
	case cfg.Directory != "":
		r = NewFlatRepo(cfg.AptRepo, cfg.Directory, a)
	default:
		return nil, ErrNoRepo
	}
	return NewApt(r, cfg.Key, cfg.GPG, "")
}

// ID is the stable identity of the wrapped repository.
func (a *Apt) ID() string {
	return a.repo.ID()
}

func (a *Apt) Arch() arch.Arch {
	return a.repo.Arch()
}

func (a *Apt) Repo() Repo {
	return a.repo
}

func (a *Apt) Equal(o *Apt) bool {
	if o == nil {
		return false
	}
	return a.repo.Equal(o.repo)
}

// SourcesEntry renders an apt sources.list line, marking the
// repository trusted when no keyring is known.
func (a *Apt) SourcesEntry() string {
	entry := a.repo.SourcesEntry()
	if a.KeyGPG != "" {
		return strings.Replace(entry, "deb ", fmt.Sprintf("deb [signed-by=%s] ", a.KeyGPG), 1)
	}
	return strings.Replace(entry, "deb ", "deb [trusted=yes] ", 1)
}

// LoadPackages downloads the repository metadata and parses the
// package indices. It is idempotent: a loaded index is not re-fetched.
func (a *Apt) LoadPackages(ctx context.Context) error {
	if a.repo.Loaded() {
		return nil
	}
	return a.repo.LoadIndex(ctx, a.cache)
}

// FindPackage returns all index entries for a package name, or nil if
// the repository does not provide it.
func (a *Apt) FindPackage(ctx context.Context, name string) ([]*deb.Package, error) {
	if err := a.LoadPackages(ctx); err != nil {
		return nil, err
	}
	return a.repo.Packages()[name], nil
}

// GetKey fetches the armored repository key, from a local file or over
// HTTP. Returns an empty string when no key is configured.
func (a *Apt) GetKey(ctx context.Context) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repo", a.ID())
	if a.KeyURL == "" {
		return "", nil
	}

	keyURL := strings.TrimPrefix(a.KeyURL, "file://")
	if _, err := os.Stat(keyURL); err == nil {
		log.V(1).Info("reading repository key", "path", keyURL)
		data, err := os.ReadFile(keyURL)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if strings.HasPrefix(keyURL, "http://") || strings.HasPrefix(keyURL, "https://") {
		log.V(1).Info("downloading repository key", "url", keyURL)
		data, err := a.cache.Get(ctx, keyURL)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown key url: %s", a.KeyURL)
}

// GetKeyFiles materialises the repository key as an armored .pub file
// and a dearmored .gpg keyring in outputDir. Either path may be empty
// when the corresponding form is unavailable.
func (a *Apt) GetKeyFiles(ctx context.Context, outputDir string) (pubFile string, gpgFile string, err error) {
	if a.KeyURL == "" {
		return "", a.KeyGPG, nil
	}
	contents, err := a.GetKey(ctx)
	if err != nil || contents == "" {
		return "", a.KeyGPG, err
	}

	if outputDir == "" {
		outputDir = os.TempDir()
	}
	pubFile = filepath.Join(outputDir, uuid.NewString()+".pub")
	if err := os.WriteFile(pubFile, []byte(contents), 0644); err != nil {
		return "", a.KeyGPG, err
	}

	if a.KeyGPG != "" {
		return pubFile, a.KeyGPG, nil
	}

	gpgFile = filepath.Join(outputDir, uuid.NewString()+".gpg")
	if err := dearmor(contents, gpgFile); err != nil {
		return pubFile, "", err
	}
	return pubFile, gpgFile, nil
}

// dearmor converts an armored key into its binary keyring form.
func dearmor(armored, target string) error {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, block.Body); err != nil {
		return err
	}
	return nil
}
