package cmd

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/djcass44/aptfetch/internal/envutil"
	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/cache"
	"github.com/djcass44/aptfetch/pkg/proxy"
	"github.com/djcass44/aptfetch/pkg/repo"
	"github.com/djcass44/aptfetch/pkg/version"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "download packages and their dependencies",
	RunE:  download,
}

const (
	flagConfig    = "config"
	flagOutput    = "output"
	flagContents  = "contents"
	flagExtract   = "extract"
	flagNoDepends = "no-depends"
	flagCacheDir  = "cache-dir"
)

// downloadConfig describes a download run: which repositories to
// search and which packages to resolve.
type downloadConfig struct {
	Arch     string        `json:"arch"`
	Repos    []repo.Config `json:"repos"`
	Packages []string      `json:"packages"`
}

func init() {
	downloadCmd.Flags().StringP(flagConfig, "c", "", "path to a download configuration file")
	downloadCmd.Flags().StringP(flagOutput, "o", "", "directory to collect debs in")
	downloadCmd.Flags().String(flagContents, "", "directory to unpack package contents into")
	downloadCmd.Flags().Bool(flagExtract, false, "unpack downloaded packages")
	downloadCmd.Flags().Bool(flagNoDepends, false, "skip downloading dependencies")
	downloadCmd.Flags().String(flagCacheDir, "", "package cache directory")

	_ = downloadCmd.MarkFlagRequired(flagConfig)
	_ = downloadCmd.MarkFlagFilename(flagConfig, ".yaml", ".yml")
	_ = downloadCmd.MarkFlagDirname(flagOutput)
	_ = downloadCmd.MarkFlagDirname(flagContents)
	_ = downloadCmd.MarkFlagDirname(flagCacheDir)
}

func download(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	configPath, _ := cmd.Flags().GetString(flagConfig)
	output, _ := cmd.Flags().GetString(flagOutput)
	contents, _ := cmd.Flags().GetString(flagContents)
	extract, _ := cmd.Flags().GetBool(flagExtract)
	noDepends, _ := cmd.Flags().GetBool(flagNoDepends)
	cacheDir, _ := cmd.Flags().GetString(flagCacheDir)

	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}
	a := arch.FromString(cfg.Arch)

	var requested []version.VersionDepends
	for _, s := range cfg.Packages {
		vds := version.ParseDepends(cmd.Context(), s, a, version.Depends)
		if len(vds) == 0 {
			return fmt.Errorf("invalid package: %q", s)
		}
		requested = append(requested, vds[0])
	}

	c, err := cache.New(cmd.Context(), cacheDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	p := proxy.NewProxy(c)
	for _, apt := range proxy.ParseRepos(cmd.Context(), cfg.Repos, a) {
		p.AddApt(apt)
	}

	debs, contents, missing, err := p.DownloadDebPackages(cmd.Context(), requested, extract, !noDepends, output, contents)
	if err != nil {
		return err
	}
	log.Info("downloaded packages", "debs", debs, "contents", contents)
	if len(missing) > 0 {
		return fmt.Errorf("unresolved packages: %v", missing)
	}
	return nil
}

func readConfig(s string) (downloadConfig, error) {
	f, err := os.Open(s)
	if err != nil {
		return downloadConfig{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	var config downloadConfig
	if err := yaml.NewYAMLOrJSONDecoder(f, 4).Decode(&config); err != nil {
		return downloadConfig{}, err
	}
	for i := range config.Repos {
		config.Repos[i].AptRepo = envutil.ExpandEnv(config.Repos[i].AptRepo)
		config.Repos[i].Key = envutil.ExpandEnv(config.Repos[i].Key)
		config.Repos[i].GPG = envutil.ExpandEnv(config.Repos[i].GPG)
	}
	return config, nil
}
