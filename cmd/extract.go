package cmd

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/djcass44/aptfetch/pkg/deb"
)

var extractCmd = &cobra.Command{
	Use:   "extract file.deb",
	Short: "unpack a local deb package",
	Args:  cobra.ExactArgs(1),
	RunE:  extract,
}

const flagDir = "dir"

func init() {
	extractCmd.Flags().StringP(flagDir, "d", "", "directory to unpack into")
	_ = extractCmd.MarkFlagDirname(flagDir)
}

func extract(cmd *cobra.Command, args []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())
	dir, _ := cmd.Flags().GetString(flagDir)

	p, err := deb.NewDebFile(args[0]).ToPackage(cmd.Context())
	if err != nil {
		return err
	}
	location, err := p.Extract(cmd.Context(), dir)
	if err != nil {
		return err
	}
	log.Info("unpacked package", "pkg", p.String(), "dir", location)
	return nil
}
