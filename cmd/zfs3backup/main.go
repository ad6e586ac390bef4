// Command zfs3backup manages ZFS snapshot backups to and restores from an
// S3-compatible object store. It wraps the catalog, lineage, pair manager
// and uploader packages behind three subcommands: status, backup, restore.
// The subcommand layout and --dry-run/--force flags are grounded on the
// argparse surface of the original Python tool; the cobra/viper wiring
// follows this module's own command-line conventions.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
