// Command admin runs the operator tasks that do not belong in the request
// path: migrations, payment reminders, order stats and admin tokens.
package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const prefix = "OTBOX"

var build = "develop"

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "OT-Box storefront operator tasks",
		Version:       build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(log))
	rootCmd.AddCommand(remindCmd(log))
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseConfig fills cfg from OTBOX_* variables. Command line flags belong
// to cobra, so conf never sees them.
func parseConfig(cfg any) error {
	args := os.Args
	os.Args = args[:1]
	defer func() { os.Args = args }()

	if _, err := conf.Parse(prefix, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}
