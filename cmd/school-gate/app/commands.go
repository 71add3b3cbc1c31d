// Package app provides the command line interface of the school gate.
package app

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

// LogLevel is the level of the process-wide slog handler. --debug lowers it.
var LogLevel = new(slog.LevelVar)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "school-gate",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Route authorization gate for the school website",
		Long: `school-gate sits in front of the school website and decides, for every
request, whether to let it through, send the visitor to sign in, or refuse it.

Admin pages and admin APIs require a signed-in user on the admin allow-list;
other non-public pages require any signed-in user.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if viper.GetBool("debug") {
				LogLevel.Set(slog.LevelDebug)
			}
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("config", "", "Path to configuration file (YAML format)")
	bindFlags(flags, "debug", "config")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bindFlags binds the named flags into the global viper instance.
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "school-gate %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
