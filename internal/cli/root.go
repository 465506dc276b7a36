// Package cli wires the scraper's components behind a cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	pretty   bool
)

// NewRootCommand builds the jobnet-scraper command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobnet-scraper",
		Short: "Scraper for paginated Azerbaijani job-listing APIs",
		Long: `jobnet-scraper walks a paginated JSON listing API, fetches every
item's detail payload through a rate-limited client, and writes the
extracted records to timestamped JSON/CSV files and optionally to
PostgreSQL. An interrupted run flushes everything collected so far
under a partial filename.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output")

	root.AddCommand(newScrapeCommand())
	root.AddCommand(newVersionCommand())

	return root
}

var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scraper version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("jobnet-scraper " + version)
		},
	}
}
