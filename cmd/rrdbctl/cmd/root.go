package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/paths"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rrdbctl",
	Short: "Create, update and query round-robin databases",
}

// Execute runs the rrdbctl command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to rrdbctl config file (default: platform default)")
	rootCmd.PersistentFlags().String("log-format", "text", "log output format: text or json")
	rootCmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		if format, _ := c.Flags().GetString("log-format"); format == "json" {
			logging.SetFormat(logging.FormatJSON)
		}
	}
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	p, err := paths.DefaultPaths()
	if err != nil {
		return "", err
	}
	return p.ConfigFile, nil
}
