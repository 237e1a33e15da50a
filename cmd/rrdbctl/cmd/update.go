package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/rrd"
)

var updateCmd = &cobra.Command{
	Use:   "update <path> <time>:<value>[:<value>...]",
	Short: "Submit one sample to a database",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		path, raw := args[0], args[1]

		db, err := rrd.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.UpdateString(raw)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
