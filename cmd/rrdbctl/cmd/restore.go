package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/xmldump"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Rebuild a database from an XML dump read on stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("restore: %s already exists", path)
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}

		db, err := xmldump.Import(path, data)
		if err != nil {
			return err
		}
		return db.Close()
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
