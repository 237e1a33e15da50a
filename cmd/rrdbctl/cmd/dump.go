package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/rrd"
	"github.com/wellsgz/rrdb/internal/xmldump"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Dump a database to an XML representation, on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]

		db, err := rrd.OpenReadOnly(path)
		if err != nil {
			return err
		}
		defer db.Close()

		data, err := xmldump.ToXml(db)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
