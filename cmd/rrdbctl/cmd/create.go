package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/rrd"
)

var (
	createStep  int32
	createStart int64
	createDS    []string
	createRRA   []string
)

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new round-robin database",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]

		def := rrd.Definition{Path: path, Step: createStep, StartTime: createStart}
		if def.StartTime == 0 {
			def.StartTime = time.Now().Unix()
		}

		for _, s := range createDS {
			ds, err := rrd.ParseDSDef(s)
			if err != nil {
				return err
			}
			def.DSs = append(def.DSs, ds)
		}
		for _, s := range createRRA {
			arc, err := rrd.ParseArchiveDef(s)
			if err != nil {
				return err
			}
			def.Archives = append(def.Archives, arc)
		}

		db, err := rrd.Create(def)
		if err != nil {
			return err
		}
		return db.Close()
	},
}

func init() {
	createCmd.Flags().Int32Var(&createStep, "step", 300, "primary data point interval, in seconds")
	createCmd.Flags().Int64Var(&createStart, "start", 0, "start time, epoch seconds (default: now)")
	createCmd.Flags().StringArrayVar(&createDS, "ds", nil, `data source, "DS:name:type:heartbeat:min:max" (repeatable)`)
	createCmd.Flags().StringArrayVar(&createRRA, "rra", nil, `archive, "RRA:cf:xff:steps:rows" (repeatable)`)
	rootCmd.AddCommand(createCmd)
}
