package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/processor"
	"github.com/wellsgz/rrdb/internal/rrd"
	"github.com/wellsgz/rrdb/internal/timespec"
)

var (
	fetchCF         string
	fetchStart      string
	fetchEnd        string
	fetchResolution int32
	fetchDefs       []string
	fetchCDefs      []string
	fetchOrder      string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <path>",
	Short: "Query a value range from a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]

		db, err := rrd.OpenReadOnly(path)
		if err != nil {
			return err
		}
		defer db.Close()

		cf, ok := rrd.ParseCFunc(fetchCF)
		if !ok {
			return fmt.Errorf("unknown consolidation function %q", fetchCF)
		}

		start, end, err := timespec.ResolvePair(fetchStart, fetchEnd, time.Now())
		if err != nil {
			return err
		}

		if len(fetchCDefs) > 0 {
			return runGraphFetch(path, cf, start.Unix(), end.Unix(), fetchResolution)
		}

		result, err := db.CreateFetchRequest(cf, start.Unix(), end.Unix(), fetchResolution).Fetch()
		if err != nil {
			return err
		}

		fmt.Printf("%-19s", "timestamp")
		for _, name := range result.DSNames {
			fmt.Printf(" %15s", name)
		}
		fmt.Println()

		ts := result.Start
		for _, row := range result.Rows {
			fmt.Printf("%-19d", ts)
			for _, v := range row {
				if math.IsNaN(v) {
					fmt.Printf(" %15s", "nan")
				} else {
					fmt.Printf(" %15.6f", v)
				}
			}
			fmt.Println()
			ts += int64(result.Step)
		}
		return nil
	},
}

// runGraphFetch evaluates the DEF/CDEF graph described by fetchDefs,
// fetchCDefs and fetchOrder over [start, end] and prints the resulting
// named series, one column per declared name.
func runGraphFetch(path string, cf rrd.CFunc, start, end int64, resolution int32) error {
	order := strings.Split(fetchOrder, ",")
	for i := range order {
		order[i] = strings.TrimSpace(order[i])
	}

	sources := make(map[string]processor.SourceSpec, len(fetchDefs))
	for _, raw := range fetchDefs {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return fmt.Errorf("bad --def %q: want \"name:dsname\" or \"name:dsname:cf\"", raw)
		}
		seriesCF := cf
		if len(parts) == 3 {
			parsed, ok := rrd.ParseCFunc(parts[2])
			if !ok {
				return fmt.Errorf("--def %q: unknown consolidation function %q", raw, parts[2])
			}
			seriesCF = parsed
		}
		sources[parts[0]] = processor.SourceSpec{Path: path, DSName: parts[1], CF: seriesCF}
	}

	cdefs := make(map[string]string, len(fetchCDefs))
	for _, raw := range fetchCDefs {
		nameAndExpr := strings.SplitN(raw, ":", 2)
		if len(nameAndExpr) != 2 {
			return fmt.Errorf("bad --cdef %q: want \"name:rpn-expr\"", raw)
		}
		cdefs[nameAndExpr[0]] = nameAndExpr[1]
	}

	opened := make(map[string]*rrd.Database)
	opener := func(p string) (*rrd.Database, error) {
		if db, ok := opened[p]; ok {
			return db, nil
		}
		db, err := rrd.OpenReadOnly(p)
		if err != nil {
			return nil, err
		}
		opened[p] = db
		return db, nil
	}
	defer func() {
		for _, db := range opened {
			db.Close()
		}
	}()

	result, err := processor.ComputeSeries(opener, sources, cdefs, order, start, end, resolution)
	if err != nil {
		return err
	}

	fmt.Printf("%-19s", "timestamp")
	for _, name := range order {
		fmt.Printf(" %15s", name)
	}
	fmt.Println()

	for i, ts := range result.Timestamps {
		fmt.Printf("%-19d", ts)
		for _, name := range order {
			v := result.Series[name][i]
			if math.IsNaN(v) {
				fmt.Printf(" %15s", "nan")
			} else {
				fmt.Printf(" %15.6f", v)
			}
		}
		fmt.Println()
	}
	return nil
}

func init() {
	fetchCmd.Flags().StringVar(&fetchCF, "cf", "AVERAGE", "consolidation function")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "end-1day", "start time, at-style time spec")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "now", "end time, at-style time spec")
	fetchCmd.Flags().Int32Var(&fetchResolution, "resolution", 300, "desired row interval, in seconds")
	fetchCmd.Flags().StringArrayVar(&fetchDefs, "def", nil, "DEF series as name:dsname[:cf] (repeatable)")
	fetchCmd.Flags().StringArrayVar(&fetchCDefs, "cdef", nil, "CDEF series as name:rpn-expr (repeatable); presence switches fetch into graph mode")
	fetchCmd.Flags().StringVar(&fetchOrder, "order", "", "comma-separated series names, in evaluation/output order (required with --cdef)")
	rootCmd.AddCommand(fetchCmd)
}
