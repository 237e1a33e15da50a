// Package xmldump implements the stable textual round-trip format for an
// rrd.Database: ToXml renders a database to the RRDtool-style XML dump
// described in spec.md §4.7, Import rebuilds a database from it.
package xmldump

import (
	"encoding/xml"

	"github.com/wellsgz/rrdb/internal/rrd"
)

type dsBlock struct {
	XMLName     xml.Name `xml:"ds"`
	Name        string   `xml:"name"`
	Type        string   `xml:"type"`
	Heartbeat   int32    `xml:"minimal_heartbeat"`
	Min         float64  `xml:"min"`
	Max         float64  `xml:"max"`
	LastDS      string   `xml:"last_ds"`
	Value       float64  `xml:"value"`
	UnknownSec  int32    `xml:"unknown_sec"`
}

type cdpDSBlock struct {
	XMLName           xml.Name `xml:"ds"`
	Value             float64  `xml:"value"`
	UnknownDatapoints int32    `xml:"unknown_datapoints"`
}

type cdpPrepBlock struct {
	DS []cdpDSBlock `xml:"ds"`
}

type rowBlock struct {
	XMLName xml.Name  `xml:"row"`
	V       []float64 `xml:"v"`
}

type databaseBlock struct {
	Rows []rowBlock `xml:"row"`
}

type rraBlock struct {
	XMLName     xml.Name      `xml:"rra"`
	CF          string        `xml:"cf"`
	PDPPerRow   int32         `xml:"pdp_per_row"`
	XFF         float64       `xml:"xff"`
	CDPPrep     cdpPrepBlock  `xml:"cdp_prep"`
	Database    databaseBlock `xml:"database"`
}

type rrdDoc struct {
	XMLName    xml.Name   `xml:"rrd"`
	Version    string     `xml:"version"`
	Step       int32      `xml:"step"`
	LastUpdate int64      `xml:"lastupdate"`
	DSs        []dsBlock  `xml:"ds"`
	RRAs       []rraBlock `xml:"rra"`
}

// ToXml renders db to its XML dump form, UTF-8 encoded with a leading
// <?xml?> declaration.
func ToXml(db *rrd.Database) ([]byte, error) {
	step, err := db.Header().Step()
	if err != nil {
		return nil, err
	}
	lut, err := db.Header().LastUpdateTime()
	if err != nil {
		return nil, err
	}

	doc := rrdDoc{Version: rrd.CurrentVersion, Step: step, LastUpdate: lut}

	for _, ds := range db.DataSources() {
		name, err := ds.Name()
		if err != nil {
			return nil, err
		}
		dstype, err := ds.Type()
		if err != nil {
			return nil, err
		}
		hb, err := ds.Heartbeat()
		if err != nil {
			return nil, err
		}
		min, err := ds.Min()
		if err != nil {
			return nil, err
		}
		max, err := ds.Max()
		if err != nil {
			return nil, err
		}
		last, err := ds.LastReading()
		if err != nil {
			return nil, err
		}
		acc, err := ds.Accumulated()
		if err != nil {
			return nil, err
		}
		nan, err := ds.NanSeconds()
		if err != nil {
			return nil, err
		}
		doc.DSs = append(doc.DSs, dsBlock{
			Name: name, Type: string(dstype), Heartbeat: hb,
			Min: min, Max: max, LastDS: last, Value: acc, UnknownSec: nan,
		})
	}

	dsCount := len(db.DataSources())
	for _, arc := range db.Archives() {
		cf, err := arc.ConsolidationFunction()
		if err != nil {
			return nil, err
		}
		steps, err := arc.Steps()
		if err != nil {
			return nil, err
		}
		xff, err := arc.XFF()
		if err != nil {
			return nil, err
		}
		rows, err := arc.Rows()
		if err != nil {
			return nil, err
		}
		currentRow, err := arc.CurrentRow()
		if err != nil {
			return nil, err
		}

		rra := rraBlock{CF: string(cf), PDPPerRow: steps, XFF: xff}

		for i := 0; i < dsCount; i++ {
			acc, err := arc.State(i).Accumulated()
			if err != nil {
				return nil, err
			}
			nan, err := arc.State(i).NanSteps()
			if err != nil {
				return nil, err
			}
			rra.CDPPrep.DS = append(rra.CDPPrep.DS, cdpDSBlock{Value: acc, UnknownDatapoints: nan})
		}

		oldest := (currentRow + 1) % rows
		for r := int32(0); r < rows; r++ {
			logical := (oldest + r) % rows
			row := rowBlock{V: make([]float64, dsCount)}
			for i := 0; i < dsCount; i++ {
				v, err := arc.Robin().Get(int(logical), i)
				if err != nil {
					return nil, err
				}
				row.V[i] = v
			}
			rra.Database.Rows = append(rra.Database.Rows, row)
		}

		doc.RRAs = append(doc.RRAs, rra)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, rrd.WrapXmlError(err, "marshaling xml dump")
	}
	return append([]byte(xml.Header), out...), nil
}

// Import rebuilds a database at path from an XML dump. The new database is
// created fresh (same Definition the dump implies) and then overwritten
// field-by-field with the dump's exact values. The dump lists each
// archive's rows oldest first and carries no current_row, so Import writes
// them to physical rows 0..rows-1 and sets current_row to rows-1: the ring
// holds the source's values in the same oldest-to-newest order, but the
// physical row positions and current_row equal the source's only when the
// source's current_row was rows-1. The returned database is open and
// writable; the caller is responsible for Close.
func Import(path string, data []byte) (*rrd.Database, error) {
	var doc rrdDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, rrd.WrapXmlError(err, "parsing xml dump")
	}
	if len(doc.DSs) == 0 {
		return nil, rrd.NewXmlError("xml dump has no <ds> blocks")
	}
	if len(doc.RRAs) == 0 {
		return nil, rrd.NewXmlError("xml dump has no <rra> blocks")
	}
	dsCount := len(doc.DSs)

	def := rrd.Definition{Path: path, Step: doc.Step, StartTime: doc.LastUpdate}
	for _, d := range doc.DSs {
		dstype, ok := rrd.ParseDSType(d.Type)
		if !ok {
			return nil, rrd.NewXmlError("unknown data source type %q", d.Type)
		}
		def.DSs = append(def.DSs, rrd.DSDef{
			Name: d.Name, Type: dstype, Heartbeat: d.Heartbeat, Min: d.Min, Max: d.Max,
		})
	}
	for j, rra := range doc.RRAs {
		if len(rra.CDPPrep.DS) != dsCount {
			return nil, rrd.NewXmlError("rra[%d]: cdp_prep has %d ds blocks, want %d", j, len(rra.CDPPrep.DS), dsCount)
		}
		for r, row := range rra.Database.Rows {
			if len(row.V) != dsCount {
				return nil, rrd.NewXmlError("rra[%d]: row %d has %d values, want %d", j, r, len(row.V), dsCount)
			}
		}
		cf, ok := rrd.ParseCFunc(rra.CF)
		if !ok {
			return nil, rrd.NewXmlError("rra[%d]: unknown consolidation function %q", j, rra.CF)
		}
		def.Archives = append(def.Archives, rrd.ArchiveDef{
			CF: cf, XFF: rra.XFF, Steps: rra.PDPPerRow, Rows: int32(len(rra.Database.Rows)),
		})
	}

	db, err := rrd.Create(def)
	if err != nil {
		return nil, rrd.WrapXmlError(err, "creating database from xml definition")
	}

	if err := db.Header().SetLastUpdateTime(doc.LastUpdate); err != nil {
		db.Close()
		return nil, rrd.WrapXmlError(err, "restoring last_update_time")
	}

	for i, d := range doc.DSs {
		ds := db.DataSources()[i]
		if err := ds.SetLastReading(d.LastDS); err != nil {
			db.Close()
			return nil, rrd.WrapXmlError(err, "restoring ds[%d] last_ds", i)
		}
		if err := ds.SetNanSeconds(d.UnknownSec); err != nil {
			db.Close()
			return nil, rrd.WrapXmlError(err, "restoring ds[%d] unknown_sec", i)
		}
		if err := ds.SetAccumulated(d.Value); err != nil {
			db.Close()
			return nil, rrd.WrapXmlError(err, "restoring ds[%d] value", i)
		}
	}

	for j, rra := range doc.RRAs {
		arc := db.Archives()[j]
		for i, cdp := range rra.CDPPrep.DS {
			state := arc.State(i)
			if err := state.SetAccumulated(cdp.Value); err != nil {
				db.Close()
				return nil, rrd.WrapXmlError(err, "restoring rra[%d] cdp_prep[%d] value", j, i)
			}
			if err := state.SetNanSteps(cdp.UnknownDatapoints); err != nil {
				db.Close()
				return nil, rrd.WrapXmlError(err, "restoring rra[%d] cdp_prep[%d] unknown_datapoints", j, i)
			}
		}
		for r, row := range rra.Database.Rows {
			for i, v := range row.V {
				if err := arc.Robin().Set(r, i, v); err != nil {
					db.Close()
					return nil, rrd.WrapXmlError(err, "restoring rra[%d] row %d ds %d", j, r, i)
				}
			}
		}
		rows := int32(len(rra.Database.Rows))
		if err := arc.SetCurrentRow(rows - 1); err != nil {
			db.Close()
			return nil, rrd.WrapXmlError(err, "restoring rra[%d] current_row", j)
		}
	}

	if err := db.Flush(); err != nil {
		db.Close()
		return nil, rrd.WrapXmlError(err, "flushing imported database")
	}
	return db, nil
}
