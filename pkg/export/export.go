// Package export writes per-connector allocation rows for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/powermux/core/model"
	coresnap "github.com/kilianp07/powermux/core/snapshot"
)

// Row is the allocation of one connector at the time of a snapshot.
type Row struct {
	Connector string    `json:"connector"`
	Active    bool      `json:"active"`
	Requested float64   `json:"requested_a"`
	Assigned  float64   `json:"assigned_a"`
	Modules   []int     `json:"modules"`
	Time      time.Time `json:"time"`
}

// Rows flattens s into one row per connector, in connector order.
func Rows(s coresnap.Snapshot) []Row {
	rows := make([]Row, 0, model.ConnectorCount)
	for _, c := range model.Connectors() {
		name := c.String()
		mods := s.Assignments[name]
		if mods == nil {
			mods = []int{}
		}
		var assigned float64
		for _, m := range mods {
			if m > 0 && m < len(s.Modules) {
				assigned += s.Modules[m].MaxCurr
			}
		}
		view := s.Connectors[name]
		rows = append(rows, Row{
			Connector: name,
			Active:    view.Active,
			Requested: view.EVMaxCurrent,
			Assigned:  assigned,
			Modules:   mods,
			Time:      s.Time,
		})
	}
	return rows
}

// WriteJSON writes the rows of s to w in JSON format.
func WriteJSON(w io.Writer, s coresnap.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Rows(s))
}

// WriteCSV writes the rows of s to w in CSV format. Modules are space
// separated.
func WriteCSV(w io.Writer, s coresnap.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"connector", "active", "requested_a", "assigned_a", "modules", "timestamp"}); err != nil {
		return err
	}
	for _, r := range Rows(s) {
		mods := make([]string, len(r.Modules))
		for i, m := range r.Modules {
			mods[i] = strconv.Itoa(m)
		}
		rec := []string{
			r.Connector,
			strconv.FormatBool(r.Active),
			strconv.FormatFloat(r.Requested, 'f', -1, 64),
			strconv.FormatFloat(r.Assigned, 'f', -1, 64),
			strings.Join(mods, " "),
			r.Time.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHTML renders requested and assigned current per connector as a bar
// chart page.
func WriteHTML(w io.Writer, s coresnap.Snapshot) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Connector allocation", Subtitle: s.Time.Format(time.RFC3339)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Connector"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Current (A)"}),
	)
	rows := Rows(s)
	names := make([]string, 0, len(rows))
	requested := make([]opts.BarData, 0, len(rows))
	assigned := make([]opts.BarData, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Connector)
		requested = append(requested, opts.BarData{Value: r.Requested})
		assigned = append(assigned, opts.BarData{Value: r.Assigned})
	}
	bar.SetXAxis(names).
		AddSeries("Requested", requested).
		AddSeries("Assigned", assigned)
	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
