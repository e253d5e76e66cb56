package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
)

const tableTemplates = `
{{define "cells"}}<tr>{{range .}}<td>{{if .Alert}}<b style="color:red;">{{.Text}}</b>{{else}}{{.Text}}{{end}}</td>{{end}}</tr>{{end}}

{{define "grid"}}<table border="1" class="dataframe">
<thead><tr style="text-align: right;">{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}{{template "cells" .}}
{{end}}</tbody>
</table>{{end}}

{{define "critical"}}<h3 style="color: #d9534f;">Critical Pending (&gt;{{.Threshold}} Days Red Alert)</h3>
{{if .Critical.Rows}}{{template "grid" .Critical}}{{else}}<p>No critical pending (&gt;{{.Threshold}} days).</p>{{end}}{{end}}

{{define "pod"}}<h3 style="color: #2e6da4;">POD Summary</h3>
{{if .POD.Rows}}{{template "grid" .POD}}{{end}}{{end}}

{{define "signature"}}<p><br>Best Regards,<br><b>{{.Signature}}</b></p>{{end}}
`

const targetTemplate = `<html><body style="font-family: Calibri;">
<p>Dear <b>{{.Name}}</b>,</p>
{{template "critical" .}}
{{template "pod" .}}
{{template "signature" .}}
</body></html>`

const masterTemplate = `<html><body style="font-family: Calibri;">
<p>Dear <b>Admin</b>,</p>
<p>Consolidated dispatch report as of {{.AsOf}}.</p>
<ul>
<li>Pending invoices: <b>{{index .Metrics "pending_invoices"}}</b></li>
<li>Pending amount: <b>{{index .Metrics "pending_amount"}}</b></li>
<li>Critical pending (&gt;{{.Threshold}} days): <b>{{index .Metrics "critical_pending"}}</b></li>
<li>Processed POD count: <b>{{index .Metrics "delivered_count"}}</b></li>
</ul>
{{if .Failed}}<p style="color: #d9534f;">Failed sends: {{range $i, $t := .Failed}}{{if $i}}, {{end}}{{$t}}{{end}}</p>{{end}}
{{if .Skipped}}<p>No recipient configured for: {{range $i, $t := .Skipped}}{{if $i}}, {{end}}{{$t}}{{end}}</p>{{end}}
<h3 style="color: #2e6da4;">Pending Summary</h3>
{{template "grid" .Rollup}}
{{template "critical" .}}
{{template "pod" .}}
{{template "signature" .}}
</body></html>`

var (
	targetTmpl = template.Must(template.Must(template.New("target").Parse(tableTemplates)).Parse(targetTemplate))
	masterTmpl = template.Must(template.Must(template.New("master").Parse(tableTemplates)).Parse(masterTemplate))
)

type cell struct {
	Text  string
	Alert bool
}

type grid struct {
	Header []string
	Rows   [][]cell
}

type targetView struct {
	Name      string
	Threshold int
	Critical  grid
	POD       grid
	Signature string
}

type masterView struct {
	targetView
	AsOf    string
	Metrics map[string]string
	Rollup  grid
	Failed  []string
	Skipped []string
}

// MasterNotes are run outcomes listed in the master mail body.
type MasterNotes struct {
	Failed  []string
	Skipped []string
}

// TargetHTML renders the mail body for one assignment: the critical pending
// rows (or an explicit "nothing critical" line) and the target's POD rows.
func (r *Renderer) TargetHTML(a pipeline.Assignment) (string, error) {
	view := targetView{
		Name:      a.Target.Name,
		Threshold: r.opts.CriticalDays,
		Critical:  r.pendingGrid(a.Critical),
		POD:       r.crossTabGrid(a.CrossTab, false),
		Signature: r.opts.Signature,
	}
	return execute(targetTmpl, view)
}

// MasterHTML renders the administrator body over the whole dataset.
func (r *Renderer) MasterHTML(res *pipeline.Result, notes MasterNotes) (string, error) {
	summary := pipeline.Summarize(res, r.opts.CriticalDays)
	critical := res.Pending.Filter(func(p domain.PendingRow) bool { return p.Critical(r.opts.CriticalDays) })

	view := masterView{
		targetView: targetView{
			Name:      "Admin",
			Threshold: r.opts.CriticalDays,
			Critical:  r.pendingGrid(critical),
			POD:       r.crossTabGrid(res.CrossTab, true),
			Signature: r.opts.Signature,
		},
		AsOf:    res.AsOf.Format(r.opts.DateLayout),
		Metrics: r.Display(summary),
		Rollup:  r.rollupGrid(res.Rollup),
		Failed:  notes.Failed,
		Skipped: notes.Skipped,
	}
	return execute(masterTmpl, view)
}

func execute(t *template.Template, view any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render %s body: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func (r *Renderer) pendingGrid(t domain.PendingTable) grid {
	cols := r.bodyColumns(t.Columns)
	g := grid{Header: cols}
	for _, row := range t.Rows {
		cells := make([]cell, len(cols))
		for i, col := range cols {
			cells[i] = cell{Text: r.Text(row.Cell(col))}
			if col == domain.ColPendingDays {
				cells[i].Alert = row.Critical(r.opts.CriticalDays)
			}
		}
		g.Rows = append(g.Rows, cells)
	}
	return g
}

func (r *Renderer) rollupGrid(ro pipeline.Rollup) grid {
	g := grid{Header: []string{domain.ColLocation, domain.ColInvoiceCount, domain.ColBillAmount, domain.ColWeightTons}}
	for _, row := range ro.All() {
		g.Rows = append(g.Rows, []cell{
			{Text: row.Location},
			{Text: r.Text(row.InvoiceCount)},
			{Text: r.Text(row.BillAmount)},
			{Text: r.Text(row.WeightTons)},
		})
	}
	return g
}

// crossTabGrid lays out cross-tab rows; withTotals appends the column margins.
func (r *Renderer) crossTabGrid(ct pipeline.CrossTab, withTotals bool) grid {
	header := append([]string{domain.ColRM, domain.ColLocation}, ct.Months...)
	g := grid{Header: append(header, domain.GrandTotal)}
	for _, row := range ct.Rows {
		g.Rows = append(g.Rows, r.countCells(row.RM, row.Location, row.Counts, row.Total))
	}
	if withTotals && len(ct.Rows) > 0 {
		g.Rows = append(g.Rows, r.countCells(domain.GrandTotal, "", ct.ColumnTotals, ct.GrandTotal))
	}
	return g
}

func (r *Renderer) countCells(rm, location string, counts []int, total int) []cell {
	cells := []cell{{Text: rm}, {Text: location}}
	for _, n := range counts {
		cells = append(cells, cell{Text: r.Text(n)})
	}
	return append(cells, cell{Text: r.Text(total)})
}
