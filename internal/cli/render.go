package cli

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/usecase"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderCounts prints one row per status plus the total.
func renderCounts(w io.Writer, counts *entity.StatusCounts) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Status", "Stores"})
	for _, s := range entity.AllStatuses {
		t.AppendRow(table.Row{s, counts.ByStatus[s]})
	}
	t.AppendFooter(table.Row{"Total", counts.Total})
	t.Render()
}

func renderStores(w io.Writer, stores []entity.Store, loc *time.Location) {
	t := newTable(w)
	t.AppendHeader(table.Row{"URL", "Status", "Last Check", "Checks", "Dead Since", "Region"})
	for _, s := range stores {
		region := ""
		if s.TimezoneChecked != nil {
			region = *s.TimezoneChecked
		}
		t.AppendRow(table.Row{
			s.URL,
			s.Label().String(),
			formatTime(s.LastCheck, loc),
			s.CheckCount,
			formatTime(s.FirstDeadDate, loc),
			region,
		})
	}
	t.Render()
}

func renderChanges(w io.Writer, changes []entity.StatusChange, loc *time.Location) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Changed At", "URL", "From", "To"})
	for _, c := range changes {
		at := c.ChangedAt
		t.AppendRow(table.Row{formatTime(&at, loc), c.URL, c.FromStatus, c.ToStatus})
	}
	t.Render()
}

func renderSummary(w io.Writer, sum *usecase.Summary) {
	t := newTable(w)
	t.SetTitle("Pass " + sum.PassID)
	t.AppendHeader(table.Row{"Status", "Stores"})
	for _, s := range entity.CheckedStatuses {
		t.AppendRow(table.Row{s, sum.ByStatus[s]})
	}
	t.AppendFooter(table.Row{"Recorded", sum.Checked})
	t.AppendFooter(table.Row{"Failed", sum.Failed})
	t.AppendFooter(table.Row{"Took", sum.Duration.Round(time.Millisecond)})
	t.Render()
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format(timeLayout)
}
