package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/localize"
)

// maxDetailWidth truncates error details in the results table.
const maxDetailWidth = 80

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// RenderResults renders one row per job in input order. Overlays is the
// number of text items the localization analysis reported, when parseable.
func RenderResults(result *batch.BatchResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "File", "Status", "Overlays", "Time", "Detail"})

	for _, o := range result.All() {
		status := "ok"
		detail := ""
		overlays := "-"
		if o.Succeeded() {
			if items, err := localize.ParseOverlayItems(o.Localization); err == nil {
				overlays = strconv.Itoa(len(items))
			}
		} else {
			status = string(o.ErrorKind)
			detail = truncate(o.ErrorDetail, maxDetailWidth)
		}
		tw.AppendRow(table.Row{o.Index + 1, o.OriginalName, status, overlays, FormatDurationShort(o.Elapsed), detail})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// Summary is the one-line batch result, e.g. "Successful: 3/4 in 1:05".
func Summary(result *batch.BatchResult) string {
	return fmt.Sprintf("%s in %s", result.Summary(), FormatDurationShort(result.Elapsed))
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
