package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// maxBodyPreview bounds the response body printed without --verbose.
const maxBodyPreview = 2048

// truncate shortens s to maxLen bytes, marking the cut
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

type palette struct {
	green, red, yellow, cyan, bold, faint func(a ...interface{}) string
}

func newPalette(noColor bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		green:  mk(color.FgGreen),
		red:    mk(color.FgRed),
		yellow: mk(color.FgYellow),
		cyan:   mk(color.FgCyan),
		bold:   mk(color.Bold),
		faint:  mk(color.Faint),
	}
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	c       palette
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.c = newPalette(f.noColor)
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) statusColor(code int) func(a ...interface{}) string {
	switch {
	case code >= 200 && code < 300:
		return f.c.green
	case code >= 300 && code < 400:
		return f.c.cyan
	case code >= 400 && code < 500:
		return f.c.yellow
	default:
		return f.c.red
	}
}

// FormatOutcome prints a status line, then headers (verbose) and the body.
func (f *ConsoleFormatter) FormatOutcome(o manager.Outcome) {
	target := ""
	if o.Request != nil {
		target = fmt.Sprintf("%s %s", o.Request.Method(), o.Request.Target())
	}

	switch o.State {
	case manager.Completed:
		resp := o.Response
		status := f.statusColor(resp.StatusCode)(resp.Status)
		fmt.Fprintf(f.writer, "%s %s %s\n", f.c.bold(target), status,
			f.c.cyan(fmt.Sprintf("(%dms, %s)", o.Duration().Milliseconds(), formatSize(resp.Size))))

		if f.verbose {
			keys := make([]string, 0, len(resp.Headers))
			for k := range resp.Headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(f.writer, "  %s %s\n", f.c.faint(k+":"), resp.Headers[k])
			}
			fmt.Fprintf(f.writer, "  %s %dms\n", f.c.faint("TTFB:"), resp.TTFB.Milliseconds())
		}

		if len(resp.Body) > 0 {
			body := resp.BodyString()
			if !f.verbose {
				body = truncate(body, maxBodyPreview)
			}
			fmt.Fprintf(f.writer, "\n%s\n", body)
		}

	case manager.Failed:
		fmt.Fprintf(f.writer, "%s %s %s\n", f.c.bold(target), f.c.red(o.Failure.Kind.Title()),
			f.c.cyan(fmt.Sprintf("(%dms)", o.Duration().Milliseconds())))
		fmt.Fprintf(f.writer, "  %s %s\n", f.c.red("→"), o.Failure.Message)

	case manager.Cancelled:
		fmt.Fprintf(f.writer, "%s %s\n", f.c.bold(target), f.c.yellow("cancelled"))

	default:
		fmt.Fprintf(f.writer, "%s %s\n", f.c.bold(target), o.State)
	}
}

// FormatRecords prints one line per record, newest first as given.
func (f *ConsoleFormatter) FormatRecords(records []*history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(f.writer, "No history.")
		return
	}

	for _, r := range records {
		symbol := f.c.green("✓")
		result := f.statusColor(r.StatusCode)(fmt.Sprintf("%d", r.StatusCode))
		if r.State == manager.Failed {
			symbol = f.c.red("✗")
			result = f.c.red(failureLabel(r))
		} else if !r.Succeeded() {
			symbol = f.c.yellow("!")
		}

		fmt.Fprintf(f.writer, "%s %s  %s  %-7s %s %s %s\n",
			symbol,
			f.c.faint(shortID(r.ID)),
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Request.Method,
			r.Request.Target,
			result,
			f.c.cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())),
		)
	}
}

// FormatRecord prints a record's details and its request as YAML, the same
// shape a session file stores.
func (f *ConsoleFormatter) FormatRecord(rec *history.Record) {
	fmt.Fprintf(f.writer, "%s %s\n", f.c.bold("Record"), rec.ID)
	fmt.Fprintf(f.writer, "  Time:     %s\n", rec.Timestamp.Local().Format(time.RFC3339))
	fmt.Fprintf(f.writer, "  Slot:     %s\n", rec.SlotKey)
	fmt.Fprintf(f.writer, "  State:    %s\n", rec.State)
	fmt.Fprintf(f.writer, "  Duration: %dms\n", rec.Duration.Milliseconds())
	if rec.State == manager.Completed {
		fmt.Fprintf(f.writer, "  Status:   %s\n", f.statusColor(rec.StatusCode)(rec.Status))
		fmt.Fprintf(f.writer, "  Size:     %s\n", formatSize(rec.Size))
	} else {
		fmt.Fprintf(f.writer, "  Failure:  %s\n", f.c.red(failureLabel(rec)))
		fmt.Fprintf(f.writer, "  Message:  %s\n", rec.FailureMessage)
	}

	data, err := yaml.Marshal(rec.Request)
	if err != nil {
		f.FormatError(err)
		return
	}
	fmt.Fprintf(f.writer, "\n%s\n", f.c.bold("Request:"))
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(f.writer, "  %s\n", line)
	}
}

func (f *ConsoleFormatter) FormatStats(stats history.Stats) {
	fmt.Fprintf(f.writer, "\n%s\n", f.c.bold("History"))
	fmt.Fprintf(f.writer, "  Requests:  %d total, %s, %s\n",
		stats.Total,
		f.c.green(fmt.Sprintf("%d completed", stats.Completed)),
		f.c.red(fmt.Sprintf("%d failed", stats.Failed)))
	fmt.Fprintf(f.writer, "  Success:   %.1f%%\n", stats.SuccessRate())
	fmt.Fprintf(f.writer, "  Slots:     %d\n", len(stats.Slots))

	if stats.Total > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", f.c.bold("Latency"))
		fmt.Fprintf(f.writer, "  p50: %s  p95: %s  p99: %s  mean: %s  max: %s\n",
			fmtDuration(stats.P50), fmtDuration(stats.P95), fmtDuration(stats.P99),
			fmtDuration(stats.Mean), fmtDuration(stats.Max))
	}

	if len(stats.ByStatus) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", f.c.bold("Status Codes"))
		codes := make([]int, 0, len(stats.ByStatus))
		for code := range stats.ByStatus {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(f.writer, "  %s %d\n", f.statusColor(code)(fmt.Sprintf("%d:", code)), stats.ByStatus[code])
		}
	}

	if len(stats.ByKind) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", f.c.bold("Failures"))
		kinds := make([]string, 0, len(stats.ByKind))
		for kind := range stats.ByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(f.writer, "  %s %d\n", f.c.red(kind+":"), stats.ByKind[kind])
		}
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) FormatSession(session *dashboard.Session) {
	if len(session.Tabs) == 0 {
		fmt.Fprintln(f.writer, "No saved tabs.")
		return
	}
	for _, tab := range session.Tabs {
		ct := tab.State.ContentType
		if ct == "" {
			ct = "blank"
		}
		method := tab.State.Method
		if method == "" {
			method = "GET"
		}
		fmt.Fprintf(f.writer, "%s  %-7s %s %s\n", f.c.bold(tab.Slot), method, tab.State.Target, f.c.faint("("+ct+")"))
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.c.red("Error:"), err)
}

// failureLabel prefers the kind's title; records written with an unknown
// kind show it verbatim.
func failureLabel(r *history.Record) string {
	if kind, ok := r.Kind(); ok {
		return kind.Title()
	}
	return r.FailureKind
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func fmtDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
