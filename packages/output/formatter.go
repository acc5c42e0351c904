package output

import (
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/manager"
)

// Formatter renders everything the CLI prints.
type Formatter interface {
	FormatOutcome(o manager.Outcome)
	FormatRecords(records []*history.Record)
	FormatRecord(rec *history.Record)
	FormatStats(stats history.Stats)
	FormatSession(session *dashboard.Session)
	FormatError(err error)
}

// Format names accepted by NewFormatter.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// NewFormatter returns the formatter for format, writing to w.
func NewFormatter(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch format {
	case "", FormatConsole:
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case FormatJSON:
		return NewJSONFormatter(JSONWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want console or json)", format)
	}
}
