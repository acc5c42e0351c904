package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/manager"
)

// JSONOutcome is the JSON form of a dispatch outcome
type JSONOutcome struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Request  dashboard.State `json:"request"`
	Response *JSONResponse   `json:"response,omitempty"`
	Failure  *JSONFailure    `json:"failure,omitempty"`
	Duration float64         `json:"duration"`
	Time     string          `json:"time"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Size       int64             `json:"size"`
	TTFB       float64           `json:"ttfb"`
	Body       json.RawMessage   `json:"body,omitempty"`
	BodyText   string            `json:"bodyText,omitempty"`
}

// JSONFailure represents a classified failure
type JSONFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JSONStats represents history stats
type JSONStats struct {
	Total       int            `json:"total"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	Succeeded   int            `json:"succeeded"`
	SuccessRate float64        `json:"successRate"`
	ByStatus    map[int]int    `json:"byStatus,omitempty"`
	ByKind      map[string]int `json:"byKind,omitempty"`
	Slots       []string       `json:"slots,omitempty"`
	P50         float64        `json:"p50"`
	P95         float64        `json:"p95"`
	P99         float64        `json:"p99"`
	Mean        float64        `json:"mean"`
	Max         float64        `json:"max"`
}

// JSONFormatter writes one indented JSON document per call
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (f *JSONFormatter) FormatOutcome(o manager.Outcome) {
	out := JSONOutcome{
		ID:       o.ManagerID,
		State:    o.State.String(),
		Duration: ms(o.Duration()),
		Time:     o.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.Request != nil {
		out.Request = dashboard.FromModel(o.Request)
	}

	if r := o.Response; r != nil {
		out.Response = &JSONResponse{
			StatusCode: r.StatusCode,
			Status:     r.Status,
			Headers:    r.Headers,
			Size:       r.Size,
			TTFB:       ms(r.TTFB),
		}
		if json.Valid(r.Body) {
			out.Response.Body = r.Body
		} else {
			out.Response.BodyText = r.BodyString()
		}
	}

	if o.Failure != nil {
		out.Failure = &JSONFailure{Kind: o.Failure.Kind.String(), Message: o.Failure.Message}
	}

	f.encode(out)
}

func (f *JSONFormatter) FormatRecords(records []*history.Record) {
	if records == nil {
		records = []*history.Record{}
	}
	f.encode(records)
}

func (f *JSONFormatter) FormatRecord(rec *history.Record) {
	f.encode(rec)
}

func (f *JSONFormatter) FormatStats(stats history.Stats) {
	f.encode(JSONStats{
		Total:       stats.Total,
		Completed:   stats.Completed,
		Failed:      stats.Failed,
		Succeeded:   stats.Succeeded,
		SuccessRate: stats.SuccessRate(),
		ByStatus:    stats.ByStatus,
		ByKind:      stats.ByKind,
		Slots:       stats.Slots,
		P50:         ms(stats.P50),
		P95:         ms(stats.P95),
		P99:         ms(stats.P99),
		Mean:        ms(stats.Mean),
		Max:         ms(stats.Max),
	})
}

func (f *JSONFormatter) FormatSession(session *dashboard.Session) {
	f.encode(session)
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(map[string]string{"error": err.Error()})
}
