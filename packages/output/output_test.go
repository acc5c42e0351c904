package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func completedOutcome() manager.Outcome {
	return manager.Outcome{
		ManagerID: "mgr-1",
		State:     manager.Completed,
		Request:   request.NewRaw(request.MethodPost, "https://api.example.com/users", request.ModeJSON, `{"name":"relay"}`),
		Response: &http.Response{
			StatusCode: 201,
			Status:     "201 Created",
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"id":7}`),
			Size:       8,
			TTFB:       40 * time.Millisecond,
		},
		StartedAt:  start,
		FinishedAt: start.Add(120 * time.Millisecond),
	}
}

func failedOutcome() manager.Outcome {
	return manager.Outcome{
		ManagerID:  "mgr-2",
		State:      manager.Failed,
		Request:    request.NewBinary(request.MethodPut, "https://api.example.com/blob", "/missing.bin"),
		Failure:    &failure.Failure{Kind: failure.KindBodyRead, Message: "read body file /missing.bin: no such file"},
		StartedAt:  start,
		FinishedAt: start.Add(time.Millisecond),
	}
}

func records(t *testing.T) []*history.Record {
	t.Helper()
	ok, err := history.NewRecord("tab-1", completedOutcome())
	require.NoError(t, err)
	bad, err := history.NewRecord("tab-2", failedOutcome())
	require.NoError(t, err)
	return []*history.Record{ok, bad}
}

func console(buf *bytes.Buffer, verbose bool) *ConsoleFormatter {
	return NewConsoleFormatter(WithWriter(buf), WithVerbose(verbose), WithNoColor(true))
}

func TestConsole_FormatOutcome(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatOutcome(completedOutcome())

	out := buf.String()
	assert.Contains(t, out, "POST https://api.example.com/users 201 Created (120ms, 8 B)")
	assert.Contains(t, out, `{"id":7}`)
	assert.NotContains(t, out, "Content-Type:")
}

func TestConsole_FormatOutcome_Verbose(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, true).FormatOutcome(completedOutcome())

	assert.Contains(t, buf.String(), "Content-Type: application/json")
	assert.Contains(t, buf.String(), "TTFB: 40ms")
}

func TestConsole_FormatOutcome_TruncatesBody(t *testing.T) {
	o := completedOutcome()
	o.Response.Body = bytes.Repeat([]byte("a"), maxBodyPreview+10)

	var buf bytes.Buffer
	console(&buf, false).FormatOutcome(o)
	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), string(o.Response.Body))
}

func TestConsole_FormatOutcome_Failed(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatOutcome(failedOutcome())

	assert.Contains(t, buf.String(), "Body Unreadable")
	assert.Contains(t, buf.String(), "no such file")
}

func TestConsole_FormatOutcome_Cancelled(t *testing.T) {
	o := completedOutcome()
	o.State = manager.Cancelled
	o.Response = nil

	var buf bytes.Buffer
	console(&buf, false).FormatOutcome(o)
	assert.Contains(t, buf.String(), "cancelled")
}

func TestConsole_FormatRecords(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatRecords(records(t))

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "201")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "Body Unreadable")

	buf.Reset()
	console(&buf, false).FormatRecords(nil)
	assert.Equal(t, "No history.\n", buf.String())
}

func TestConsole_FormatRecord(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatRecord(records(t)[0])

	out := buf.String()
	assert.Contains(t, out, "Slot:     tab-1")
	assert.Contains(t, out, "content_type: application/json")
	assert.Contains(t, out, "target: https://api.example.com/users")

	buf.Reset()
	console(&buf, false).FormatRecord(records(t)[1])
	assert.Contains(t, buf.String(), "Failure:  Body Unreadable")

	legacy := records(t)[1]
	legacy.FailureKind = "dns_error"
	buf.Reset()
	console(&buf, false).FormatRecord(legacy)
	assert.Contains(t, buf.String(), "Failure:  dns_error")
}

func TestConsole_FormatStats(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatStats(history.ComputeStats(records(t)))

	out := buf.String()
	assert.Contains(t, out, "2 total, 1 completed, 1 failed")
	assert.Contains(t, out, "Success:   50.0%")
	assert.Contains(t, out, "201: 1")
	assert.Contains(t, out, "body_read_error: 1")
}

func TestConsole_FormatSession(t *testing.T) {
	session := &dashboard.Session{}
	session.Set("b", dashboard.State{Target: "https://b.example.com"})
	session.Set("a", dashboard.FromModel(request.NewURLEncoded(request.MethodPost, "https://a.example.com", []request.Tuple{{Key: "k", Value: "v"}})))

	var buf bytes.Buffer
	console(&buf, false).FormatSession(session)

	out := buf.String()
	assert.Contains(t, out, "GET     https://b.example.com (blank)")
	assert.Contains(t, out, "POST    https://a.example.com (application/x-www-form-urlencoded)")
}

func TestConsole_FormatError(t *testing.T) {
	var buf bytes.Buffer
	console(&buf, false).FormatError(errors.New("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestJSON_FormatOutcome(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter(JSONWithWriter(&buf)).FormatOutcome(completedOutcome())

	var got JSONOutcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, float64(120), got.Duration)
	require.NotNil(t, got.Response)
	assert.Equal(t, 201, got.Response.StatusCode)
	assert.JSONEq(t, `{"id":7}`, string(got.Response.Body))
	assert.Equal(t, request.MIMEJSON, got.Request.ContentType)
	assert.Nil(t, got.Failure)
}

func TestJSON_FormatOutcome_TextBody(t *testing.T) {
	o := completedOutcome()
	o.Response.Body = []byte("plain words")

	var buf bytes.Buffer
	NewJSONFormatter(JSONWithWriter(&buf)).FormatOutcome(o)

	var got JSONOutcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "plain words", got.Response.BodyText)
	assert.Empty(t, got.Response.Body)
}

func TestJSON_FormatOutcome_Failed(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter(JSONWithWriter(&buf)).FormatOutcome(failedOutcome())

	var got JSONOutcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "failed", got.State)
	require.NotNil(t, got.Failure)
	assert.Equal(t, "body_read_error", got.Failure.Kind)
	assert.Nil(t, got.Response)
}

func TestJSON_FormatRecords(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter(JSONWithWriter(&buf)).FormatRecords(nil)
	assert.JSONEq(t, `[]`, buf.String())

	buf.Reset()
	NewJSONFormatter(JSONWithWriter(&buf)).FormatRecords(records(t))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "completed", got[0]["state"])
	assert.Equal(t, "tab-2", got[1]["slot"])
}

func TestJSON_FormatStats(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter(JSONWithWriter(&buf)).FormatStats(history.ComputeStats(records(t)))

	var got JSONStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 50.0, got.SuccessRate)
	assert.Equal(t, 1, got.ByStatus[201])
}

func TestNewFormatter(t *testing.T) {
	var buf bytes.Buffer

	f, err := NewFormatter("", &buf, false, true)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleFormatter{}, f)

	f, err = NewFormatter(FormatJSON, &buf, false, true)
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	_, err = NewFormatter("xml", &buf, false, true)
	assert.Error(t, err)
}
