// Package history is the append-only log of finished dispatches.
//
// Only Completed and Failed outcomes become records; cancelled dispatches
// leave no trace. Records are written once and never updated.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("history record not found")
	ErrNotRecordable = errors.New("only completed or failed outcomes are recorded")
)

// Record is one finished dispatch.
type Record struct {
	ID             string          `json:"id" yaml:"id"`
	Timestamp      time.Time       `json:"timestamp" yaml:"timestamp"`
	SlotKey        string          `json:"slot" yaml:"slot"`
	ManagerID      string          `json:"manager_id" yaml:"manager_id"`
	Request        dashboard.State `json:"request" yaml:"request"`
	State          manager.State   `json:"state" yaml:"state"`
	StatusCode     int             `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Status         string          `json:"status,omitempty" yaml:"status,omitempty"`
	Size           int64           `json:"size,omitempty" yaml:"size,omitempty"`
	Duration       time.Duration   `json:"duration" yaml:"duration"`
	FailureKind    string          `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty" yaml:"failure_message,omitempty"`
}

// NewRecord snapshots a terminal outcome for slot.
func NewRecord(slot string, o manager.Outcome) (*Record, error) {
	if o.State != manager.Completed && o.State != manager.Failed {
		return nil, fmt.Errorf("%w: got %s", ErrNotRecordable, o.State)
	}
	if o.Request == nil {
		return nil, errors.New("outcome has no request")
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Timestamp: o.FinishedAt.UTC(),
		SlotKey:   slot,
		ManagerID: o.ManagerID,
		Request:   dashboard.FromModel(o.Request),
		State:     o.State,
		Duration:  o.Duration(),
	}

	if o.Response != nil {
		rec.StatusCode = o.Response.StatusCode
		rec.Status = o.Response.Status
		rec.Size = o.Response.Size
	}
	if o.Failure != nil {
		rec.FailureKind = o.Failure.Kind.String()
		rec.FailureMessage = o.Failure.Message
	}
	return rec, nil
}

// DashboardState returns the request snapshot for re-opening in a composer.
func (r *Record) DashboardState() dashboard.State {
	return r.Request.Clone()
}

// Kind returns the failure kind of a failed record.
func (r *Record) Kind() (failure.Kind, bool) {
	if r.FailureKind == "" {
		return failure.KindNetwork, false
	}
	return failure.ParseKind(r.FailureKind)
}

func (r *Record) Succeeded() bool {
	return r.State == manager.Completed && r.StatusCode >= 200 && r.StatusCode < 400
}

// Store persists records. Implementations must be safe for concurrent use;
// each Append is atomic on its own.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// Recent returns up to limit records, newest first. limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Clear(ctx context.Context) error
	Close() error
}
