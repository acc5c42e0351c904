// Package dashboard converts between the composer view and request models.
//
// A State is the persisted, stringly-typed form of one composer tab. Every
// field is optional: a State with no content type restores to a blank raw
// body rather than failing.
package dashboard

import (
	"fmt"

	"github.com/abdul-hamid-achik/relay/packages/request"
)

// State is a composer tab snapshot. It is what history records and saved
// sessions store.
type State struct {
	Method       string          `yaml:"method,omitempty" json:"method,omitempty"`
	Target       string          `yaml:"target,omitempty" json:"target,omitempty"`
	Headers      []request.Tuple `yaml:"headers,omitempty" json:"headers,omitempty"`
	ContentType  string          `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Body         *string         `yaml:"body,omitempty" json:"body,omitempty"`
	StringTuples []request.Tuple `yaml:"string_tuples,omitempty" json:"string_tuples,omitempty"`
	FileTuples   []request.Tuple `yaml:"file_tuples,omitempty" json:"file_tuples,omitempty"`
}

// FromModel snapshots a request. Scalar content types fill Body; tuple
// content types fill the tuple lists. An empty body or tuple list is left
// nil, so a state without one survives State.Model unchanged.
func FromModel(m *request.Model) State {
	s := State{
		Method:      string(m.Method()),
		Target:      m.Target(),
		Headers:     emptyToNil(m.Headers()),
		ContentType: m.ContentType().MIME(),
	}

	if m.ContentType().Shape() == request.ShapeScalar {
		if body := m.Body(); body != "" {
			s.Body = &body
		}
		return s
	}

	s.StringTuples = emptyToNil(m.StringTuples())
	s.FileTuples = emptyToNil(m.FileTuples())
	return s
}

// IsBlank reports whether the state carries no body information at all.
func (s State) IsBlank() bool {
	return s.ContentType == "" && s.Body == nil && len(s.StringTuples) == 0 && len(s.FileTuples) == 0
}

// Model rebuilds the request. A missing method defaults to GET; a missing
// content type yields an empty plain-text body.
func (s State) Model() (*request.Model, error) {
	method := request.MethodGet
	if s.Method != "" {
		m, err := request.ParseMethod(s.Method)
		if err != nil {
			return nil, err
		}
		method = m
	}

	ct := request.PlainText
	if s.ContentType != "" {
		parsed, ok := request.ParseContentType(s.ContentType)
		if !ok {
			return nil, fmt.Errorf("unsupported content type %q", s.ContentType)
		}
		ct = parsed
	}

	body := ""
	if s.Body != nil {
		body = *s.Body
	}
	opt := request.WithHeaders(s.Headers)

	var m *request.Model
	switch ct {
	case request.Binary:
		m = request.NewBinary(method, s.Target, body, opt)
	case request.Multipart:
		m = request.NewMultipart(method, s.Target, s.StringTuples, s.FileTuples, opt)
	case request.URLEncoded:
		m = request.NewURLEncoded(method, s.Target, s.StringTuples, opt)
	default:
		mode, _ := ct.RawMode()
		m = request.NewRaw(method, s.Target, mode, body, opt)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Body != nil {
		body := *s.Body
		out.Body = &body
	}
	out.Headers = cloneTuples(s.Headers)
	out.StringTuples = cloneTuples(s.StringTuples)
	out.FileTuples = cloneTuples(s.FileTuples)
	return out
}

func cloneTuples(in []request.Tuple) []request.Tuple {
	if in == nil {
		return nil
	}
	out := make([]request.Tuple, len(in))
	copy(out, in)
	return out
}

func emptyToNil(in []request.Tuple) []request.Tuple {
	if len(in) == 0 {
		return nil
	}
	return in
}
