package request

import (
	"errors"
	"fmt"
	"strings"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

var methods = []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions}

// ParseMethod parses a method name in any case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported method %q", s)
}

// Tuple is one ordered key/value pair. For file tuples Value is a path.
type Tuple struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ParseTuple splits "key=value". The value may be empty, the key may not.
func ParseTuple(s string) (Tuple, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return Tuple{}, fmt.Errorf("invalid field %q (want key=value)", s)
	}
	return Tuple{Key: key, Value: value}, nil
}

// ErrBodyShape is returned when a model's populated body does not match
// the shape its content type requires.
var ErrBodyShape = errors.New("body does not match content type")

// Model is one composed outbound request. It is immutable once built.
type Model struct {
	method       Method
	target       string
	headers      []Tuple
	contentType  ContentType
	body         string
	stringTuples []Tuple
	fileTuples   []Tuple
}

// Option customises a Model at construction time.
type Option func(*Model)

// WithHeaders sets the request headers, in order.
func WithHeaders(headers []Tuple) Option {
	return func(m *Model) {
		m.headers = cloneTuples(headers)
	}
}

// NewRaw builds a raw text request. mode only changes the declared content type.
func NewRaw(method Method, target string, mode RawMode, body string, opts ...Option) *Model {
	return build(&Model{
		method:      method,
		target:      target,
		contentType: mode.ContentType(),
		body:        body,
	}, opts)
}

// NewBinary builds a binary request whose body is streamed from path at dispatch.
func NewBinary(method Method, target, path string, opts ...Option) *Model {
	return build(&Model{
		method:      method,
		target:      target,
		contentType: Binary,
		body:        path,
	}, opts)
}

// NewMultipart builds a multipart/form-data request.
func NewMultipart(method Method, target string, stringTuples, fileTuples []Tuple, opts ...Option) *Model {
	return build(&Model{
		method:       method,
		target:       target,
		contentType:  Multipart,
		stringTuples: nonNil(stringTuples),
		fileTuples:   nonNil(fileTuples),
	}, opts)
}

// NewURLEncoded builds an application/x-www-form-urlencoded request.
func NewURLEncoded(method Method, target string, fields []Tuple, opts ...Option) *Model {
	return build(&Model{
		method:       method,
		target:       target,
		contentType:  URLEncoded,
		stringTuples: nonNil(fields),
	}, opts)
}

func build(m *Model, opts []Option) *Model {
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Method() Method { return m.method }
func (m *Model) Target() string { return m.target }
func (m *Model) ContentType() ContentType { return m.contentType }
func (m *Model) Headers() []Tuple { return cloneTuples(m.headers) }
func (m *Model) StringTuples() []Tuple { return cloneTuples(m.stringTuples) }
func (m *Model) FileTuples() []Tuple { return cloneTuples(m.fileTuples) }

// Body returns the scalar body: raw text, or the file path for Binary.
// It is empty for tuple-shaped models.
func (m *Model) Body() string { return m.body }

// FilePath returns the referenced file for Binary models.
func (m *Model) FilePath() (string, bool) {
	if m.contentType != Binary {
		return "", false
	}
	return m.body, true
}

// Header returns the first header value matching key, case-insensitively.
func (m *Model) Header(key string) (string, bool) {
	for _, h := range m.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Validate checks that exactly one body shape is populated and that it is
// the one the content type requires.
func (m *Model) Validate() error {
	if m == nil {
		return errors.New("nil request")
	}
	if m.method == "" {
		return errors.New("request method is required")
	}
	if strings.TrimSpace(m.target) == "" {
		return errors.New("request target is required")
	}
	if !m.contentType.valid() {
		return fmt.Errorf("unknown content type %d", int(m.contentType))
	}

	hasTuples := m.stringTuples != nil || m.fileTuples != nil
	switch m.contentType.Shape() {
	case ShapeScalar:
		if hasTuples {
			return fmt.Errorf("%w: %s carries tuples", ErrBodyShape, m.contentType)
		}
	case ShapeTuples:
		if m.body != "" {
			return fmt.Errorf("%w: %s carries a scalar body", ErrBodyShape, m.contentType)
		}
		if !hasTuples {
			return fmt.Errorf("%w: %s has no tuple set", ErrBodyShape, m.contentType)
		}
		if m.contentType == URLEncoded && len(m.fileTuples) > 0 {
			return fmt.Errorf("%w: url-encoded body cannot carry files", ErrBodyShape)
		}
	}
	return nil
}

func (m *Model) String() string {
	return fmt.Sprintf("%s %s (%s)", m.method, m.target, m.contentType.MIME())
}

func cloneTuples(in []Tuple) []Tuple {
	if in == nil {
		return nil
	}
	out := make([]Tuple, len(in))
	copy(out, in)
	return out
}

// nonNil keeps the tuple set populated even when the caller passes nil.
func nonNil(in []Tuple) []Tuple {
	if in == nil {
		return []Tuple{}
	}
	return cloneTuples(in)
}
