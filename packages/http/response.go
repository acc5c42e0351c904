package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Size       int64
	Duration   time.Duration
	// TTFB is the time until response headers arrived.
	TTFB time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Lookup extracts a value from a JSON body using gjson path syntax.
// An empty path returns the whole body.
func (r *Response) Lookup(path string) (any, bool) {
	if !gjson.ValidBytes(r.Body) {
		if path == "" {
			return r.BodyString(), true
		}
		return nil, false
	}

	doc := gjson.ParseBytes(r.Body)
	if path == "" {
		return doc.Value(), true
	}

	result := doc.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// SchemaError lists every violation found by ValidateSchema.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Violations, "; "))
}

// ValidateSchema checks the body against a JSON Schema document.
func (r *Response) ValidateSchema(schema []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(r.Body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return &SchemaError{Violations: violations}
}
