// Package insomnia imports Insomnia v4 exports as composer requests.
package insomnia

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

// Converter converts Insomnia exports to composer states.
type Converter struct {
	unwrapVariables bool
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithUnwrappedVariables rewrites {{ _.name }} template tags to {{name}}.
// relay sends them literally either way.
func WithUnwrappedVariables(unwrap bool) Option {
	return func(c *Converter) {
		c.unwrapVariables = unwrap
	}
}

// NewConverter creates a new Insomnia converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Export represents an Insomnia export file.
type Export struct {
	Type         string     `json:"_type"`
	ExportFormat int        `json:"__export_format"`
	Resources    []Resource `json:"resources"`
}

// Resource represents an Insomnia resource (request, folder, environment, etc).
type Resource struct {
	ID             string      `json:"_id"`
	Type           string      `json:"_type"`
	ParentID       string      `json:"parentId"`
	Name           string      `json:"name"`
	Method         string      `json:"method,omitempty"`
	URL            string      `json:"url,omitempty"`
	Headers        []Header    `json:"headers,omitempty"`
	Body           *Body       `json:"body,omitempty"`
	Parameters     []Parameter `json:"parameters,omitempty"`
	Authentication *Auth       `json:"authentication,omitempty"`
}

// Header represents an Insomnia header.
type Header struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Body represents an Insomnia request body. Form bodies carry Params,
// file bodies carry FileName.
type Body struct {
	MimeType string      `json:"mimeType,omitempty"`
	Text     string      `json:"text,omitempty"`
	FileName string      `json:"fileName,omitempty"`
	Params   []Parameter `json:"params,omitempty"`
}

// Parameter is a query parameter or a form field.
type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Auth represents Insomnia authentication.
type Auth struct {
	Type     string `json:"type"`
	Disabled bool   `json:"disabled,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// Imported is one converted request.
type Imported struct {
	Name  string
	State dashboard.State
}

// ConvertFile converts an Insomnia export file.
func (c *Converter) ConvertFile(path string) ([]*Imported, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return c.Convert(data)
}

// Convert converts Insomnia export JSON. Requests keep export order and are
// named after their folder path.
func (c *Converter) Convert(data []byte) ([]*Imported, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Insomnia export: %w", err)
	}

	folders := make(map[string]Resource)
	for _, res := range export.Resources {
		if res.Type == "request_group" {
			folders[res.ID] = res
		}
	}

	var result []*Imported
	for _, res := range export.Resources {
		if res.Type != "request" {
			continue
		}

		model, err := c.ToModel(res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Name, err)
		}

		name := res.Name
		if folder := folderPath(res.ParentID, folders); folder != "" {
			name = folder + "_" + name
		}
		result = append(result, &Imported{Name: sanitizeName(name), State: dashboard.FromModel(model)})
	}
	return result, nil
}

// ToModel builds the request for one Insomnia request resource.
func (c *Converter) ToModel(res Resource) (*request.Model, error) {
	method := request.MethodGet
	if res.Method != "" {
		m, err := request.ParseMethod(res.Method)
		if err != nil {
			return nil, err
		}
		method = m
	}

	target := c.convertVariable(res.URL)
	if query := c.query(res.Parameters); query != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query
	}

	headers := c.headers(res)
	body := res.Body
	if body == nil || (body.MimeType == "" && body.Text == "") {
		return request.NewRaw(method, target, request.ModePlain, "", request.WithHeaders(headers)), nil
	}

	ct, known := request.ParseContentType(body.MimeType)
	if body.MimeType == "" {
		ct, known = request.PlainText, true
	}
	if known {
		headers = dropContentType(headers)
	}

	switch ct {
	case request.Multipart:
		var fields, files []request.Tuple
		for _, p := range body.Params {
			if p.Disabled {
				continue
			}
			if p.Type == "file" {
				files = append(files, request.Tuple{Key: p.Name, Value: p.FileName})
				continue
			}
			fields = append(fields, request.Tuple{Key: p.Name, Value: c.convertVariable(p.Value)})
		}
		return request.NewMultipart(method, target, fields, files, request.WithHeaders(headers)), nil

	case request.URLEncoded:
		fields := make([]request.Tuple, 0, len(body.Params))
		for _, p := range body.Params {
			if !p.Disabled {
				fields = append(fields, request.Tuple{Key: p.Name, Value: c.convertVariable(p.Value)})
			}
		}
		if len(fields) == 0 && body.Text != "" {
			fields = http.ParseFormBody(body.Text)
		}
		return request.NewURLEncoded(method, target, fields, request.WithHeaders(headers)), nil

	case request.Binary:
		return request.NewBinary(method, target, body.FileName, request.WithHeaders(headers)), nil
	}

	mode, _ := ct.RawMode()
	return request.NewRaw(method, target, mode, c.convertVariable(body.Text), request.WithHeaders(headers)), nil
}

func (c *Converter) headers(res Resource) []request.Tuple {
	var headers []request.Tuple
	for _, h := range res.Headers {
		if h.Disabled || h.Name == "" {
			continue
		}
		headers = append(headers, request.Tuple{Key: h.Name, Value: c.convertVariable(h.Value)})
	}
	if auth := c.authHeader(res.Authentication); auth != "" {
		headers = append(headers, request.Tuple{Key: "Authorization", Value: auth})
	}
	return headers
}

func (c *Converter) authHeader(auth *Auth) string {
	if auth == nil || auth.Disabled {
		return ""
	}
	switch auth.Type {
	case "basic":
		if auth.Username == "" {
			return ""
		}
		creds := c.convertVariable(auth.Username) + ":" + c.convertVariable(auth.Password)
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	case "bearer":
		if auth.Token == "" {
			return ""
		}
		prefix := auth.Prefix
		if prefix == "" {
			prefix = "Bearer"
		}
		return prefix + " " + c.convertVariable(auth.Token)
	}
	return ""
}

func (c *Converter) query(params []Parameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Disabled {
			continue
		}
		parts = append(parts, url.QueryEscape(p.Name)+"="+url.QueryEscape(c.convertVariable(p.Value)))
	}
	return strings.Join(parts, "&")
}

func dropContentType(headers []request.Tuple) []request.Tuple {
	out := headers[:0:0]
	for _, h := range headers {
		if !strings.EqualFold(h.Key, "Content-Type") {
			out = append(out, h)
		}
	}
	return out
}

func folderPath(parentID string, folders map[string]Resource) string {
	var path []string
	seen := make(map[string]bool)
	for id := parentID; !seen[id]; {
		folder, ok := folders[id]
		if !ok {
			break
		}
		seen[id] = true
		path = append([]string{folder.Name}, path...)
		id = folder.ParentID
	}
	return strings.Join(path, "_")
}

var (
	prefixedVariable = regexp.MustCompile(`\{\{\s*_\.(\w+)\s*\}\}`)
	spacedVariable   = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
	nonIdent         = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// convertVariable normalises Insomnia template tags when unwrapping is on.
// Insomnia uses {{ _.variableName }} or {{ variableName }}.
func (c *Converter) convertVariable(s string) string {
	if !c.unwrapVariables {
		return s
	}
	s = prefixedVariable.ReplaceAllString(s, "{{$1}}")
	return spacedVariable.ReplaceAllString(s, "{{$1}}")
}

// sanitizeName sanitizes a name for use as a slot key.
func sanitizeName(name string) string {
	result := nonIdent.ReplaceAllString(name, "_")
	return strings.ToLower(strings.Trim(result, "_"))
}
