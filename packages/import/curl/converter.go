// Package curl imports curl commands as composer requests.
package curl

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

// Converter converts curl commands to request models.
type Converter struct {
	keepContentType bool
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithContentTypeHeader keeps an explicit Content-Type header in the
// imported headers even when it was used to pick the body content type.
func WithContentTypeHeader(keep bool) Option {
	return func(c *Converter) {
		c.keepContentType = keep
	}
}

// NewConverter creates a new curl converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParsedCurl represents a parsed curl command.
type ParsedCurl struct {
	Method          string
	URL             string
	Headers         []request.Tuple
	Data            []string
	BinaryFile      string
	URLEncoded      []request.Tuple
	FormFields      []request.Tuple
	FormFiles       []request.Tuple
	Get             bool
	BasicAuth       string
	Insecure        bool
	FollowRedirects bool
	Name            string

	methodSet bool
}

// Header returns the last value set for key, case-insensitively.
func (p *ParsedCurl) Header(key string) (string, bool) {
	value, found := "", false
	for _, h := range p.Headers {
		if strings.EqualFold(h.Key, key) {
			value, found = h.Value, true
		}
	}
	return value, found
}

// Body is the joined -d payload, as curl sends it.
func (p *ParsedCurl) Body() string {
	return strings.Join(p.Data, "&")
}

// Imported is one converted command.
type Imported struct {
	Name  string
	State dashboard.State
}

// ConvertCommand converts a single curl command to a composer state.
func (c *Converter) ConvertCommand(curlCmd string) (*Imported, error) {
	parsed, err := c.Parse(curlCmd)
	if err != nil {
		return nil, err
	}
	model, err := c.ToModel(parsed)
	if err != nil {
		return nil, err
	}
	return &Imported{Name: parsed.Name, State: dashboard.FromModel(model)}, nil
}

// ConvertFile converts a file containing curl commands.
func (c *Converter) ConvertFile(path string) ([]*Imported, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var commands []string
	var currentCmd strings.Builder
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Handle line continuations
		if strings.HasSuffix(line, "\\") {
			currentCmd.WriteString(strings.TrimSuffix(line, "\\"))
			currentCmd.WriteString(" ")
			continue
		}

		currentCmd.WriteString(line)
		commands = append(commands, currentCmd.String())
		currentCmd.Reset()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if currentCmd.Len() > 0 {
		commands = append(commands, currentCmd.String())
	}

	imported := make([]*Imported, 0, len(commands))
	for i, cmd := range commands {
		converted, err := c.ConvertCommand(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to convert command %d: %w", i+1, err)
		}
		imported = append(imported, converted)
	}

	return imported, nil
}

// Parse parses a curl command string into a ParsedCurl struct.
func (c *Converter) Parse(curlCmd string) (*ParsedCurl, error) {
	parsed := &ParsedCurl{Method: "GET"}

	curlCmd = strings.TrimSpace(curlCmd)
	if strings.HasPrefix(curlCmd, "curl ") {
		curlCmd = strings.TrimPrefix(curlCmd, "curl ")
	} else if curlCmd == "curl" {
		return nil, fmt.Errorf("no URL specified")
	}

	tokens := tokenize(curlCmd)

	value := func(i int) (string, error) {
		if i+1 < len(tokens) {
			return tokens[i+1], nil
		}
		return "", fmt.Errorf("missing value for %s", tokens[i])
	}

	i := 0
	for i < len(tokens) {
		token := tokens[i]

		switch token {
		case "-X", "--request":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Method = strings.ToUpper(v)
			parsed.methodSet = true
			i += 2

		case "-H", "--header":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			if parts := strings.SplitN(v, ":", 2); len(parts) == 2 {
				parsed.Headers = append(parsed.Headers, request.Tuple{
					Key:   strings.TrimSpace(parts[0]),
					Value: strings.TrimSpace(parts[1]),
				})
			}
			i += 2

		case "-d", "--data", "--data-raw", "--data-ascii":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(v, "@") && token != "--data-raw" {
				parsed.BinaryFile = strings.TrimPrefix(v, "@")
			} else {
				parsed.Data = append(parsed.Data, v)
			}
			i += 2

		case "--data-binary":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(v, "@") {
				parsed.BinaryFile = strings.TrimPrefix(v, "@")
			} else {
				parsed.Data = append(parsed.Data, v)
			}
			i += 2

		case "--data-urlencode":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.URLEncoded = append(parsed.URLEncoded, parseURLEncodeArg(v))
			i += 2

		case "-F", "--form", "--form-string":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			key, val, ok := strings.Cut(v, "=")
			if !ok {
				return nil, fmt.Errorf("invalid form field %q", v)
			}
			if token != "--form-string" && strings.HasPrefix(val, "@") {
				path, _, _ := strings.Cut(strings.TrimPrefix(val, "@"), ";")
				parsed.FormFiles = append(parsed.FormFiles, request.Tuple{Key: key, Value: path})
			} else {
				parsed.FormFields = append(parsed.FormFields, request.Tuple{Key: key, Value: val})
			}
			i += 2

		case "-G", "--get":
			parsed.Get = true
			i++

		case "-u", "--user":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.BasicAuth = v
			i += 2

		case "-k", "--insecure":
			parsed.Insecure = true
			i++

		case "-L", "--location":
			parsed.FollowRedirects = true
			i++

		case "-A", "--user-agent":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, request.Tuple{Key: "User-Agent", Value: v})
			i += 2

		case "-e", "--referer":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, request.Tuple{Key: "Referer", Value: v})
			i += 2

		case "-b", "--cookie":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, request.Tuple{Key: "Cookie", Value: v})
			i += 2

		case "--url":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.URL = v
			i += 2

		default:
			switch {
			case strings.HasPrefix(token, "-"):
				// Skip unknown flags with potential values
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i += 2
				} else {
					i++
				}
			default:
				if parsed.URL == "" && isURL(token) {
					parsed.URL = token
				}
				i++
			}
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	// A body without an explicit method means POST, as curl does
	if !parsed.methodSet && !parsed.Get && parsed.hasBody() {
		parsed.Method = "POST"
	}

	if parsed.BasicAuth != "" {
		token := base64.StdEncoding.EncodeToString([]byte(parsed.BasicAuth))
		parsed.Headers = append(parsed.Headers, request.Tuple{Key: "Authorization", Value: "Basic " + token})
	}

	parsed.Name = generateName(parsed.URL, parsed.Method)

	return parsed, nil
}

func (p *ParsedCurl) hasBody() bool {
	return len(p.Data) > 0 || p.BinaryFile != "" || len(p.URLEncoded) > 0 ||
		len(p.FormFields) > 0 || len(p.FormFiles) > 0
}

// ToModel picks the body content type the way curl would send it:
// -F means multipart, --data-binary @file means a binary file,
// --data-urlencode means url-encoded, and -d follows the Content-Type
// header (curl's default for -d is url-encoded).
func (c *Converter) ToModel(parsed *ParsedCurl) (*request.Model, error) {
	method, err := request.ParseMethod(parsed.Method)
	if err != nil {
		return nil, err
	}

	target := parsed.URL
	headerCT, hasCT := parsed.Header("Content-Type")

	if parsed.Get {
		query := parsed.Body()
		if len(parsed.URLEncoded) > 0 {
			query = joinQuery(query, http.EncodeForm(parsed.URLEncoded))
		}
		if query != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + query
		}
		return request.NewRaw(method, target, request.ModePlain, "", c.headers(parsed, false)), nil
	}

	switch {
	case len(parsed.FormFields) > 0 || len(parsed.FormFiles) > 0:
		return request.NewMultipart(method, target, parsed.FormFields, parsed.FormFiles, c.headers(parsed, true)), nil

	case parsed.BinaryFile != "":
		return request.NewBinary(method, target, parsed.BinaryFile, c.headers(parsed, true)), nil

	case len(parsed.URLEncoded) > 0:
		fields := append(http.ParseFormBody(parsed.Body()), parsed.URLEncoded...)
		return request.NewURLEncoded(method, target, fields, c.headers(parsed, true)), nil

	case len(parsed.Data) > 0:
		body := parsed.Body()
		ct, known := request.ParseContentType(headerCT)
		if !hasCT {
			ct, known = sniff(body), true
		}
		if !known {
			// Unrecognised Content-Type: send as plain text and keep the header
			return request.NewRaw(method, target, request.ModePlain, body, c.headers(parsed, false)), nil
		}
		switch ct {
		case request.URLEncoded:
			return request.NewURLEncoded(method, target, http.ParseFormBody(body), c.headers(parsed, true)), nil
		case request.Multipart, request.Binary:
			return request.NewRaw(method, target, request.ModePlain, body, c.headers(parsed, false)), nil
		default:
			mode, _ := ct.RawMode()
			return request.NewRaw(method, target, mode, body, c.headers(parsed, true)), nil
		}

	default:
		return request.NewRaw(method, target, request.ModePlain, "", c.headers(parsed, false)), nil
	}
}

// headers returns the parsed headers, dropping Content-Type when the body
// content type already carries it.
func (c *Converter) headers(parsed *ParsedCurl, impliedCT bool) request.Option {
	if !impliedCT || c.keepContentType {
		return request.WithHeaders(parsed.Headers)
	}
	out := make([]request.Tuple, 0, len(parsed.Headers))
	for _, h := range parsed.Headers {
		if !strings.EqualFold(h.Key, "Content-Type") {
			out = append(out, h)
		}
	}
	return request.WithHeaders(out)
}

func sniff(body string) request.ContentType {
	trimmed := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return request.JSON
	case strings.HasPrefix(trimmed, "<"):
		return request.XML
	case formPair.MatchString(trimmed):
		return request.URLEncoded
	default:
		return request.PlainText
	}
}

var formPair = regexp.MustCompile(`^[^=&\s]+=[^&\s]*(&[^=&\s]+=[^&\s]*)*$`)

// parseURLEncodeArg handles curl's --data-urlencode forms "name=content"
// and "content". The value is stored decoded; encoding happens on send.
func parseURLEncodeArg(v string) request.Tuple {
	if key, val, ok := strings.Cut(v, "="); ok && key != "" {
		return request.Tuple{Key: key, Value: val}
	}
	return request.Tuple{Key: strings.TrimPrefix(v, "="), Value: ""}
}

func joinQuery(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "&" + b
	}
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inSingleQuote {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case '\'':
			if !inDoubleQuote {
				inSingleQuote = !inSingleQuote
			} else {
				current.WriteRune(r)
			}
		case '"':
			if !inSingleQuote {
				inDoubleQuote = !inDoubleQuote
			} else {
				current.WriteRune(r)
			}
		case ' ', '\t', '\n':
			if inSingleQuote || inDoubleQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// isURL checks if a string looks like a URL.
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

var urlPattern = regexp.MustCompile(`https?://[^/]+(/[^?#]*)?`)

// generateName generates a request name from the URL and method.
func generateName(url, method string) string {
	matches := urlPattern.FindStringSubmatch(url)

	path := "/"
	if len(matches) > 1 && matches[1] != "" {
		path = matches[1]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		path = "root"
	}

	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "-", "_")

	return strings.ToLower(method) + "_" + path
}
