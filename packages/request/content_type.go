package request

import (
	"fmt"
	"mime"
	"strings"
)

// MIME tokens for the supported content types.
const (
	MIMEPlainText  = "text/plain"
	MIMEJSON       = "application/json"
	MIMEXML        = "application/xml"
	MIMEHTML       = "text/html"
	MIMEMultipart  = "multipart/form-data"
	MIMEBinary     = "application/octet-stream"
	MIMEURLEncoded = "application/x-www-form-urlencoded"
)

// ContentType is the closed set of body encodings the composer can produce.
type ContentType int

const (
	PlainText ContentType = iota
	JSON
	XML
	HTML
	Multipart
	Binary
	URLEncoded

	numContentTypes
)

// BodyShape tells which body field of a Model carries the payload.
type BodyShape int

const (
	// ShapeScalar bodies are a single string: raw text, or a file path for Binary.
	ShapeScalar BodyShape = iota
	// ShapeTuples bodies are ordered key/value sets.
	ShapeTuples
)

func (s BodyShape) String() string {
	if s == ShapeTuples {
		return "tuples"
	}
	return "scalar"
}

// RawMode is the raw-tab sub-type. It selects the declared content type and
// the editor syntax mode but never the body shape.
type RawMode int

const (
	ModePlain RawMode = iota
	ModeJSON
	ModeXML
	ModeHTML
)

var rawModeNames = [...]string{
	ModePlain: "PLAIN TEXT",
	ModeJSON:  "JSON",
	ModeXML:   "XML",
	ModeHTML:  "HTML",
}

func (m RawMode) String() string {
	if m < 0 || int(m) >= len(rawModeNames) {
		return fmt.Sprintf("RawMode(%d)", int(m))
	}
	return rawModeNames[m]
}

// ContentType returns the content type declared for a raw body in this mode.
func (m RawMode) ContentType() ContentType {
	switch m {
	case ModeJSON:
		return JSON
	case ModeXML:
		return XML
	case ModeHTML:
		return HTML
	default:
		return PlainText
	}
}

// ParseRawMode accepts the composer labels ("PLAIN TEXT", "JSON", ...) as
// well as short lowercase names ("plain", "json", "xml", "html").
func ParseRawMode(s string) (RawMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "text", "plain text":
		return ModePlain, nil
	case "json":
		return ModeJSON, nil
	case "xml":
		return ModeXML, nil
	case "html":
		return ModeHTML, nil
	}
	return ModePlain, fmt.Errorf("unknown raw type %q (want plain, json, xml or html)", s)
}

// contentTypes is indexed by ContentType; every enum value must have an entry.
var contentTypes = [numContentTypes]struct {
	name  string
	mime  string
	shape BodyShape
}{
	PlainText:  {"plain", MIMEPlainText, ShapeScalar},
	JSON:       {"json", MIMEJSON, ShapeScalar},
	XML:        {"xml", MIMEXML, ShapeScalar},
	HTML:       {"html", MIMEHTML, ShapeScalar},
	Multipart:  {"multipart", MIMEMultipart, ShapeTuples},
	Binary:     {"binary", MIMEBinary, ShapeScalar},
	URLEncoded: {"urlencoded", MIMEURLEncoded, ShapeTuples},
}

func (c ContentType) valid() bool {
	return c >= 0 && c < numContentTypes
}

func (c ContentType) String() string {
	if !c.valid() {
		return fmt.Sprintf("ContentType(%d)", int(c))
	}
	return contentTypes[c].name
}

// MIME returns the standard media type token.
func (c ContentType) MIME() string {
	if !c.valid() {
		return ""
	}
	return contentTypes[c].mime
}

// Shape returns the body shape this content type requires.
func (c ContentType) Shape() BodyShape {
	if !c.valid() {
		return ShapeScalar
	}
	return contentTypes[c].shape
}

// RawMode reports the raw sub-type for raw content types. Binary, Multipart
// and URLEncoded are not raw and return false.
func (c ContentType) RawMode() (RawMode, bool) {
	switch c {
	case PlainText:
		return ModePlain, true
	case JSON:
		return ModeJSON, true
	case XML:
		return ModeXML, true
	case HTML:
		return ModeHTML, true
	default:
		return ModePlain, false
	}
}

// ParseContentType maps a MIME string to a ContentType. Parameters such as
// charset or boundary are ignored.
func ParseContentType(s string) (ContentType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlainText, false
	}
	mediaType, _, err := mime.ParseMediaType(s)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(s, ";", 2)[0]))
	}
	for i, ct := range contentTypes {
		if ct.mime == mediaType {
			return ContentType(i), true
		}
	}
	return PlainText, false
}

// ContentTypes lists every supported content type in declaration order.
func ContentTypes() []ContentType {
	out := make([]ContentType, 0, numContentTypes)
	for c := ContentType(0); c < numContentTypes; c++ {
		out = append(out, c)
	}
	return out
}
