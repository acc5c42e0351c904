package request

import "fmt"

// Tab identifies the body editor a composer has active.
type Tab int

const (
	TabRaw Tab = iota
	TabForm
	TabBinary
	TabURLEncoded
)

func (t Tab) String() string {
	switch t {
	case TabRaw:
		return "raw"
	case TabForm:
		return "form"
	case TabBinary:
		return "binary"
	case TabURLEncoded:
		return "urlencoded"
	default:
		return fmt.Sprintf("Tab(%d)", int(t))
	}
}

// Selection is what a composer tab holds when dispatch is requested. Only
// the fields belonging to Tab are read by Build.
type Selection struct {
	Tab          Tab
	RawMode      RawMode
	RawText      string
	FilePath     string
	StringTuples []Tuple
	FileTuples   []Tuple
}

// Blank is the view a composer falls back to when nothing can be restored.
func Blank() Selection {
	return Selection{Tab: TabRaw, RawMode: ModePlain}
}

// Build resolves the selection into exactly one Model.
func (s Selection) Build(method Method, target string, headers []Tuple) (*Model, error) {
	opt := WithHeaders(headers)

	var m *Model
	switch s.Tab {
	case TabRaw:
		m = NewRaw(method, target, s.RawMode, s.RawText, opt)
	case TabForm:
		m = NewMultipart(method, target, s.StringTuples, s.FileTuples, opt)
	case TabBinary:
		m = NewBinary(method, target, s.FilePath, opt)
	case TabURLEncoded:
		m = NewURLEncoded(method, target, s.StringTuples, opt)
	default:
		return nil, fmt.Errorf("unknown composer tab %d", int(s.Tab))
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// SelectionOf reverses Build: it reports which tab and fields a composer
// should show for m.
func SelectionOf(m *Model) Selection {
	switch m.ContentType() {
	case Multipart:
		return Selection{Tab: TabForm, StringTuples: m.StringTuples(), FileTuples: m.FileTuples()}
	case Binary:
		return Selection{Tab: TabBinary, FilePath: m.Body()}
	case URLEncoded:
		return Selection{Tab: TabURLEncoded, StringTuples: m.StringTuples()}
	default:
		mode, _ := m.ContentType().RawMode()
		return Selection{Tab: TabRaw, RawMode: mode, RawText: m.Body()}
	}
}
