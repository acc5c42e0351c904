package curl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/relay/packages/request"
)

func TestParse_SimpleGet(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "GET" {
		t.Errorf("expected method GET, got %s", parsed.Method)
	}
	if parsed.URL != "https://api.example.com/users" {
		t.Errorf("expected URL https://api.example.com/users, got %s", parsed.URL)
	}
}

func TestParse_NoURL(t *testing.T) {
	converter := NewConverter()

	for _, cmd := range []string{"curl", "curl -X POST", "curl -H"} {
		if _, err := converter.Parse(cmd); err == nil {
			t.Errorf("Parse(%q): expected error", cmd)
		}
	}
}

func TestParse_HeadersKeepOrder(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -H "X-B: 2" -H "X-A: 1" -H "x-b: 3" https://api.example.com`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []request.Tuple{{Key: "X-B", Value: "2"}, {Key: "X-A", Value: "1"}, {Key: "x-b", Value: "3"}}
	if len(parsed.Headers) != len(want) {
		t.Fatalf("expected %d headers, got %d", len(want), len(parsed.Headers))
	}
	for i, h := range want {
		if parsed.Headers[i] != h {
			t.Errorf("header %d: got %+v, expected %+v", i, parsed.Headers[i], h)
		}
	}
	if v, _ := parsed.Header("X-B"); v != "3" {
		t.Errorf("expected last X-B value 3, got %s", v)
	}
}

func TestParse_ImplicitPost(t *testing.T) {
	converter := NewConverter()

	// Without -X, -d should imply POST
	parsed, err := converter.Parse(`curl -d "name=John" https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("expected implicit POST method, got %s", parsed.Method)
	}

	parsed, err = converter.Parse(`curl -G -d "q=1" https://api.example.com/search`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Method != "GET" {
		t.Errorf("expected -G to keep GET, got %s", parsed.Method)
	}
}

func TestParse_Flags(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -k -L https://api.example.com`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !parsed.Insecure {
		t.Error("expected Insecure to be true")
	}
	if !parsed.FollowRedirects {
		t.Error("expected FollowRedirects to be true")
	}
}

func TestParse_BasicAuthBecomesHeader(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -u admin:password123 https://api.example.com/admin`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, _ := parsed.Header("Authorization"); v != "Basic YWRtaW46cGFzc3dvcmQxMjM=" {
		t.Errorf("unexpected Authorization header %q", v)
	}
}

func TestToModel_ContentTypes(t *testing.T) {
	tests := []struct {
		name   string
		cmd    string
		want   request.ContentType
		body   string
		tuples []request.Tuple
	}{
		{
			name: "json by header",
			cmd:  `curl -X POST https://api.example.com/users -H "Content-Type: application/json" -d '{"name":"John"}'`,
			want: request.JSON,
			body: `{"name":"John"}`,
		},
		{
			name: "json sniffed",
			cmd:  `curl https://api.example.com/users -d '[1,2]'`,
			want: request.JSON,
			body: `[1,2]`,
		},
		{
			name: "xml by header",
			cmd:  `curl https://api.example.com -H "Content-Type: application/xml; charset=utf-8" -d '<a/>'`,
			want: request.XML,
			body: `<a/>`,
		},
		{
			name: "plain text",
			cmd:  `curl https://api.example.com -d 'hello world'`,
			want: request.PlainText,
			body: `hello world`,
		},
		{
			name:   "form pairs",
			cmd:    `curl https://api.example.com -d 'b=2' -d 'a=hello%20there'`,
			want:   request.URLEncoded,
			tuples: []request.Tuple{{Key: "b", Value: "2"}, {Key: "a", Value: "hello there"}},
		},
		{
			name:   "data-urlencode",
			cmd:    `curl https://api.example.com --data-urlencode 'q=a b&c'`,
			want:   request.URLEncoded,
			tuples: []request.Tuple{{Key: "q", Value: "a b&c"}},
		},
		{
			name:   "multipart fields",
			cmd:    `curl https://api.example.com -F name=relay -F kind=client`,
			want:   request.Multipart,
			tuples: []request.Tuple{{Key: "name", Value: "relay"}, {Key: "kind", Value: "client"}},
		},
		{
			name: "binary file",
			cmd:  `curl https://api.example.com --data-binary @payload.bin`,
			want: request.Binary,
			body: "payload.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converter := NewConverter()
			parsed, err := converter.Parse(tt.cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			model, err := converter.ToModel(parsed)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := model.Validate(); err != nil {
				t.Fatalf("model does not validate: %v", err)
			}

			if model.ContentType() != tt.want {
				t.Errorf("expected content type %s, got %s", tt.want, model.ContentType())
			}
			if model.Method() != request.MethodPost {
				t.Errorf("expected POST, got %s", model.Method())
			}
			if tt.tuples == nil {
				if model.Body() != tt.body {
					t.Errorf("expected body %q, got %q", tt.body, model.Body())
				}
				return
			}
			got := model.StringTuples()
			if len(got) != len(tt.tuples) {
				t.Fatalf("expected %d tuples, got %d: %+v", len(tt.tuples), len(got), got)
			}
			for i := range got {
				if got[i] != tt.tuples[i] {
					t.Errorf("tuple %d: got %+v, expected %+v", i, got[i], tt.tuples[i])
				}
			}
		})
	}
}

func TestToModel_MultipartFiles(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl https://api.example.com/upload -F note=hi -F "avatar=@/tmp/me.png;type=image/png"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model, err := converter.ToModel(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := model.FileTuples()
	if len(files) != 1 || files[0] != (request.Tuple{Key: "avatar", Value: "/tmp/me.png"}) {
		t.Errorf("unexpected file tuples %+v", files)
	}
	if strs := model.StringTuples(); len(strs) != 1 || strs[0].Key != "note" {
		t.Errorf("unexpected string tuples %+v", strs)
	}
}

func TestToModel_DropsImpliedContentType(t *testing.T) {
	cmd := `curl https://api.example.com -H "Content-Type: application/json" -H "Accept: application/json" -d '{}'`

	parsed, err := NewConverter().Parse(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model, err := NewConverter().ToModel(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := model.Header("Content-Type"); ok {
		t.Error("expected Content-Type to be folded into the content type")
	}
	if _, ok := model.Header("Accept"); !ok {
		t.Error("expected Accept to be kept")
	}

	model, err = NewConverter(WithContentTypeHeader(true)).ToModel(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := model.Header("Content-Type"); !ok {
		t.Error("expected Content-Type to be kept with WithContentTypeHeader")
	}
}

func TestToModel_UnknownContentTypeKeepsHeader(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl https://api.example.com -H "Content-Type: application/vnd.api+json" -d '{}'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model, err := converter.ToModel(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.ContentType() != request.PlainText {
		t.Errorf("expected plain text, got %s", model.ContentType())
	}
	if v, _ := model.Header("Content-Type"); v != "application/vnd.api+json" {
		t.Errorf("expected original Content-Type header, got %q", v)
	}
}

func TestToModel_GetMovesDataToQuery(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -G https://api.example.com/search?lang=go -d q=relay --data-urlencode "tag=a b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model, err := converter.ToModel(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := "https://api.example.com/search?lang=go&q=relay&tag=a+b"; model.Target() != want {
		t.Errorf("expected target %s, got %s", want, model.Target())
	}
	if model.Body() != "" {
		t.Errorf("expected empty body, got %q", model.Body())
	}
}

func TestConvertCommand(t *testing.T) {
	converter := NewConverter()

	imported, err := converter.ConvertCommand(`curl -X PUT https://api.example.com/users/1 -H "Content-Type: application/json" -d '{"id":1}'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if imported.Name != "put_users_1" {
		t.Errorf("expected name put_users_1, got %s", imported.Name)
	}
	if imported.State.ContentType != request.MIMEJSON {
		t.Errorf("expected %s, got %s", request.MIMEJSON, imported.State.ContentType)
	}
	if imported.State.Body == nil || *imported.State.Body != `{"id":1}` {
		t.Errorf("unexpected body %v", imported.State.Body)
	}

	model, err := imported.State.Model()
	if err != nil {
		t.Fatalf("state does not rebuild: %v", err)
	}
	if model.Method() != request.MethodPut {
		t.Errorf("expected PUT, got %s", model.Method())
	}
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.sh")
	content := "# saved requests\n" +
		"curl https://api.example.com/users\n" +
		"\n" +
		"curl -X POST https://api.example.com/users \\\n" +
		"  -d 'name=relay'\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	imported, err := NewConverter().ConvertFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(imported) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(imported))
	}
	if imported[0].Name != "get_users" || imported[1].Name != "post_users" {
		t.Errorf("unexpected names %s, %s", imported[0].Name, imported[1].Name)
	}
	if imported[1].State.ContentType != request.MIMEURLEncoded {
		t.Errorf("expected url-encoded body, got %s", imported[1].State.ContentType)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{
			input:    `-X POST -d "hello world"`,
			expected: []string{"-X", "POST", "-d", "hello world"},
		},
		{
			input:    `-H 'Content-Type: application/json'`,
			expected: []string{"-H", "Content-Type: application/json"},
		},
		{
			input:    `-d '{"key": "value"}'`,
			expected: []string{"-d", `{"key": "value"}`},
		},
	}

	for _, tt := range tests {
		tokens := tokenize(tt.input)
		if len(tokens) != len(tt.expected) {
			t.Errorf("tokenize(%q): got %d tokens, expected %d", tt.input, len(tokens), len(tt.expected))
			continue
		}
		for i, tok := range tokens {
			if tok != tt.expected[i] {
				t.Errorf("tokenize(%q)[%d]: got %q, expected %q", tt.input, i, tok, tt.expected[i])
			}
		}
	}
}

func TestGenerateName(t *testing.T) {
	tests := []struct {
		url    string
		method string
		expect string
	}{
		{"https://api.example.com/users", "GET", "get_users"},
		{"https://api.example.com/users/123", "GET", "get_users_123"},
		{"https://api.example.com/", "POST", "post_root"},
		{"https://api.example.com/api/v1/users", "PUT", "put_api_v1_users"},
	}

	for _, tt := range tests {
		result := generateName(tt.url, tt.method)
		if result != tt.expect {
			t.Errorf("generateName(%q, %q): got %q, expected %q", tt.url, tt.method, result, tt.expect)
		}
	}
}
