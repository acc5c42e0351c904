package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/import/curl"
	"github.com/abdul-hamid-achik/relay/packages/import/insomnia"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	importPrefixFlag  string
	importPrintFlag   bool
	importCommandFlag string
	importUnwrapFlag  bool
)

var importCmd = &cobra.Command{
	Use:   "import <format> <source>",
	Short: "Import requests into the session",
	Long: `Import requests from other tools as saved composer tabs.

Supported formats:
  curl    - curl command lines (a file of them, or one with -c)
  postman  - Postman Collection v2.1
  insomnia - Insomnia export (v4)

Each imported request becomes a session slot named after its method and
path. Existing slots with the same name are overwritten.

Examples:
  relay import curl requests.sh
  relay import curl -c "curl -X POST https://api.example.com/users -d '{}'"
  relay import curl requests.sh --prefix staging_
  relay import postman collection.json
  relay import postman collection.json --print
  relay import insomnia insomnia.json`,
}

var importCurlCmd = &cobra.Command{
	Use:   "curl [file]",
	Short: "Import curl commands",
	Args:  cobra.MaximumNArgs(1),
	RunE:  importCurlCommand,
}

var importPostmanCmd = &cobra.Command{
	Use:   "postman <collection-file>",
	Short: "Import from Postman collection",
	Long: `Import requests from a Postman Collection v2.1 file.

Folders are flattened into slot names. Raw, url-encoded, form-data and
file bodies are kept; disabled headers are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: importPostmanCommand,
}

var importInsomniaCmd = &cobra.Command{
	Use:   "insomnia <export-file>",
	Short: "Import from Insomnia export",
	Long: `Import requests from an Insomnia v4 export file.

Folders are flattened into slot names and query parameters are appended
to the URL. Template tags such as {{ _.baseUrl }} are kept as written;
relay does not resolve them.`,
	Args: cobra.ExactArgs(1),
	RunE: importInsomniaCommand,
}

func init() {
	for _, c := range []*cobra.Command{importCurlCmd, importPostmanCmd, importInsomniaCmd} {
		c.Flags().StringVar(&importPrefixFlag, "prefix", "", "Prefix for imported slot names")
		c.Flags().BoolVar(&importPrintFlag, "print", false, "Print the imported tabs as YAML instead of saving them")
	}
	importCurlCmd.Flags().StringVarP(&importCommandFlag, "command", "c", "", "A single curl command to import")

	importInsomniaCmd.Flags().BoolVar(&importUnwrapFlag, "unwrap-variables", false, "Rewrite {{ _.name }} template tags to {{name}}")

	importCmd.AddCommand(importCurlCmd)
	importCmd.AddCommand(importPostmanCmd)
	importCmd.AddCommand(importInsomniaCmd)
}

func importCurlCommand(cmd *cobra.Command, args []string) error {
	converter := curl.NewConverter()

	var imported []*curl.Imported
	switch {
	case importCommandFlag != "" && len(args) == 0:
		one, err := converter.ConvertCommand(importCommandFlag)
		if err != nil {
			return &exitError{code: ExitUsageError, err: fmt.Errorf("failed to convert curl command: %w", err)}
		}
		imported = append(imported, one)
	case importCommandFlag == "" && len(args) == 1:
		all, err := converter.ConvertFile(args[0])
		if err != nil {
			return &exitError{code: ExitUsageError, err: fmt.Errorf("failed to convert curl file: %w", err)}
		}
		imported = all
	default:
		return &exitError{code: ExitUsageError, err: fmt.Errorf("give either a file or --command")}
	}

	tabs := make([]dashboard.Tab, 0, len(imported))
	for _, im := range imported {
		tabs = append(tabs, dashboard.Tab{Slot: im.Name, State: im.State})
	}
	return saveImported(cmd, tabs)
}

func importPostmanCommand(cmd *cobra.Command, args []string) error {
	tabs, err := convertPostmanCollection(args[0])
	if err != nil {
		return &exitError{code: ExitUsageError, err: fmt.Errorf("failed to convert Postman collection: %w", err)}
	}
	return saveImported(cmd, tabs)
}

func importInsomniaCommand(cmd *cobra.Command, args []string) error {
	converter := insomnia.NewConverter(insomnia.WithUnwrappedVariables(importUnwrapFlag))
	imported, err := converter.ConvertFile(args[0])
	if err != nil {
		return &exitError{code: ExitUsageError, err: fmt.Errorf("failed to convert Insomnia export: %w", err)}
	}

	tabs := make([]dashboard.Tab, 0, len(imported))
	for _, im := range imported {
		tabs = append(tabs, dashboard.Tab{Slot: im.Name, State: im.State})
	}
	return saveImported(cmd, tabs)
}

// saveImported prefixes and de-duplicates slot names, then prints or saves.
func saveImported(cmd *cobra.Command, tabs []dashboard.Tab) error {
	seen := make(map[string]int)
	for i := range tabs {
		slot := importPrefixFlag + tabs[i].Slot
		seen[slot]++
		if n := seen[slot]; n > 1 {
			slot = fmt.Sprintf("%s_%d", slot, n)
		}
		tabs[i].Slot = slot
	}

	if importPrintFlag {
		data, err := yaml.Marshal(dashboard.Session{Tabs: tabs})
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.Sessions().Update(func(s *dashboard.Session) error {
		for _, tab := range tabs {
			s.Set(tab.Slot, tab.State)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, tab := range tabs {
		fmt.Fprintf(cmd.OutOrStdout(), "  + %s  %s %s\n", tab.Slot, tab.State.Method, tab.State.Target)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d request(s) into %s\n", len(tabs), a.Sessions().Path())
	return nil
}

// PostmanCollection represents a Postman Collection v2.1 structure
type PostmanCollection struct {
	Info PostmanInfo   `json:"info"`
	Item []PostmanItem `json:"item"`
}

type PostmanInfo struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

type PostmanItem struct {
	Name    string          `json:"name"`
	Request *PostmanRequest `json:"request,omitempty"`
	Item    []PostmanItem   `json:"item,omitempty"` // For folders
}

type PostmanRequest struct {
	Method string          `json:"method"`
	Header []PostmanHeader `json:"header,omitempty"`
	Body   *PostmanBody    `json:"body,omitempty"`
	URL    PostmanURL      `json:"url"`
	Auth   *PostmanAuth    `json:"auth,omitempty"`
}

type PostmanHeader struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type PostmanBody struct {
	Mode       string            `json:"mode"`
	Raw        string            `json:"raw,omitempty"`
	URLEncoded []PostmanKV       `json:"urlencoded,omitempty"`
	FormData   []PostmanFormData `json:"formdata,omitempty"`
	File       PostmanFile       `json:"file,omitempty"`
	Options    struct {
		Raw struct {
			Language string `json:"language"`
		} `json:"raw"`
	} `json:"options,omitempty"`
}

type PostmanKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PostmanFormData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"` // "text" or "file"
	Src   string `json:"src,omitempty"`
}

type PostmanFile struct {
	Src string `json:"src"`
}

// PostmanURL accepts both the string and the object form of "url".
type PostmanURL struct {
	Raw string `json:"raw"`
}

func (u *PostmanURL) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		u.Raw = raw
		return nil
	}
	type plain PostmanURL
	return json.Unmarshal(data, (*plain)(u))
}

type PostmanAuth struct {
	Type   string      `json:"type"`
	Bearer []PostmanKV `json:"bearer,omitempty"`
	Basic  []PostmanKV `json:"basic,omitempty"`
}

// header returns the Authorization header for bearer and basic auth.
func (a *PostmanAuth) header() (request.Tuple, bool) {
	lookup := func(kvs []PostmanKV, key string) string {
		for _, kv := range kvs {
			if kv.Key == key {
				return kv.Value
			}
		}
		return ""
	}

	switch a.Type {
	case "bearer":
		if token := lookup(a.Bearer, "token"); token != "" {
			return request.Tuple{Key: "Authorization", Value: "Bearer " + token}, true
		}
	case "basic":
		creds := lookup(a.Basic, "username") + ":" + lookup(a.Basic, "password")
		return request.Tuple{Key: "Authorization", Value: "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))}, true
	}
	return request.Tuple{}, false
}

func convertPostmanCollection(path string) ([]dashboard.Tab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var collection PostmanCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse Postman collection: %w", err)
	}

	var tabs []dashboard.Tab
	if err := convertPostmanItems(&tabs, collection.Item, ""); err != nil {
		return nil, err
	}
	return tabs, nil
}

func convertPostmanItems(tabs *[]dashboard.Tab, items []PostmanItem, prefix string) error {
	for _, item := range items {
		// If it's a folder (has nested items), recurse
		if len(item.Item) > 0 {
			next := item.Name
			if prefix != "" {
				next = prefix + "/" + item.Name
			}
			if err := convertPostmanItems(tabs, item.Item, next); err != nil {
				return err
			}
			continue
		}

		// Skip if no request
		if item.Request == nil {
			continue
		}

		model, err := postmanModel(item.Request)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Name, err)
		}

		name := item.Name
		if prefix != "" {
			name = prefix + "_" + name
		}
		*tabs = append(*tabs, dashboard.Tab{
			Slot:  sanitizePostmanName(name),
			State: dashboard.FromModel(model),
		})
	}
	return nil
}

func postmanModel(req *PostmanRequest) (*request.Model, error) {
	method := request.MethodGet
	if req.Method != "" {
		m, err := request.ParseMethod(req.Method)
		if err != nil {
			return nil, err
		}
		method = m
	}

	var headers []request.Tuple
	contentType := ""
	for _, h := range req.Header {
		if h.Disabled {
			continue
		}
		if strings.EqualFold(h.Key, "Content-Type") {
			contentType = h.Value
		}
		headers = append(headers, request.Tuple{Key: h.Key, Value: h.Value})
	}
	if req.Auth != nil {
		if h, ok := req.Auth.header(); ok {
			headers = append(headers, h)
		}
	}
	opt := request.WithHeaders(headers)
	target := req.URL.Raw

	if req.Body == nil {
		return request.NewRaw(method, target, request.ModePlain, "", opt), nil
	}

	switch req.Body.Mode {
	case "urlencoded":
		fields := make([]request.Tuple, 0, len(req.Body.URLEncoded))
		for _, kv := range req.Body.URLEncoded {
			fields = append(fields, request.Tuple{Key: kv.Key, Value: kv.Value})
		}
		return request.NewURLEncoded(method, target, fields, opt), nil

	case "formdata":
		var strs, files []request.Tuple
		for _, fd := range req.Body.FormData {
			if fd.Type == "file" {
				files = append(files, request.Tuple{Key: fd.Key, Value: fd.Src})
			} else {
				strs = append(strs, request.Tuple{Key: fd.Key, Value: fd.Value})
			}
		}
		return request.NewMultipart(method, target, strs, files, opt), nil

	case "file":
		return request.NewBinary(method, target, req.Body.File.Src, opt), nil

	default:
		mode := request.ModePlain
		if ct, ok := request.ParseContentType(contentType); ok {
			if m, raw := ct.RawMode(); raw {
				mode = m
			}
		} else if lang := req.Body.Options.Raw.Language; lang != "" {
			if m, err := request.ParseRawMode(lang); err == nil {
				mode = m
			}
		}
		return request.NewRaw(method, target, mode, req.Body.Raw, opt), nil
	}
}

// sanitizePostmanName sanitizes a name for use as a slot key
func sanitizePostmanName(name string) string {
	result := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)

	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	result = strings.Trim(result, "_")

	return strings.ToLower(result)
}
