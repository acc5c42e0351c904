package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/core/app"
	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/output"
	"github.com/abdul-hamid-achik/relay/packages/pool"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/spf13/cobra"
)

// DefaultSlot is the slot used when --slot is not given.
const DefaultSlot = "default"

var (
	methodFlag     string
	slotFlag       string
	headerFlags    []string
	rawTypeFlag    string
	dataFlag       string
	formFlags      []string
	binaryFlag     string
	urlencodedFlag []string
	timeoutFlag    string
	extractFlag    string
	schemaFlag     string
	saveFlag       bool
	noHistoryFlag  bool
)

var sendCmd = &cobra.Command{
	Use:   "send <url>",
	Short: "Send one HTTP request",
	Long: `Send one HTTP request and print the response.

The body is chosen by flag, one kind per request:
  -d/--data        raw text (use @file to read it from a file), typed by --raw-type
  -F/--form        multipart field, key=value or key=@path for a file
  --binary         stream a file as application/octet-stream
  --urlencoded     url-encoded field, key=value

A body makes the default method POST. Finished requests are recorded in
history unless --no-history is given.

Examples:
  relay send https://api.example.com/users
  relay send https://api.example.com/users -d '{"name":"relay"}' --raw-type json
  relay send https://api.example.com/upload -F note=hi -F avatar=@me.png
  relay send https://api.example.com/blob -X PUT --binary ./payload.bin
  relay send https://api.example.com/login --urlencoded user=me --urlencoded pass=secret
  relay send https://api.example.com/users/1 --extract data.name
  relay send https://api.example.com/users -X POST -d @user.json --raw-type json --save --slot users`,
	Args: cobra.ExactArgs(1),
	RunE: sendCommand,
}

func init() {
	sendCmd.Flags().StringVarP(&methodFlag, "method", "X", "", "HTTP method (default GET, or POST when a body is given)")
	sendCmd.Flags().StringVar(&slotFlag, "slot", DefaultSlot, "Composer slot to send from; a live request on the slot is cancelled")
	sendCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, `Request header "Key: Value" (repeatable)`)
	sendCmd.Flags().StringVar(&rawTypeFlag, "raw-type", "plain", "Raw body type: plain, json, xml, html")
	sendCmd.Flags().StringVarP(&dataFlag, "data", "d", "", "Raw body text, or @file")
	sendCmd.Flags().StringArrayVarP(&formFlags, "form", "F", nil, "Multipart field key=value or key=@path (repeatable)")
	sendCmd.Flags().StringVar(&binaryFlag, "binary", "", "File to send as the binary body")
	sendCmd.Flags().StringArrayVar(&urlencodedFlag, "urlencoded", nil, "Url-encoded field key=value (repeatable)")
	sendCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("RELAY_TIMEOUT", ""), "Request timeout (e.g., 5s, 500ms) (env: RELAY_TIMEOUT)")
	sendCmd.Flags().StringVar(&extractFlag, "extract", "", "Print the JSON value at this path instead of the response")
	sendCmd.Flags().StringVar(&schemaFlag, "schema", "", "Validate the JSON response against this JSON Schema file")
	sendCmd.Flags().BoolVar(&saveFlag, "save", false, "Save the composed request to the session under --slot")
	sendCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "Do not record this request in history")

	sendCmd.MarkFlagsMutuallyExclusive("data", "form", "binary", "urlencoded")
}

func sendCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sel, hasBody, err := selectionFromFlags()
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	method := request.MethodGet
	if hasBody {
		method = request.MethodPost
	}
	if methodFlag != "" {
		if method, err = request.ParseMethod(methodFlag); err != nil {
			return &exitError{code: ExitUsageError, err: err}
		}
	}

	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	req, err := sel.Build(method, args[0], headers)
	if err != nil {
		return &exitError{code: ExitInvalidRequest, err: err}
	}

	chk, err := checksFromFlags()
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if saveFlag {
		err := a.Sessions().Update(func(s *dashboard.Session) error {
			s.Set(slotFlag, dashboard.FromModel(req))
			return nil
		})
		if err != nil {
			return &exitError{code: ExitConfigError, err: fmt.Errorf("failed to save session: %w", err)}
		}
	}

	f, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	opts, err := submitOptionsFromFlags()
	if err != nil {
		return err
	}
	return dispatch(cmd, a, f, slotFlag, req, chk, opts...)
}

// selectionFromFlags resolves the body flags into a composer selection.
func selectionFromFlags() (request.Selection, bool, error) {
	switch {
	case len(formFlags) > 0:
		sel := request.Selection{Tab: request.TabForm}
		for _, field := range formFlags {
			t, err := request.ParseTuple(field)
			if err != nil {
				return sel, false, err
			}
			if path, ok := strings.CutPrefix(t.Value, "@"); ok {
				sel.FileTuples = append(sel.FileTuples, request.Tuple{Key: t.Key, Value: path})
			} else {
				sel.StringTuples = append(sel.StringTuples, t)
			}
		}
		return sel, true, nil

	case binaryFlag != "":
		return request.Selection{Tab: request.TabBinary, FilePath: binaryFlag}, true, nil

	case len(urlencodedFlag) > 0:
		sel := request.Selection{Tab: request.TabURLEncoded}
		for _, field := range urlencodedFlag {
			t, err := request.ParseTuple(field)
			if err != nil {
				return sel, false, err
			}
			sel.StringTuples = append(sel.StringTuples, t)
		}
		return sel, true, nil
	}

	mode, err := request.ParseRawMode(rawTypeFlag)
	if err != nil {
		return request.Selection{}, false, err
	}
	sel := request.Selection{Tab: request.TabRaw, RawMode: mode, RawText: dataFlag}
	if path, ok := strings.CutPrefix(dataFlag, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return sel, false, fmt.Errorf("failed to read body file: %w", err)
		}
		sel.RawText = string(data)
	}
	return sel, dataFlag != "", nil
}

func parseHeaders(values []string) ([]request.Tuple, error) {
	headers := make([]request.Tuple, 0, len(values))
	for _, h := range values {
		key, value, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Key: Value\")", h)
		}
		headers = append(headers, request.Tuple{Key: key, Value: strings.TrimSpace(value)})
	}
	return headers, nil
}

func submitOptionsFromFlags() ([]pool.SubmitOption, error) {
	var opts []pool.SubmitOption
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil || d <= 0 {
			return nil, &exitError{code: ExitUsageError, err: fmt.Errorf("invalid timeout %q", timeoutFlag)}
		}
		opts = append(opts, pool.WithDispatchTimeout(d))
	}
	if noHistoryFlag {
		opts = append(opts, pool.WithoutHistory())
	}
	return opts, nil
}

// checks are applied to a completed response after it is printed.
type checks struct {
	extract string
	schema  []byte
}

func checksFromFlags() (checks, error) {
	chk := checks{extract: extractFlag}
	if schemaFlag != "" {
		data, err := os.ReadFile(schemaFlag)
		if err != nil {
			return chk, &exitError{code: ExitUsageError, err: fmt.Errorf("failed to read schema: %w", err)}
		}
		chk.schema = data
	}
	return chk, nil
}

// dispatch sends req on slot, prints the outcome and converts it into an
// exit code. An interrupt cancels the request.
func dispatch(cmd *cobra.Command, a *app.App, f output.Formatter, slot string, req *request.Model, chk checks, opts ...pool.SubmitOption) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, err := a.Send(ctx, slot, req, opts...)
	if err != nil {
		return err
	}

	if chk.extract == "" {
		f.FormatOutcome(o)
	}
	if code := exitCodeFor(o); code != ExitSuccess {
		if chk.extract != "" {
			f.FormatOutcome(o)
		}
		return &exitError{code: code}
	}

	if chk.extract != "" {
		value, ok := o.Response.Lookup(chk.extract)
		if !ok {
			return &exitError{code: ExitCheckFailure, err: fmt.Errorf("no value at %q", chk.extract)}
		}
		if err := printValue(cmd, value); err != nil {
			return err
		}
	}

	if chk.schema != nil {
		if err := o.Response.ValidateSchema(chk.schema); err != nil {
			return &exitError{code: ExitCheckFailure, err: err}
		}
	}
	return nil
}

func printValue(cmd *cobra.Command, value any) error {
	if s, ok := value.(string); ok {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
