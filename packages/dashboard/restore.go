package dashboard

import (
	"log/slog"

	"github.com/abdul-hamid-achik/relay/packages/logging"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

// Restore maps a state back onto the composer. Absent or unrecognised
// content types are not errors: the composer gets a blank raw body, blank
// is true and an info line is logged.
func Restore(s State, logger *slog.Logger) (request.Selection, bool) {
	logger = logging.OrNop(logger)

	if s.ContentType == "" {
		logger.Info("dashboard loaded with blank request body")
		return request.Blank(), true
	}

	ct, ok := request.ParseContentType(s.ContentType)
	if !ok {
		logger.Info("dashboard loaded with blank request body",
			slog.String("unknown_content_type", s.ContentType))
		return request.Blank(), true
	}

	body := ""
	if s.Body != nil {
		body = *s.Body
	}

	switch ct {
	case request.Binary:
		return request.Selection{Tab: request.TabBinary, FilePath: body}, false
	case request.Multipart:
		return request.Selection{
			Tab:          request.TabForm,
			StringTuples: cloneTuples(s.StringTuples),
			FileTuples:   cloneTuples(s.FileTuples),
		}, false
	case request.URLEncoded:
		return request.Selection{Tab: request.TabURLEncoded, StringTuples: cloneTuples(s.StringTuples)}, false
	default:
		mode, _ := ct.RawMode()
		return request.Selection{Tab: request.TabRaw, RawMode: mode, RawText: body}, false
	}
}
