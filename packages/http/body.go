package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

type requestBody struct {
	reader      io.Reader
	length      int64
	contentType string
}

func (b requestBody) close() {
	if c, ok := b.reader.(io.Closer); ok {
		_ = c.Close()
	}
}

func buildBody(req *request.Model, baseDir string) (requestBody, error) {
	ct := req.ContentType()

	switch ct {
	case request.Binary:
		return openBinaryBody(req.Body(), baseDir)

	case request.Multipart:
		buf, contentType, err := BuildMultipartBody(req.StringTuples(), req.FileTuples(), baseDir)
		if err != nil {
			return requestBody{}, err
		}
		return requestBody{reader: buf, length: int64(buf.Len()), contentType: contentType}, nil

	case request.URLEncoded:
		encoded := EncodeForm(req.StringTuples())
		return requestBody{reader: strings.NewReader(encoded), length: int64(len(encoded)), contentType: ct.MIME()}, nil

	default:
		if req.Body() == "" {
			return requestBody{contentType: ct.MIME()}, nil
		}
		return requestBody{reader: strings.NewReader(req.Body()), length: int64(len(req.Body())), contentType: ct.MIME()}, nil
	}
}

// openBinaryBody opens the file for streaming. The transport closes it.
func openBinaryBody(path, baseDir string) (requestBody, error) {
	if strings.TrimSpace(path) == "" {
		return requestBody{}, &failure.BodyReadError{Path: path, Err: errors.New("no file selected")}
	}

	resolved, err := resolvePath(path, baseDir)
	if err != nil {
		return requestBody{}, &failure.BodyReadError{Path: path, Err: err}
	}

	file, err := os.Open(resolved)
	if err != nil {
		return requestBody{}, &failure.BodyReadError{Path: path, Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return requestBody{}, &failure.BodyReadError{Path: path, Err: err}
	}
	if info.IsDir() {
		file.Close()
		return requestBody{}, &failure.BodyReadError{Path: path, Err: errors.New("is a directory")}
	}

	return requestBody{reader: file, length: info.Size(), contentType: request.MIMEBinary}, nil
}

// BuildMultipartBody writes the string fields, then the file fields, each in
// their given order. Any unreadable file fails with *failure.BodyReadError.
func BuildMultipartBody(stringTuples, fileTuples []request.Tuple, baseDir string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, field := range stringTuples {
		if err := writer.WriteField(field.Key, field.Value); err != nil {
			return nil, "", err
		}
	}

	for _, field := range fileTuples {
		if err := writeFilePart(writer, field, baseDir); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, field request.Tuple, baseDir string) error {
	filePath, err := resolvePath(field.Value, baseDir)
	if err != nil {
		return &failure.BodyReadError{Path: field.Value, Err: err}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return &failure.BodyReadError{Path: field.Value, Err: err}
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field.Key, filepath.Base(filePath))
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, file); err != nil {
		return &failure.BodyReadError{Path: field.Value, Err: err}
	}
	return nil
}

// EncodeForm encodes tuples as application/x-www-form-urlencoded, keeping
// their order. url.Values would sort the keys.
func EncodeForm(tuples []request.Tuple) string {
	parts := make([]string, 0, len(tuples))
	for _, t := range tuples {
		parts = append(parts, url.QueryEscape(t.Key)+"="+url.QueryEscape(t.Value))
	}
	return strings.Join(parts, "&")
}

// ParseFormBody decodes an url-encoded body into ordered tuples.
func ParseFormBody(body string) []request.Tuple {
	var result []request.Tuple
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key, _ := url.QueryUnescape(kv[0])
		value := ""
		if len(kv) == 2 {
			value, _ = url.QueryUnescape(kv[1])
		}
		result = append(result, request.Tuple{Key: key, Value: value})
	}
	return result
}

func resolvePath(path, baseDir string) (string, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if err := validatePathWithinBase(path, baseDir); err != nil {
		return "", err
	}
	return path, nil
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	// Clean and resolve both paths
	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	// Ensure the path starts with the base directory
	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
