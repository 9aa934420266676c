// Package transport issues the two kinds of calls the AR24 API accepts: a GET
// with query parameters and a multipart POST. Credentials are injected on
// every call and every response goes through envelope decoding.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
)

// maxResponseSize bounds the response bodies we are willing to buffer.
const maxResponseSize = 10 << 20

// Field is one multipart form value. Order is preserved on the wire.
type Field struct {
	Name  string
	Value string
}

// Credentials identify the caller. UserID is empty only for the call that
// resolves it.
type Credentials struct {
	Token  string
	UserID string
}

// Transport sends requests relative to a base URI.
type Transport struct {
	baseURL    *url.URL
	webhook    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Transport. The base URI gets a trailing slash so endpoint
// paths resolve beneath it.
func New(baseURI, webhook string, httpClient *http.Client, logger *slog.Logger) (*Transport, error) {
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}
	u, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("invalid base URI %q: %w", baseURI, err)
	}

	return &Transport{
		baseURL:    u,
		webhook:    webhook,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Get calls endpoint with params encoded as a query string. params is a
// struct with `url` tags or nil.
func (t *Transport) Get(ctx context.Context, endpoint string, creds Credentials, params any) (*Result, error) {
	values := url.Values{}
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query: %w", err)
		}
		values = v
	}
	values.Set("token", creds.Token)
	if creds.UserID != "" {
		values.Set("id_user", creds.UserID)
	}

	target := t.baseURL.ResolveReference(&url.URL{Path: endpoint, RawQuery: values.Encode()})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return t.do(req, endpoint)
}

// Post calls endpoint with a multipart body: token, id_user and webhook
// first, then fields in order, then the file at filePath when not empty.
// The body is streamed; the file is closed before Post returns or, at the
// latest, when the body writer stops.
func (t *Transport) Post(ctx context.Context, endpoint string, creds Credentials, fields []Field, filePath string) (*Result, error) {
	var file *os.File
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open attachment: %w", err)
		}
		file = f
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	parts := make([]Field, 0, len(fields)+3)
	parts = append(parts,
		Field{Name: "token", Value: creds.Token},
		Field{Name: "id_user", Value: creds.UserID},
		Field{Name: "webhook", Value: t.webhook},
	)
	parts = append(parts, fields...)

	go func() {
		if file != nil {
			defer file.Close()
		}
		pw.CloseWithError(writeMultipart(mw, parts, file))
	}()

	target := t.baseURL.ResolveReference(&url.URL{Path: endpoint})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return t.do(req, endpoint)
}

// do executes req and decodes the envelope of the response.
func (t *Transport) do(req *http.Request, endpoint string) (*Result, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.DebugContext(req.Context(), "ar24 request failed",
			"request_id", requestID,
			"method", req.Method,
			"endpoint", endpoint,
			"error", err,
		)
		return nil, fmt.Errorf("ar24 %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	t.logger.DebugContext(req.Context(), "ar24 request",
		"request_id", requestID,
		"method", req.Method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return Decode(resp.StatusCode, body)
}

func writeMultipart(mw *multipart.Writer, fields []Field, file *os.File) error {
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f.Name, err)
		}
	}

	if file != nil {
		if err := writeFilePart(mw, file); err != nil {
			return err
		}
	}

	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, file *os.File) error {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("failed to detect attachment type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind attachment: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(file.Name()))))
	header.Set("Content-Type", mtype.String())

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stream attachment: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
