package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ProcessPath is appended to the base URL for every upload.
	ProcessPath = "/process_video"

	// FieldName is the multipart part name the server reads the video from.
	FieldName = "file"

	MimeType = "video/mp4"

	maxResponseSize = 1 << 20 // 1MB
)

// Request is a single upload attempt.
type Request struct {
	LocalFilePath string
	MimeType      string
}

// NewRequest returns a Request for path with the fixed video MIME type.
func NewRequest(path string) Request {
	return Request{LocalFilePath: path, MimeType: MimeType}
}

// Client uploads videos to the interpretation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client targeting baseURL. The caller owns httpClient and its
// timeout; nil means a client with transport defaults.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// serverResponse mirrors the JSON returned by POST /process_video.
type serverResponse struct {
	Sentence *string `json:"sentence"`
}

// Start runs Upload on its own goroutine. The returned channel receives
// exactly one Result and is then closed.
func (c *Client) Start(ctx context.Context, path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- c.Upload(ctx, path)
	}()
	return ch
}

// Upload sends the file at path as multipart form data and maps the outcome
// to a Result. It never retries.
func (c *Client) Upload(ctx context.Context, path string) Result {
	return c.Do(ctx, NewRequest(path))
}

// Do performs one upload attempt for r.
func (c *Client) Do(ctx context.Context, r Request) Result {
	f, err := os.Open(r.LocalFilePath)
	if err != nil {
		return TransportFailure{Reason: err.Error()}
	}
	defer f.Close()

	mimeType := r.MimeType
	if mimeType == "" {
		mimeType = MimeType
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBody(mw, f, filepath.Base(r.LocalFilePath), mimeType))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProcessPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		return TransportFailure{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("uploading video", "path", r.LocalFilePath, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		c.logger.Warn("upload transport failure", "error", err)
		return TransportFailure{Reason: err.Error()}
	}
	defer resp.Body.Close()
	// Unblock the body writer if the server answered before reading everything.
	defer pr.CloseWithError(io.ErrClosedPipe)

	return c.decode(resp)
}

func (c *Client) decode(resp *http.Response) Result {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upload rejected", "status", resp.StatusCode)
		return HTTPFailure{StatusCode: resp.StatusCode, StatusDescription: resp.Status}
	}

	var body serverResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		c.logger.Warn("undecodable upload response", "status", resp.StatusCode, "error", err)
		return HTTPFailure{
			StatusCode:        resp.StatusCode,
			StatusDescription: fmt.Sprintf("decoding response: %v", err),
		}
	}
	if body.Sentence == nil {
		c.logger.Warn("upload response without sentence", "status", resp.StatusCode)
		return HTTPFailure{StatusCode: resp.StatusCode, StatusDescription: "response missing sentence"}
	}

	c.logger.Debug("upload succeeded", "status", resp.StatusCode)
	return Success{Sentence: *body.Sentence}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeBody(mw *multipart.Writer, src io.Reader, fileName, mimeType string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("streaming video: %w", err)
	}
	return mw.Close()
}
