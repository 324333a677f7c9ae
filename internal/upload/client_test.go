package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeVideo(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uploaded_video.mp4")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// receivedPart records what the fake interpretation server got.
type receivedPart struct {
	method      string
	path        string
	fileName    string
	contentType string
	body        []byte
}

func newProcessServer(t *testing.T, status int, respBody string, got *receivedPart) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			if f, hdr, err := r.FormFile(FieldName); err == nil {
				got.fileName = hdr.Filename
				got.contentType = hdr.Header.Get("Content-Type")
				got.body, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpload_Success(t *testing.T) {
	video := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, 1024)
	path := writeVideo(t, video)

	var got receivedPart
	srv := newProcessServer(t, http.StatusOK, `{"sentence":"HELLO"}`, &got)

	c := New(srv.URL, srv.Client())
	res := c.Upload(context.Background(), path)

	s, ok := res.(Success)
	if !ok {
		t.Fatalf("result = %v, want Success", res)
	}
	if s.Sentence != "HELLO" {
		t.Errorf("Sentence = %q, want HELLO", s.Sentence)
	}

	if got.method != http.MethodPost {
		t.Errorf("method = %q, want POST", got.method)
	}
	if got.path != "/process_video" {
		t.Errorf("path = %q, want /process_video", got.path)
	}
	if got.fileName != "uploaded_video.mp4" {
		t.Errorf("filename = %q, want uploaded_video.mp4", got.fileName)
	}
	if got.contentType != "video/mp4" {
		t.Errorf("part content type = %q, want video/mp4", got.contentType)
	}
	if !bytes.Equal(got.body, video) {
		t.Errorf("server received %d bytes, want %d identical bytes", len(got.body), len(video))
	}
}

func TestUpload_TrailingSlashBaseURL(t *testing.T) {
	var got receivedPart
	srv := newProcessServer(t, http.StatusOK, `{"sentence":"hi"}`, &got)

	c := New(srv.URL+"/", srv.Client())
	if _, ok := c.Upload(context.Background(), writeVideo(t, []byte("v"))).(Success); !ok {
		t.Fatal("expected Success")
	}
	if got.path != "/process_video" {
		t.Errorf("path = %q, want /process_video", got.path)
	}
}

func TestUpload_NonOKStatusCodes(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError, http.StatusBadGateway} {
		var got receivedPart
		srv := newProcessServer(t, status, `{"sentence":"ignored"}`, &got)

		c := New(srv.URL, srv.Client())
		res := c.Upload(context.Background(), writeVideo(t, []byte("video")))

		f, ok := res.(HTTPFailure)
		if !ok {
			t.Errorf("status %d: result = %v, want HTTPFailure", status, res)
			continue
		}
		if f.StatusCode != status {
			t.Errorf("StatusCode = %d, want %d", f.StatusCode, status)
		}
		if !strings.Contains(f.StatusDescription, http.StatusText(status)) {
			t.Errorf("StatusDescription = %q, want it to contain %q", f.StatusDescription, http.StatusText(status))
		}
	}
}

func TestUpload_BadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing field", `{"text":"HELLO"}`},
		{"null sentence", `{"sentence":null}`},
		{"non-string sentence", `{"sentence":42}`},
		{"not json", `HELLO`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got receivedPart
			srv := newProcessServer(t, http.StatusOK, tt.body, &got)

			res := New(srv.URL, srv.Client()).Upload(context.Background(), writeVideo(t, []byte("video")))
			f, ok := res.(HTTPFailure)
			if !ok {
				t.Fatalf("result = %v, want HTTPFailure", res)
			}
			if f.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want 200", f.StatusCode)
			}
		})
	}
}

func TestUpload_Created(t *testing.T) {
	var got receivedPart
	srv := newProcessServer(t, http.StatusCreated, `{"sentence":"thank you","confidence":0.9}`, &got)

	res := New(srv.URL, srv.Client()).Upload(context.Background(), writeVideo(t, []byte("video")))
	if s, ok := res.(Success); !ok || s.Sentence != "thank you" {
		t.Errorf("result = %v, want Success{thank you}", res)
	}
}

func TestUpload_EmptySentenceIsSuccess(t *testing.T) {
	var got receivedPart
	srv := newProcessServer(t, http.StatusOK, `{"sentence":""}`, &got)

	res := New(srv.URL, srv.Client()).Upload(context.Background(), writeVideo(t, []byte("video")))
	if s, ok := res.(Success); !ok || s.Sentence != "" {
		t.Errorf("result = %v, want Success with empty sentence", res)
	}
}

func TestUpload_ServerDown(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	res := New(srv.URL, nil).Upload(context.Background(), writeVideo(t, []byte("video")))
	f, ok := res.(TransportFailure)
	if !ok {
		t.Fatalf("result = %v, want TransportFailure", res)
	}
	if f.Reason == "" {
		t.Error("Reason should carry the transport error message")
	}
}

func TestUpload_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(srv.URL, &http.Client{Timeout: 50 * time.Millisecond})
	res := c.Upload(context.Background(), writeVideo(t, []byte("video")))
	if _, ok := res.(TransportFailure); !ok {
		t.Fatalf("result = %v, want TransportFailure", res)
	}
}

func TestUpload_MissingLocalFile(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	res := New(srv.URL, srv.Client()).Upload(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	if _, ok := res.(TransportFailure); !ok {
		t.Fatalf("result = %v, want TransportFailure", res)
	}
	if called {
		t.Error("no request should reach the server when the local file is missing")
	}
}

func TestStart_DeliversExactlyOnce(t *testing.T) {
	var got receivedPart
	srv := newProcessServer(t, http.StatusOK, `{"sentence":"HELLO"}`, &got)

	ch := New(srv.URL, srv.Client()).Start(context.Background(), writeVideo(t, []byte("video")))

	select {
	case res := <-ch:
		if s, ok := res.(Success); !ok || s.Sentence != "HELLO" {
			t.Errorf("result = %v, want Success{HELLO}", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	if _, open := <-ch; open {
		t.Error("channel should be closed after the single result")
	}
}

func TestResultStrings(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Success{Sentence: "HELLO"}, `success: "HELLO"`},
		{HTTPFailure{StatusCode: 500, StatusDescription: "500 Internal Server Error"}, "http failure (500): 500 Internal Server Error"},
		{TransportFailure{Reason: "dial tcp: refused"}, "transport failure: dial tcp: refused"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	c := New(srv.URL, srv.Client())
	if !c.IsReachable(context.Background()) {
		t.Error("a server answering 404 should count as reachable")
	}

	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Error("a closed server should not be reachable")
	}
}
