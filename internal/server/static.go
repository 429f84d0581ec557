package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// newStaticHandler serves root, hides dot-files and adds the reload
// script to HTML responses.
func newStaticHandler(root string) http.Handler {
	files := http.FileServer(http.Dir(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasHiddenSegment(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		if !ShouldInject(r.URL.Path) {
			files.ServeHTTP(w, r)
			return
		}

		buf := newBufferedResponse()
		files.ServeHTTP(buf, r)
		buf.flush(w, r.Method != http.MethodHead)
	})
}

func hasHiddenSegment(urlPath string) bool {
	for _, segment := range strings.Split(urlPath, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// bufferedResponse holds a response so HTML can be rewritten before it
// is sent.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedResponse) flush(w http.ResponseWriter, withBody bool) {
	body := b.body.Bytes()
	if withBody && b.status == http.StatusOK && strings.HasPrefix(b.header.Get("Content-Type"), "text/html") {
		body = InjectScript(body, ReloadScript)
		b.header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	for key, values := range b.header {
		w.Header()[key] = values
	}
	w.WriteHeader(b.status)
	if withBody {
		_, _ = w.Write(body)
	}
}
