package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"echo":"` + string(body) + `"}`))
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name             string
		acceptEncoding   string
		compressRequest  bool
		wantContentCoded bool
	}{
		{name: "client accepts gzip", acceptEncoding: "gzip", wantContentCoded: true},
		{name: "client does not accept gzip", acceptEncoding: ""},
		{name: "compressed request body", acceptEncoding: "gzip", compressRequest: true, wantContentCoded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := "cart"
			var requestBody io.Reader = strings.NewReader(payload)
			if tt.compressRequest {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				if _, err := gz.Write([]byte(payload)); err != nil {
					t.Fatalf("write gzip: %v", err)
				}
				if err := gz.Close(); err != nil {
					t.Fatalf("close gzip: %v", err)
				}
				requestBody = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/api/cart", requestBody)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
			}

			gotCoded := res.Header.Get("Content-Encoding") == "gzip"
			if gotCoded != tt.wantContentCoded {
				t.Fatalf("content-encoding gzip = %v, want %v", gotCoded, tt.wantContentCoded)
			}

			var body []byte
			var err error
			if gotCoded {
				gr, grErr := gzip.NewReader(res.Body)
				if grErr != nil {
					t.Fatalf("new gzip reader: %v", grErr)
				}
				defer gr.Close()
				body, err = io.ReadAll(gr)
			} else {
				body, err = io.ReadAll(res.Body)
			}
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			if string(body) != `{"echo":"cart"}` {
				t.Fatalf("body = %q", string(body))
			}
		})
	}
}
