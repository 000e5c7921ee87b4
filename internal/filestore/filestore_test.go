package filestore

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "colagem.pdf"), []byte("pdf-bytes"), 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	return NewSigner("test-secret", "http://localhost:8080", dir)
}

func TestSignedURL_Verifies(t *testing.T) {
	s := newTestSigner(t)
	now := time.Now()

	raw := s.SignedURL("colagem.pdf", now, DownloadTTL)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}

	if !strings.HasPrefix(u.Path, "/files/") {
		t.Fatalf("path = %q, want /files/ prefix", u.Path)
	}

	q := u.Query()
	if !s.Verify("colagem.pdf", q.Get("expires"), q.Get("sig"), now) {
		t.Fatalf("freshly signed url did not verify")
	}
}

func TestVerify_Expired(t *testing.T) {
	s := newTestSigner(t)
	now := time.Now()

	u, _ := url.Parse(s.SignedURL("colagem.pdf", now, DownloadTTL))
	q := u.Query()

	if s.Verify("colagem.pdf", q.Get("expires"), q.Get("sig"), now.Add(DownloadTTL+time.Minute)) {
		t.Fatalf("expired url must not verify")
	}
}

func TestVerify_TamperedPath(t *testing.T) {
	s := newTestSigner(t)
	now := time.Now()

	u, _ := url.Parse(s.SignedURL("colagem.pdf", now, DownloadTTL))
	q := u.Query()

	if s.Verify("other.pdf", q.Get("expires"), q.Get("sig"), now) {
		t.Fatalf("signature must be bound to the file path")
	}
}

func TestServeHTTP_ValidSignature(t *testing.T) {
	s := newTestSigner(t)

	raw := s.SignedURL("colagem.pdf", time.Now(), DownloadTTL)
	u, _ := url.Parse(raw)

	r := httptest.NewRequest(http.MethodGet, u.Path+"?"+u.RawQuery, nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(res.Body)
	if string(body) != "pdf-bytes" {
		t.Fatalf("body = %q", string(body))
	}
}

func TestServeHTTP_BadSignature(t *testing.T) {
	s := newTestSigner(t)

	r := httptest.NewRequest(http.MethodGet, "/files/colagem.pdf?expires=9999999999&sig=deadbeef", nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, r)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}
