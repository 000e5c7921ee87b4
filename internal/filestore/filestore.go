// Package filestore выдаёт подписанные ссылки на цифровые файлы товаров
// и обслуживает их скачивание.
package filestore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DownloadTTL определяет срок действия подписанной ссылки на скачивание.
const DownloadTTL = time.Hour

// Signer подписывает ссылки на файлы и проверяет подписи при скачивании.
type Signer struct {
	secret  []byte
	baseURL string
	root    http.FileSystem
}

// NewSigner создаёт Signer с указанным секретом, базовым URL сервиса и
// каталогом файлов на диске.
func NewSigner(secret, baseURL, rootDir string) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		root:    http.Dir(rootDir),
	}
}

// SignedURL возвращает временную подписанную ссылку на файл.
func (s *Signer) SignedURL(filePath string, now time.Time, ttl time.Duration) string {
	clean := strings.TrimLeft(path.Clean("/"+filePath), "/")
	expires := strconv.FormatInt(now.Add(ttl).Unix(), 10)

	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", s.sign(clean, expires))

	return s.baseURL + "/files/" + clean + "?" + q.Encode()
}

// Verify проверяет подпись и срок действия ссылки на файл.
func (s *Signer) Verify(filePath, expires, sig string, now time.Time) bool {
	ts, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || now.Unix() > ts {
		return false
	}

	expected := s.sign(filePath, expires)
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (s *Signer) sign(filePath, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(filePath))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP отдаёт файл, если подпись действительна и не истекла.
func (s *Signer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimLeft(path.Clean("/"+strings.TrimPrefix(r.URL.Path, "/files/")), "/")
	if filePath == "" || filePath == "." {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if !s.Verify(filePath, q.Get("expires"), q.Get("sig"), time.Now()) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	f, err := s.root.Open(filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(filePath)+"\"")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
