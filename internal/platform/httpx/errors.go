package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors handlers wrap to pick a response status.
var (
	ErrNotFound         = errors.New("kayıt bulunamadı")
	ErrValidation       = errors.New("geçersiz istek")
	ErrForbidden        = errors.New("yetkisiz işlem")
	ErrUnauthorized     = errors.New("oturum gerekli")
	ErrUnprocessable    = errors.New("işlenemeyen veri")
	ErrUnsupportedMedia = errors.New("desteklenmeyen dosya")
	ErrUnavailable      = errors.New("hizmet kullanılamıyor")
	ErrTimeout          = errors.New("zaman aşımı")
)

var problemTable = []struct {
	err    error
	status int
	title  string
}{
	{ErrNotFound, http.StatusNotFound, "Bulunamadı"},
	{ErrValidation, http.StatusBadRequest, "Geçersiz istek"},
	{ErrUnauthorized, http.StatusUnauthorized, "Oturum gerekli"},
	{ErrForbidden, http.StatusForbidden, "Yetkisiz işlem"},
	{ErrUnprocessable, http.StatusUnprocessableEntity, "İşlenemeyen veri"},
	{ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "Desteklenmeyen dosya"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Hizmet kullanılamıyor"},
	{ErrTimeout, http.StatusGatewayTimeout, "Zaman aşımı"},
}

// StatusOf returns the status and title for err. Unmapped errors are 500.
func StatusOf(err error) (int, string) {
	for _, p := range problemTable {
		if errors.Is(err, p.err) {
			return p.status, p.title
		}
	}
	return http.StatusInternalServerError, "Sunucu hatası"
}

// RespondError writes err as a problem response. The message of an unmapped
// error is never exposed.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusOf(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}
