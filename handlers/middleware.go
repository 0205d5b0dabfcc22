package handlers

import (
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

const (
	// CSRFFieldName is the form field carrying the anti-forgery token.
	CSRFFieldName = "csrf_token"

	NoticeFormExpired = "This form has expired. Reload the page and try again."
)

// CSRF protects the cookie-authenticated page forms. Every POST must carry
// the token issued with the page that rendered the form. When secure is
// false the site is served over plain HTTP and the Referer check of the
// library, which assumes HTTPS, is skipped.
func CSRF(authKey []byte, secure bool, failed http.Handler, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName(CSRFFieldName),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Warnf("handlers: rejected %s %s: %v", r.Method, r.URL.Path, csrf.FailureReason(r))
			failed.ServeHTTP(w, r)
		})),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// FormRejected renders the page shown for a POST without a valid token. A
// body over maxBytes is reported as an oversized upload, since the token
// could not be read from it.
func FormRejected(render *Renderer, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 && r.ContentLength > maxBytes {
			render.Error(w, r, http.StatusRequestEntityTooLarge, NoticeFileTooLarge)
			return
		}
		render.Error(w, r, http.StatusForbidden, NoticeFormExpired)
	})
}
