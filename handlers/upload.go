package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mjbphoto/gallery/dashboard"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// parseCreateForm reads the multipart upload form. A missing file part is not
// an error here: the dashboard rejects it before any backend call. The
// returned cleanup releases the file and any temporary storage.
func parseCreateForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (dashboard.CreateInput, func(), error) {
	cleanup := func() {}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return dashboard.CreateInput{}, cleanup, fmt.Errorf("failed to parse upload form: %w", err)
	}
	cleanup = func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	in := dashboard.CreateInput{
		Title:    r.PostFormValue("title"),
		Location: r.PostFormValue("location"),
		Category: r.PostFormValue("category"),
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, cleanup, nil
		}
		return in, cleanup, fmt.Errorf("failed to read file part: %w", err)
	}
	release := cleanup
	cleanup = func() {
		file.Close()
		release()
	}

	in.File = &dashboard.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        file,
	}
	return in, cleanup, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

// LimitBody caps request bodies of writes at maxBytes. It runs ahead of the
// CSRF check, which reads the form before any handler does.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
