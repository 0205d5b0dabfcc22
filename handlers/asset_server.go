package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/media"
)

// ObjectServer serves objects of the self-hosted store at their public URL:
//
//	r.Get("/storage/{bucket}/*", ObjectServer(store, cfg.Bucket, log))
//
// Only the configured bucket is exposed.
func ObjectServer(store *media.LocalStorage, bucket string, log *zap.SugaredLogger) http.HandlerFunc {
	log.Infof("handlers: serving objects of bucket '%s' from %s", bucket, store.BasePath())

	return func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "bucket") != bucket {
			http.NotFound(w, r)
			return
		}
		name := chi.URLParam(r, "*")
		if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			http.Error(w, "Invalid object path", http.StatusBadRequest)
			return
		}

		file, info, err := store.Get(bucket, name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			log.Errorf("handlers: failed to open object %s/%s: %v", bucket, name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer file.Close()

		// object names are never reused
		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		if rs, ok := file.(io.ReadSeeker); ok {
			http.ServeContent(w, r, name, info.ModTime(), rs)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(info.Size()))
		_, _ = io.Copy(w, file)
	}
}
