package local

import (
	"context"
	"errors"
	"io"
	"net/url"

	"github.com/mjbphoto/gallery/media"
)

// Objects exposes a media.Store as a public bucket. publicBase is the URL
// prefix under which objects of the bucket are served.
type Objects struct {
	store      media.Store
	bucket     string
	publicBase string
}

func NewObjects(store media.Store, bucket, publicBase string) *Objects {
	return &Objects{store: store, bucket: bucket, publicBase: publicBase}
}

func (o *Objects) Upload(ctx context.Context, name, contentType string, data io.Reader) error {
	_, err := o.store.Save(ctx, o.bucket, name, contentType, data)
	return err
}

func (o *Objects) PublicURL(name string) string {
	return o.publicBase + "/" + url.PathEscape(name)
}

func (o *Objects) Remove(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := o.store.Delete(ctx, o.bucket, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
