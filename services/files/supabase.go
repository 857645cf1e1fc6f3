// Package filesvc stores uploaded files (team crests) and hands back their public URL.
package filesvc

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	storage "github.com/supabase-community/storage-go"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/team"
)

type supabaseUploader struct {
	client *storage.Client
	bucket string
}

var _ team.Uploader = (*supabaseUploader)(nil) // interface compliance check

func NewSupabaseUploader(conf core.SupabaseConfig) team.Uploader {
	return &supabaseUploader{
		client: storage.NewClient(strings.TrimSuffix(conf.URL, "/")+"/storage/v1", conf.Key, nil),
		bucket: conf.Bucket,
	}
}

// Upload replaces any object already stored under name.
// The storage client has no context support, ctx is only checked before the upload starts.
func (u *supabaseUploader) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	opts := storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	if _, err := u.client.UploadFile(u.bucket, name, r, opts); err != nil {
		return "", errors.Wrapf(err, "uploading %s", name)
	}
	return u.client.GetPublicUrl(u.bucket, name).SignedURL, nil
}
