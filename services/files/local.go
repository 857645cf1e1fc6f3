package filesvc

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core/team"
)

// MediaPrefix is the URL path local uploads are served under.
const MediaPrefix = "/media"

type localUploader struct {
	root    string
	baseURL string
}

var _ team.Uploader = (*localUploader)(nil) // interface compliance check

// NewLocalUploader writes files under root. URLs are baseURL + MediaPrefix + "/" + name.
func NewLocalUploader(root, baseURL string) team.Uploader {
	return &localUploader{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (u *localUploader) Upload(ctx context.Context, name string, r io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return "", errors.New("empty file name")
	}
	dst := filepath.Join(u.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media directory")
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "writing media file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing media file")
	}
	return u.baseURL + MediaPrefix + "/" + clean, nil
}
