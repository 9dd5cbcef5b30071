package source

import (
	"context"
	"fmt"

	"github.com/melbahja/got"
)

func (o *Opener) downloadHTTP(ctx context.Context, url string) (string, func(), error) {
	dest, cleanup, err := tempPath(url)
	if err != nil {
		return "", nil, err
	}

	o.logger.Debugf("Downloading %s to %s", url, dest)

	downloader := got.New()
	downloader.Client = o.httpClient
	if err := downloader.Do(got.NewDownload(ctx, url, dest)); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", url, err)
	}

	return dest, cleanup, nil
}
