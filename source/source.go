// Package source opens the inputs of the upload command: local files and
// glob patterns, http(s) URLs and s3:// objects. Gzip and zstd compressed
// inputs are decompressed transparently based on their extension.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoMatches is returned when a glob pattern matches no file.
var ErrNoMatches = errors.New("pattern matches no files")

// Opener opens input locations.
type Opener struct {
	httpClient *http.Client
	s3         S3Params
	logger     log.Logger
}

// NewOpener ...
func NewOpener(httpClient *http.Client, s3 S3Params, logger log.Logger) *Opener {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Opener{
		httpClient: httpClient,
		s3:         s3,
		logger:     logger,
	}
}

// Expand resolves glob patterns of local locations into the matching files.
// Remote locations and plain paths are returned unchanged.
func Expand(locations []string) ([]string, error) {
	var expanded []string
	for _, location := range locations {
		if isRemote(location) || !strings.ContainsAny(location, "*?[{") {
			expanded = append(expanded, location)
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(location))
		matches, err := doublestar.Glob(os.DirFS(base), pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", location, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: %w", location, ErrNoMatches)
		}
		for _, match := range matches {
			expanded = append(expanded, filepath.Join(filepath.FromSlash(base), filepath.FromSlash(match)))
		}
	}
	return expanded, nil
}

// Open returns the decompressed contents of a location. Remote locations are
// downloaded to a temporary file first, which is removed on Close.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var (
		path    string
		cleanup func()
		err     error
	)

	switch {
	case strings.HasPrefix(location, "s3://"):
		path, cleanup, err = o.downloadS3(ctx, location)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		path, cleanup, err = o.downloadHTTP(ctx, location)
	default:
		path, cleanup = location, func() {}
	}
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open %s: %w", location, err)
	}

	reader, err := decompress(file, compressionOf(location))
	if err != nil {
		_ = file.Close()
		cleanup()
		return nil, fmt.Errorf("decompress %s: %w", location, err)
	}

	return &sourceReader{
		Reader: reader,
		close: func() error {
			defer cleanup()
			if closer, ok := reader.(io.Closer); ok && closer != io.Closer(file) {
				if err := closer.Close(); err != nil {
					o.logger.Warnf("Failed to close decompressor of %s: %s", location, err)
				}
			}
			return file.Close()
		},
	}, nil
}

type sourceReader struct {
	io.Reader
	close func() error
}

func (r *sourceReader) Close() error {
	return r.close()
}

func isRemote(location string) bool {
	for _, scheme := range []string{"s3://", "http://", "https://"} {
		if strings.HasPrefix(location, scheme) {
			return true
		}
	}
	return false
}

func tempPath(location string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "pitchfork-source")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	name := filepath.Base(strings.SplitN(location, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "input"
	}
	return filepath.Join(dir, name), func() { _ = os.RemoveAll(dir) }, nil
}
