package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/utils"
)

// Getter issues a GET and hands back a 2xx response whose body the caller closes.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// Executor downloads direct image URLs to local files.
type Executor struct {
	getter   Getter
	maxBytes int64 // 0 = unlimited
	bufPool  sync.Pool
	log      *logrus.Entry
}

// NewExecutor creates an Executor using the chunk size and size limit of cfg.
func NewExecutor(getter Getter, cfg *config.AppConfig, log *logrus.Entry) *Executor {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = config.DefaultChunkSize
	}
	e := &Executor{
		getter:   getter,
		maxBytes: cfg.MaxImageSizeBytes,
		log:      log,
	}
	e.bufPool.New = func() interface{} {
		b := make([]byte, chunk)
		return &b
	}
	return e
}

// Download fetches directURL into dest. An existing dest is Skipped without
// touching the network. Any error is Failed and leaves nothing at dest.
func (e *Executor) Download(ctx context.Context, directURL, dest string) models.Outcome {
	dlLog := e.log.WithFields(logrus.Fields{"url": directURL, "dest": dest})
	outcome, err := e.fetch(ctx, directURL, dest)
	switch {
	case err != nil:
		dlLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Download failed: %v", err)
	case outcome == models.OutcomeSkipped:
		dlLog.Debug("Already exists, skipped")
	default:
		dlLog.Debug("Downloaded")
	}
	return outcome
}

func (e *Executor) fetch(ctx context.Context, directURL, dest string) (models.Outcome, error) {
	if exists, err := fileExists(dest); err != nil {
		return models.OutcomeFailed, err
	} else if exists {
		return models.OutcomeSkipped, nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.OutcomeFailed, fmt.Errorf("%w: ensuring directory '%s': %w", utils.ErrFilesystem, dir, err)
	}

	resp, err := e.getter.Get(ctx, directURL)
	if err != nil {
		return models.OutcomeFailed, fmt.Errorf("fetch '%s': %w", directURL, err)
	}
	defer resp.Body.Close()

	if e.maxBytes > 0 && resp.ContentLength > e.maxBytes {
		return models.OutcomeFailed, fmt.Errorf("%w: '%s' is %d bytes, limit %d", utils.ErrTooLarge, directURL, resp.ContentLength, e.maxBytes)
	}

	tmpPath, err := e.writeTemp(dir, filepath.Base(dest), resp.Body)
	if err != nil {
		return models.OutcomeFailed, err
	}
	defer os.Remove(tmpPath) // no-op once committed by rename

	return commit(tmpPath, dest)
}

// writeTemp streams body into a hidden temp file beside the destination.
func (e *Executor) writeTemp(dir, name string, body io.Reader) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}

	var reader io.Reader = body
	if e.maxBytes > 0 {
		reader = io.LimitReader(body, e.maxBytes+1)
	}

	bufp := e.bufPool.Get().(*[]byte)
	defer e.bufPool.Put(bufp)

	// Wrapping hides ReaderFrom/WriterTo so the copy really goes chunk by chunk.
	written, err := io.CopyBuffer(struct{ io.Writer }{tmp}, struct{ io.Reader }{reader}, *bufp)
	if err != nil {
		return fail(fmt.Errorf("%w: after %d bytes: %w", utils.ErrResponseBodyRead, written, err))
	}
	if e.maxBytes > 0 && written > e.maxBytes {
		return fail(fmt.Errorf("%w: body exceeds %d bytes", utils.ErrTooLarge, e.maxBytes))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("%w: sync '%s': %w", utils.ErrFilesystem, tmpPath, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}
	return tmpPath, nil
}

// commit publishes tmpPath at dest without overwriting an existing file.
// A hard link fails with EEXIST if another writer got there first; where hard
// links are unsupported it falls back to rename after a final existence check.
func commit(tmpPath, dest string) (models.Outcome, error) {
	err := os.Link(tmpPath, dest)
	if err == nil {
		return models.OutcomeDownloaded, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return models.OutcomeSkipped, nil
	}

	if exists, statErr := fileExists(dest); statErr != nil {
		return models.OutcomeFailed, statErr
	} else if exists {
		return models.OutcomeSkipped, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return models.OutcomeFailed, fmt.Errorf("%w: rename to '%s': %w", utils.ErrFilesystem, dest, err)
	}
	return models.OutcomeDownloaded, nil
}

func fileExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat '%s': %w", utils.ErrFilesystem, p, err)
}
