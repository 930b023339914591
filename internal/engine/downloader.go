package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vidforge/vidforge/internal/store"
)

// Downloader fetches finished artifacts to local disk. Transfers run in the
// background with a cap on how many are active at once; callers never block.
type Downloader struct {
	store  store.Store
	client *http.Client
	dir    string
	sem    chan struct{}
}

// NewDownloader creates a Downloader writing into dir with at most
// maxConcurrent transfers active at a time.
func NewDownloader(st store.Store, dir string, maxConcurrent int, timeout time.Duration) *Downloader {
	return &Downloader{
		store:  st,
		client: &http.Client{Timeout: timeout},
		dir:    dir,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// Launch schedules one artifact transfer and returns immediately. The
// transfer is detached from any request or engine lifecycle, so a shutdown
// does not abort it. A failed transfer is logged and dropped; the remote
// artifact URL on the job remains a fetchable fallback.
func (d *Downloader) Launch(externalID, artifactURL string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in download", "error", r, "external_id", externalID)
			}
		}()

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		if err := d.download(externalID, artifactURL); err != nil {
			slog.Error("artifact download failed", "external_id", externalID, "url", artifactURL, "error", err)
		}
	}()
}

// download streams the artifact to <dir>/<externalID>.mp4 and records the
// path on the job. The record is re-read before the write because it may
// have been updated by a tick while the transfer ran; only the local path
// column is touched.
func (d *Downloader) download(externalID, artifactURL string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}

	path := filepath.Join(d.dir, externalID+".mp4")

	resp, err := d.client.Get(artifactURL)
	if err != nil {
		return fmt.Errorf("fetching artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching artifact: status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating artifact file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing artifact file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := d.store.GetJobByExternalID(ctx, externalID); err != nil {
		return fmt.Errorf("reloading job: %w", err)
	}
	if err := d.store.SetJobLocalArtifactPath(ctx, externalID, path); err != nil {
		return fmt.Errorf("recording artifact path: %w", err)
	}

	slog.Info("artifact downloaded", "external_id", externalID, "path", path)
	return nil
}
