package workflow

import (
	"context"
	"path/filepath"
	"time"

	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/resourceclient"
)

const counterTimeout = 3 * time.Second

// Counters bumps the advisory view and download counters.
type Counters interface {
	IncrementView(ctx context.Context, id domain.ID) apierr.Result[resourceclient.Counts]
	IncrementDownload(ctx context.Context, id domain.ID) apierr.Result[resourceclient.Counts]
}

// Downloader saves a remote file locally.
type Downloader interface {
	Download(ctx context.Context, url, filename string) (string, error)
}

// Viewer opens and downloads resources. Counter bumps are bounded by a short
// timeout and their outcome never changes the primary action's result.
type Viewer struct {
	counters   Counters
	downloader Downloader
}

func NewViewer(counters Counters, downloader Downloader) *Viewer {
	return &Viewer{counters: counters, downloader: downloader}
}

func (v *Viewer) bump(ctx context.Context, fn func(context.Context, domain.ID) apierr.Result[resourceclient.Counts], id domain.ID) apierr.Result[resourceclient.Counts] {
	ctx, cancel := context.WithTimeout(ctx, counterTimeout)
	defer cancel()
	return fn(ctx, id)
}

// Open counts a view and returns the file URL to open.
func (v *Viewer) Open(ctx context.Context, r domain.Resource) (string, apierr.Result[resourceclient.Counts]) {
	counted := v.bump(ctx, v.counters.IncrementView, r.ID)
	return r.FileURL, counted
}

// Download counts a download and saves the file to filename. An empty
// filename keeps the resource's own file name.
func (v *Viewer) Download(ctx context.Context, r domain.Resource, filename string) (string, apierr.Result[resourceclient.Counts], error) {
	counted := v.bump(ctx, v.counters.IncrementDownload, r.ID)
	if filename == "" && r.FileName != "" {
		filename = filepath.Base(r.FileName)
	}
	saved, err := v.downloader.Download(ctx, r.FileURL, filename)
	return saved, counted, err
}
