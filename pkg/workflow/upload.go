// Package workflow holds the multi-step user flows that span the blob store
// and the resource API: uploading, confirmed deletion and counted viewing.
package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/resourceclient"
	"unibro/pkg/storage"
	"unibro/pkg/validate"
)

const DefaultMaxUploadBytes = 10 << 20

// DefaultAllowedExtensions are the file types the upload form accepts.
var DefaultAllowedExtensions = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx", ".txt", ".zip", ".jpg", ".jpeg", ".png"}

// Blobs is the part of the blob client the workflows use.
type Blobs interface {
	Upload(ctx context.Context, file storage.File, folder string) (storage.Uploaded, error)
	Remove(ctx context.Context, pathOrURL string) error
}

// ResourceCreator records uploaded files.
type ResourceCreator interface {
	Upload(ctx context.Context, in resourceclient.CreateInput) (domain.Resource, error)
}

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	StoredToken(ctx context.Context) string
}

// UploadForm is the upload page's input. File is nil until one is selected.
type UploadForm struct {
	File         *storage.File       `validate:"-"`
	Title        string              `label:"Title" validate:"required"`
	CourseName   string              `label:"Course name" validate:"required"`
	Description  string              `label:"Description"`
	ResourceType domain.ResourceType `label:"Resource type" validate:"required,resourcetype"`
	Department   string              `label:"Department" validate:"required"`
	Semester     string              `label:"Semester" validate:"required"`
	Section      string              `label:"Section"`
	Batch        string              `label:"Batch"`
	Year         string              `label:"Year" validate:"required"`
}

// UploaderConfig wires an Uploader.
type UploaderConfig struct {
	Blobs             Blobs
	Resources         ResourceCreator
	Tokens            TokenSource
	MaxBytes          int64
	AllowedExtensions []string
	Logger            *slog.Logger
}

// Uploader validates a form, stores the file and creates the pending resource.
type Uploader struct {
	blobs     Blobs
	resources ResourceCreator
	tokens    TokenSource
	maxBytes  int64
	allowed   []string
	logger    *slog.Logger
}

func NewUploader(cfg UploaderConfig) *Uploader {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	allowed := cfg.AllowedExtensions
	if len(allowed) == 0 {
		allowed = DefaultAllowedExtensions
	}
	normalized := make([]string, 0, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		blobs:     cfg.Blobs,
		resources: cfg.Resources,
		tokens:    cfg.Tokens,
		maxBytes:  maxBytes,
		allowed:   normalized,
		logger:    logger,
	}
}

// Upload runs the whole flow. Local validation failures never touch the
// network. If the resource record cannot be created the stored blob is
// removed best-effort.
func (u *Uploader) Upload(ctx context.Context, form UploadForm) (domain.Resource, error) {
	if form.File == nil || form.File.Body == nil {
		return domain.Resource{}, apierr.Validation("Please select a file to upload")
	}
	form.Title = strings.TrimSpace(form.Title)
	form.CourseName = strings.TrimSpace(form.CourseName)
	if err := validate.Struct(form); err != nil {
		return domain.Resource{}, err
	}
	if form.File.Size > u.maxBytes {
		return domain.Resource{}, apierr.Validation(fmt.Sprintf("File size must be less than %d MB", u.maxBytes>>20))
	}
	ext := strings.ToLower(path.Ext(form.File.Name))
	if !slices.Contains(u.allowed, ext) {
		return domain.Resource{}, apierr.Validation(fmt.Sprintf("File type %q is not allowed", ext))
	}
	if u.tokens != nil && u.tokens.StoredToken(ctx) == "" {
		return domain.Resource{}, apierr.AuthRequired("Please login to upload resources")
	}

	file := *form.File
	pages := 0
	if ext == ".pdf" {
		data, err := io.ReadAll(io.LimitReader(file.Body, u.maxBytes+1))
		if err != nil {
			return domain.Resource{}, fmt.Errorf("read file: %w", err)
		}
		if int64(len(data)) > u.maxBytes {
			return domain.Resource{}, apierr.Validation(fmt.Sprintf("File size must be less than %d MB", u.maxBytes>>20))
		}
		pages = countPDFPages(data)
		if pages == 0 {
			u.logger.Debug("pdf page count unavailable", "file", file.Name)
		}
		file.Body = bytes.NewReader(data)
		file.Size = int64(len(data))
	}

	up, err := u.blobs.Upload(ctx, file, storage.FolderFor(string(form.ResourceType)))
	if err != nil {
		return domain.Resource{}, &apierr.Error{Kind: apierr.KindRemoteRejection, Message: "File upload failed", Err: err}
	}
	res, err := u.resources.Upload(ctx, resourceclient.CreateInput{
		Title:        form.Title,
		CourseName:   form.CourseName,
		Description:  strings.TrimSpace(form.Description),
		ResourceType: form.ResourceType,
		Department:   form.Department,
		Semester:     form.Semester,
		Section:      form.Section,
		Batch:        form.Batch,
		Year:         form.Year,
		FileURL:      up.URL,
		FileName:     file.Name,
		FileSize:     up.SizeMB,
		FileType:     up.MIMEType,
		Pages:        pages,
		StoragePath:  up.Path,
	})
	if err != nil {
		if rmErr := u.blobs.Remove(ctx, up.Path); rmErr != nil {
			u.logger.Warn("remove orphaned blob failed", "path", up.Path, "err", rmErr)
		}
		return domain.Resource{}, err
	}
	return res, nil
}

// countPDFPages returns 0 when the page count cannot be read. The pdf reader
// panics on some malformed files.
func countPDFPages(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
