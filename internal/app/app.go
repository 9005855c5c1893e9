// Package app wires the SDK together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"unibro/internal/config"
	"unibro/pkg/authclient"
	"unibro/pkg/httpapi"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
	"unibro/pkg/resourceclient"
	"unibro/pkg/session"
	"unibro/pkg/staffclient"
	"unibro/pkg/storage"
	"unibro/pkg/workflow"
)

// ErrBlobNotConfigured is returned by Blob when no bucket credentials exist.
var ErrBlobNotConfigured = errors.New("blob storage is not configured (set blob.endpoint, accessKey, secretKey)")

// Config holds runtime dependencies. Nil overrides are built from File.
type Config struct {
	File        config.FileConfig
	Logger      *slog.Logger
	KV          kv.Store
	Broadcaster notify.Broadcaster
	Objects     storage.ObjectStore
}

// App is the wired SDK.
type App struct {
	Notifier  *notify.Notifier
	Session   *session.Store
	API       *httpapi.Client
	Auth      *authclient.Client
	Resources *resourceclient.Client
	Staff     *staffclient.Client
	Deleter   *workflow.Deleter
	Viewer    *workflow.Viewer

	cfg     config.FileConfig
	logger  *slog.Logger
	objects storage.ObjectStore
	bucket  *storage.Bucket
	closers []io.Closer
}

// New constructs the application. The notifier is created but not started.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fc := cfg.File
	a := &App{cfg: fc, logger: logger, objects: cfg.Objects}

	store := cfg.KV
	if store == nil {
		var err error
		store, err = a.openKV()
		if err != nil {
			return nil, err
		}
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		var err error
		broadcaster, err = a.openBroadcaster()
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	freshness, _ := config.ParseDuration("cacheFreshness", fc.CacheFreshness)
	timeout, _ := config.ParseDuration("requestTimeout", fc.RequestTimeout)

	a.Notifier = notify.New(notify.Config{Broadcaster: broadcaster, Logger: logger})
	a.closers = append(a.closers, a.Notifier)
	a.Session = session.New(session.Config{
		KV:        store,
		Publisher: a.Notifier,
		Freshness: freshness,
		Logger:    logger,
	})
	// The store must drop its cache before any other subscriber re-reads it.
	a.Notifier.Subscribe(a.Session.Handle)

	a.API = httpapi.New(fc.APIBaseURL, httpapi.NewHTTPClient(timeout)).WithLogger(logger)
	a.Auth = authclient.NewClient(a.API, a.Session)
	a.Resources = resourceclient.NewClient(a.API, a.Session)
	a.Staff = staffclient.NewClient(a.API, a.Session)
	a.Deleter = workflow.NewDeleter(a.Resources)
	a.Viewer = workflow.NewViewer(a.Resources, storage.NewBucket(nil, "", a.API.HTTPClient()))
	return a, nil
}

func (a *App) openKV() (kv.Store, error) {
	sc := a.cfg.Session
	switch sc.Backend {
	case config.SessionBackendMemory:
		return kv.NewMemoryStore(), nil
	case config.SessionBackendRedis:
		ttl, _ := config.ParseDuration("session.redisTTL", sc.RedisTTL)
		s, err := kv.NewRedisStore(sc.RedisAddr, sc.RedisPassword, sc.RedisPrefix, ttl)
		if err != nil {
			return nil, fmt.Errorf("init redis session store: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.SessionBackendPostgres:
		s, err := kv.NewGormStore(sc.DatabaseURL, sc.Profile)
		if err != nil {
			return nil, fmt.Errorf("init postgres session store: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		s, err := kv.NewFileStore(sc.Path, sc.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("init file session store: %w", err)
		}
		return s, nil
	}
}

func (a *App) openBroadcaster() (notify.Broadcaster, error) {
	bc := a.cfg.Broadcast
	switch bc.Driver {
	case config.BroadcastFile:
		w, err := notify.NewFileWatcher(a.cfg.Session.Path)
		if err != nil {
			return nil, fmt.Errorf("init file watcher: %w", err)
		}
		return w, nil
	case config.BroadcastRedis:
		b, err := notify.NewRedisBroadcaster(a.cfg.Session.RedisAddr, a.cfg.Session.RedisPassword, bc.RedisChannel)
		if err != nil {
			return nil, fmt.Errorf("init redis broadcaster: %w", err)
		}
		return b, nil
	case config.BroadcastAMQP:
		b, err := notify.NewAMQPBroadcaster(bc.AMQPURL, bc.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("init amqp broadcaster: %w", err)
		}
		return b, nil
	}
	return nil, nil
}

// Start begins listening for session changes made by other processes.
func (a *App) Start(ctx context.Context) error {
	return a.Notifier.Start(ctx)
}

// Blob returns the bucket client, connecting on first use.
func (a *App) Blob() (*storage.Bucket, error) {
	if a.bucket != nil {
		return a.bucket, nil
	}
	bc := a.cfg.Blob
	objects := a.objects
	publicBase := bc.PublicBaseURL
	if objects == nil {
		if !a.cfg.BlobConfigured() {
			return nil, ErrBlobNotConfigured
		}
		m, err := storage.NewMinioStore(bc.Endpoint, bc.AccessKey, bc.SecretKey, bc.Bucket, bc.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("init blob storage: %w", err)
		}
		if publicBase == "" {
			publicBase = m.PublicBaseURL()
		}
		objects = m
	}
	a.bucket = storage.NewBucket(objects, publicBase, a.API.HTTPClient())
	return a.bucket, nil
}

// Uploader returns the upload workflow over the configured bucket.
func (a *App) Uploader() (*workflow.Uploader, error) {
	bucket, err := a.Blob()
	if err != nil {
		return nil, err
	}
	return workflow.NewUploader(workflow.UploaderConfig{
		Blobs:             bucket,
		Resources:         a.Resources,
		Tokens:            a.Session,
		MaxBytes:          a.cfg.Upload.MaxBytes,
		AllowedExtensions: a.cfg.Upload.AllowedExtensions,
		Logger:            a.logger,
	}), nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.FileConfig { return a.cfg }

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
