package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tripsync/config"
	"tripsync/db/db"
	"tripsync/db/mem"
	"tripsync/db/pg"
	"tripsync/mq/gcppubsub"
	"tripsync/mq/goch"
	"tripsync/mq/mq"
	"tripsync/mq/rabbit"
	"tripsync/packing"
	"tripsync/planner"
	"tripsync/tripdata"
	"tripsync/upload"
)

const feedBufferSize = 256

// closers runs cleanups in reverse order of registration.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openFeed(ctx context.Context, cfg config.Config, logger *slog.Logger, cl *closers) (mq.ChangeFeed, error) {
	var (
		feed mq.ChangeFeed
		err  error
	)
	switch cfg.MqMode {
	case mq.ModeGoChan:
		feed = goch.NewChannelChangeFeed(feedBufferSize)
	case mq.ModeRabbitMQ:
		addr := cfg.RabbitMQURL
		if addr == "" {
			addr = rabbit.CreateAmqpURL()
		}
		conn, cerr := rabbit.NewRabbitConnection(addr)
		if cerr != nil {
			return nil, cerr
		}
		cl.add(func() { _ = conn.Close() })
		feed, err = rabbit.NewRabbitChangeFeed(conn, logger)
	case mq.ModeGCPPubSub:
		project := cfg.GCPProject
		if project == "" {
			if project, err = gcppubsub.GetGCPProjectID(); err != nil {
				return nil, err
			}
		}
		feed, err = gcppubsub.NewGCPChangeFeed(ctx, project, logger)
	default:
		return nil, fmt.Errorf("unknown mq mode %q", cfg.MqMode)
	}
	if err != nil {
		return nil, err
	}
	cl.add(func() {
		if err := feed.Close(); err != nil {
			logger.Warn("close change feed", "error", err)
		}
	})
	logger.Info("change feed ready", "mode", cfg.MqMode)
	return feed, nil
}

func openStore(cfg config.Config, feed mq.ChangeFeed, logger *slog.Logger, cl *closers) (db.EntityStore, error) {
	switch cfg.StoreMode {
	case config.StoreMemory:
		s := mem.NewInMemoryStore(feed, mem.WithLogger(logger))
		cl.add(s.Close)
		return s, nil
	case config.StorePostgres:
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = pg.CreateDSN()
		}
		gdb, err := pg.InitPostgresGORM(dsn)
		if err != nil {
			return nil, err
		}
		cl.add(func() { pg.CloseGORM(gdb) })
		return pg.NewGORMStore(gdb, feed, logger), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.StoreMode)
	}
}

func openPacking(ctx context.Context, cfg config.Config, logger *slog.Logger, cl *closers) (*packing.List, error) {
	var storage packing.Storage
	switch cfg.PackingStore {
	case config.PackingFile:
		fs, err := packing.NewFileStorage(cfg.PackingPath)
		if err != nil {
			return nil, err
		}
		storage = fs
	case config.PackingSQLite:
		dsn, err := sqliteDSN(cfg.PackingPath)
		if err != nil {
			return nil, err
		}
		ss, err := packing.OpenSQLiteStorage(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open packing storage: %w", err)
		}
		cl.add(func() { _ = ss.Close() })
		storage = ss
	default:
		return nil, fmt.Errorf("unknown packing store %q", cfg.PackingStore)
	}
	// check-map keys are filled in once the roster snapshot arrives
	return packing.Open(ctx, storage, nil, packing.WithLogger(logger))
}

// sqliteDSN passes DSNs and *.db paths through and turns anything else into
// a packing.db file inside that directory.
func sqliteDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.Ext(path) == ".db" {
		return path, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create packing dir %s: %w", path, err)
	}
	return filepath.Join(path, "packing.db"), nil
}

func openUploader(ctx context.Context, cfg config.Config) (upload.Uploader, error) {
	switch cfg.UploadMode {
	case config.UploadPreset:
		endpoint, preset := cfg.UploadEndpoint, cfg.UploadPreset
		if endpoint == "" {
			endpoint = upload.DefaultEndpoint
		}
		if preset == "" {
			preset = upload.DefaultPreset
		}
		return upload.NewPresetUploader(endpoint, preset, &http.Client{Timeout: 30 * time.Second}), nil
	case config.UploadS3:
		u, err := upload.NewS3Uploader(ctx, upload.S3Config{
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown upload mode %q", cfg.UploadMode)
	}
}

// openPlanner wires every backend named by cfg and returns the planner with
// the store it writes to. Nothing is started.
func openPlanner(ctx context.Context, cfg config.Config, logger *slog.Logger, cl *closers) (*planner.Planner, db.EntityStore, error) {
	trip, err := tripdata.Load(cfg.TripData)
	if err != nil {
		return nil, nil, err
	}
	feed, err := openFeed(ctx, cfg, logger, cl)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg, feed, logger, cl)
	if err != nil {
		return nil, nil, err
	}
	list, err := openPacking(ctx, cfg, logger, cl)
	if err != nil {
		return nil, nil, err
	}
	uploader, err := openUploader(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	p, err := planner.New(planner.Config{
		Store:    store,
		Packing:  list,
		Uploader: uploader,
		Bookings: trip.Bookings,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, store, nil
}
