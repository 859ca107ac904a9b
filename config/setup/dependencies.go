package setup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sixpeteunder/orientdb-odm/app"
	"github.com/sixpeteunder/orientdb-odm/binding"
	"github.com/sixpeteunder/orientdb-odm/config"
	"github.com/sixpeteunder/orientdb-odm/database"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/storage"
	"github.com/sixpeteunder/orientdb-odm/validator"
)

// InitDatabase initializes the SQLite record store and runs migrations
func InitDatabase(dbPath string, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database initialized", "path", dbPath)
	return db, nil
}

// InitMapper builds the mapper and loads class descriptors from the
// configured document directories
func InitMapper(cfg *config.Config, logger *slog.Logger) (*mapper.Mapper, error) {
	opts := []mapper.Option{mapper.WithLogger(logger)}
	if cfg.MismatchTolerance {
		opts = append(opts, mapper.WithMismatchTolerance())
	}
	m := mapper.New(opts...)

	if len(cfg.DocumentDirs) > 0 {
		if err := m.SetDocumentDirectories(cfg.DocumentDirs); err != nil {
			return nil, fmt.Errorf("failed to load document directories: %w", err)
		}
	}

	logger.Info("mapper initialized", "classes", len(m.Classes()), "tolerant", m.IsTolerant())
	return m, nil
}

// InitAdapter connects the protocol adapter selected by the configuration
func InitAdapter(ctx context.Context, cfg *config.Config, m *mapper.Mapper, logger *slog.Logger) (protocol.Adapter, error) {
	factory, ok := AdapterFactories(cfg, m, logger)[cfg.Adapter]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
	return factory(ctx)
}

// AdapterFactories maps adapter names to their constructors
func AdapterFactories(cfg *config.Config, m *mapper.Mapper, logger *slog.Logger) map[string]protocol.Factory {
	return map[string]protocol.Factory{
		config.AdapterHTTP: func(ctx context.Context) (protocol.Adapter, error) {
			clientCfg := binding.ClientConfig{
				Host:     cfg.Host,
				Port:     cfg.Port,
				Database: cfg.Database,
				User:     cfg.User,
				Password: cfg.Password,
				Timeout:  cfg.Timeout,
				Retries:  cfg.Retries,
			}
			if err := validator.New().Validate(clientCfg); err != nil {
				return nil, fmt.Errorf("invalid connection settings: %w", err)
			}

			client := binding.NewClient(clientCfg, logger)
			if err := client.Connect(ctx); err != nil {
				return nil, fmt.Errorf("failed to connect: %w", err)
			}
			logger.Info("connected to server", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
			return binding.NewAdapter(client), nil
		},

		config.AdapterEmbedded: func(ctx context.Context) (protocol.Adapter, error) {
			db, err := InitDatabase(cfg.EmbeddedPath, logger)
			if err != nil {
				return nil, err
			}

			embedded := storage.NewEmbedded(database.NewRepository(db), logger)
			classes := make([]string, 0, len(m.Classes()))
			for _, meta := range m.Classes() {
				classes = append(classes, meta.Schema)
			}
			if err := embedded.EnsureClasses(ctx, classes...); err != nil {
				embedded.Close()
				return nil, err
			}
			logger.Info("embedded store ready", "classes", len(classes))
			return embedded, nil
		},
	}
}

// InitApp initializes the application with all dependencies
func InitApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	m, err := InitMapper(cfg, logger)
	if err != nil {
		return nil, err
	}

	adapter, err := InitAdapter(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	application := app.New(cfg, m, adapter, logger)
	logger.Info("application initialized", "adapter", cfg.Adapter)

	return application, nil
}

// Shutdown releases the adapter
func Shutdown(application *app.App, logger *slog.Logger) {
	logger.Info("shutting down services...")

	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		logger.Error("failed to close adapter", "error", err)
		return
	}
	logger.Info("adapter closed")
}
