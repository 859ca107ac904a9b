package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/sixpeteunder/orientdb-odm/config"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/odm"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/validator"
)

// App holds all application dependencies
// This struct is the central point for dependency injection
type App struct {
	Config    *config.Config
	Mapper    *mapper.Mapper
	Adapter   protocol.Adapter
	Validator *validator.Validator
	Logger    *slog.Logger
}

// New creates a new App instance with all dependencies
func New(cfg *config.Config, m *mapper.Mapper, adapter protocol.Adapter, logger *slog.Logger) *App {
	return &App{
		Config:    cfg,
		Mapper:    m,
		Adapter:   adapter,
		Validator: validator.New(),
		Logger:    logger,
	}
}

// NewManager returns a fresh manager. Managers are cheap and hold their own
// identity map, so one per unit of work is the intended use.
func (a *App) NewManager() *odm.Manager {
	mgr := odm.NewManager(a.Mapper, a.Adapter, a.Logger, odm.WithValidator(a.Validator))
	if err := mgr.ProxyFactory().GenerateProxyClasses(a.Mapper.Classes()); err != nil {
		a.Logger.Warn("proxy templates not generated", "error", err)
	}
	return mgr
}

// Close releases the adapter when it holds resources.
func (a *App) Close() error {
	if c, ok := a.Adapter.(protocol.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stderr, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     logLevel(level),
		AddSource: env == "development",
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
