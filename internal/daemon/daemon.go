package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pointsledger/pointsledger/internal/api"
	"github.com/pointsledger/pointsledger/internal/app/ledger"
	"github.com/pointsledger/pointsledger/internal/domain"
	"github.com/pointsledger/pointsledger/internal/infra/memstore"
	"github.com/pointsledger/pointsledger/internal/infra/sqlite"
)

// shutdownTimeout bounds how long in-flight requests get after a stop signal.
const shutdownTimeout = 10 * time.Second

// Daemon owns the record store, the ledger service, and the HTTP server.
type Daemon struct {
	cfg    Config
	log    *logrus.Logger
	store  domain.RecordStore
	db     *sqlite.DB // nil for the memory backend
	ledger *ledger.Service
	api    *api.Server
}

// NewLogger builds the process logger from config.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// New wires a daemon from config. Call Close when done.
func New(cfg Config, log *logrus.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, log: log}
	switch cfg.Storage.Backend {
	case BackendSQLite:
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		d.db = db
		d.store = db
	default:
		d.store = memstore.New()
	}

	d.ledger = ledger.NewService(d.store,
		ledger.WithLogger(log.WithField("component", "ledger")))

	d.api = api.NewServer(d.ledger, log.WithField("component", "api"))
	d.api.SetTimeout(cfg.API.Timeout())
	if cfg.Metrics.Enabled {
		d.api.EnableMetrics()
	}
	if cfg.API.LegacyEmptyBalance {
		d.api.EnableLegacyEmptyBalance()
	}
	return d, nil
}

// Handler returns the HTTP handler serving the ledger API.
func (d *Daemon) Handler() http.Handler { return d.api.Handler() }

// Ledger returns the ledger service.
func (d *Daemon) Ledger() *ledger.Service { return d.ledger }

// Run serves HTTP on the configured address until ctx is canceled,
// then drains in-flight requests.
func (d *Daemon) Run(ctx context.Context) error {
	fields := logrus.Fields{
		"addr":    d.cfg.API.Addr(),
		"backend": d.cfg.Storage.Backend,
	}
	if d.db != nil {
		n, err := d.db.Count(ctx)
		if err != nil {
			return fmt.Errorf("count records: %w", err)
		}
		fields["path"] = d.db.Path()
		fields["records"] = n
	}

	srv := &http.Server{
		Addr:              d.cfg.API.Addr(),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.WithFields(fields).Info("points ledger listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	d.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// Close releases the record store.
func (d *Daemon) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
