package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"google.golang.org/api/option"

	"github.com/beekhof/calendar-notifier/internal/config"
)

// ErrUnknownStore is returned for an unsupported store type.
var ErrUnknownStore = errors.New("unknown snapshot store")

// Opener builds stores from configuration. SQL stores that share a DSN
// share one connection pool.
type Opener struct {
	googleOpts []option.ClientOption

	mu  sync.Mutex
	dbs map[string]*sqlx.DB
}

// NewOpener returns an Opener. googleOpts are passed to the Sheets client.
func NewOpener(googleOpts ...option.ClientOption) *Opener {
	return &Opener{googleOpts: googleOpts, dbs: make(map[string]*sqlx.DB)}
}

// Open returns the store described by cfg.
func (o *Opener) Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case config.StoreFile:
		return NewFileStore(cfg.Path), nil
	case config.StoreSheet:
		return NewSheetStore(ctx, cfg.SpreadsheetID, cfg.Sheet, o.googleOpts...)
	case config.StoreSQLite, config.StorePostgres:
		db, err := o.db(ctx, cfg.Type, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db, cfg.Type, cfg.Key), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Type)
	}
}

func (o *Opener) db(ctx context.Context, dialect, dsn string) (*sqlx.DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := dialect + "|" + dsn
	if db, ok := o.dbs[key]; ok {
		return db, nil
	}
	db, err := OpenDB(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	o.dbs[key] = db
	return db, nil
}

// Close releases every database opened by o.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for key, db := range o.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(o.dbs, key)
	}
	return errors.Join(errs...)
}
