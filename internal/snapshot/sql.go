package snapshot

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"

	// insertBatch keeps each INSERT well under sqlite's bound parameter limit.
	insertBatch = 500
)

//go:embed migrations
var migrationsFS embed.FS

// OpenDB connects to a sqlite or postgres database and applies the snapshot
// schema migrations.
func OpenDB(ctx context.Context, dialect, dsn string) (*sqlx.DB, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
	case DialectPostgres:
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("%w: unsupported sql dialect %q", ErrUnknownStore, dialect)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; concurrent passes queue instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}
	if err := migrateDB(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateDB(db *sqlx.DB, dialect string) error {
	d, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	var instance database.Driver
	switch dialect {
	case DialectPostgres:
		instance, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		instance, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", dialect, err)
	}

	migrator, err := migrate.NewWithInstance("iofs", d, dialect, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to migrate %s database: %w", dialect, err)
	}
	slog.Debug("snapshot schema migrated", "dialect", dialect)
	return nil
}

type rowRecord struct {
	EventID  string `db:"event_id"`
	Title    string `db:"title"`
	StartAt  string `db:"start_at"`
	EndAt    string `db:"end_at"`
	Location string `db:"location"`
	Kind     string `db:"kind"`
}

// SQLStore keeps the snapshots of many calendars in one table, each under
// its own key.
type SQLStore struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	key     string
}

// NewSQLStore returns a store for key in a database opened with OpenDB.
func NewSQLStore(db *sqlx.DB, dialect, key string) *SQLStore {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, builder: builder, key: key}
}

func (s *SQLStore) Load(ctx context.Context) (detect.Snapshot, error) {
	query, args, err := s.builder.
		Select("event_id", "title", "start_at", "end_at", "location", "kind").
		From("snapshot_rows").
		Where(sq.Eq{"calendar_key": s.key}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	var records []rowRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", s.key, err)
	}

	snap := make(detect.Snapshot, 0, len(records))
	for _, r := range records {
		snap = append(snap, detect.Row{
			ID:       r.EventID,
			Title:    r.Title,
			Start:    r.StartAt,
			End:      r.EndAt,
			Location: r.Location,
			Kind:     detect.Kind(r.Kind),
		})
	}
	return snap, nil
}

// Save replaces the key's rows in a single transaction.
func (s *SQLStore) Save(ctx context.Context, snap detect.Snapshot) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	query, args, err := s.builder.Delete("snapshot_rows").Where(sq.Eq{"calendar_key": s.key}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build snapshot delete: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", s.key, err)
	}

	for start := 0; start < len(snap); start += insertBatch {
		end := min(start+insertBatch, len(snap))
		insert := s.builder.Insert("snapshot_rows").
			Columns("calendar_key", "position", "event_id", "title", "start_at", "end_at", "location", "kind")
		for i, r := range snap[start:end] {
			insert = insert.Values(s.key, start+i, r.ID, r.Title, r.Start, r.End, r.Location, string(r.Kind))
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build snapshot insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write snapshot %s: %w", s.key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", s.key, err)
	}
	return nil
}
