// Package storage implements the record store gateway on top of a SQL
// database. SQLite is the default; PostgreSQL and MySQL are selectable.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"taskflow/internal/gateway"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// sqliteLowerFunc is a Unicode-aware LOWER; the built-in one only folds ASCII.
const sqliteLowerFunc = "unicode_lower"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Store is a gateway.Gateway backed by one table per collection.
type Store struct {
	db      *sqlx.DB
	driver  string
	log     *slog.Logger
	schemas map[string]gateway.Schema
	newID   func() string
}

var _ gateway.Gateway = (*Store)(nil)

// Open connects to the database and creates or extends the tables for
// schemas. For SQLite dsn is a file path (or a file: URI).
func Open(driver, dsn string, log *slog.Logger, schemas ...gateway.Schema) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if dsn == "" {
		return nil, errors.New("db dsn is empty")
	}

	sqlDriver, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	if sqlDriver == DriverSQLite {
		if !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, err
			}
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	if sqlDriver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:      db,
		driver:  sqlDriver,
		log:     log,
		schemas: map[string]gateway.Schema{},
		newID:   uuid.NewString,
	}
	for _, sc := range schemas {
		if err := s.register(sc); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func driverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pgx":
		return "pgx", nil
	case DriverMySQL:
		return DriverMySQL, nil
	default:
		return "", fmt.Errorf("unsupported db driver %q", driver)
	}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) register(sc gateway.Schema) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if !identRe.MatchString(sc.Collection) {
		return fmt.Errorf("collection %q is not a valid table name", sc.Collection)
	}
	for _, f := range sc.Fields {
		if !identRe.MatchString(f.Column) {
			return fmt.Errorf("collection %s: column %q is not a valid identifier", sc.Collection, f.Column)
		}
	}
	if err := s.ensureSchema(sc); err != nil {
		return fmt.Errorf("migrate %s: %w", sc.Collection, err)
	}
	s.schemas[sc.Collection] = sc
	return nil
}

func (s *Store) ensureSchema(sc gateway.Schema) error {
	cols := make([]string, 0, len(sc.Fields))
	for _, f := range sc.Fields {
		cols = append(cols, columnDDL(f))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);", sc.Collection, strings.Join(cols, ",\n\t"))
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.ensureColumns(sc)
}

// ensureColumns adds schema columns missing from a table created by an
// older build.
func (s *Store) ensureColumns(sc gateway.Schema) error {
	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s WHERE 1=0;", sc.Collection))
	if err != nil {
		return err
	}
	names, err := rows.Columns()
	rows.Close()
	if err != nil {
		return err
	}
	existing := map[string]struct{}{}
	for _, n := range names {
		existing[strings.ToLower(n)] = struct{}{}
	}
	for _, f := range sc.Fields {
		if _, ok := existing[f.Column]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", sc.Collection, columnDDL(f))
		if _, err := s.db.Exec(alter); err != nil {
			return err
		}
		s.log.Info("added column", "collection", sc.Collection, "column", f.Column)
	}
	return nil
}

func columnDDL(f gateway.Field) string {
	if f.Name == gateway.FieldID {
		return f.Column + " VARCHAR(64) PRIMARY KEY"
	}
	var def string
	switch f.Type {
	case gateway.Bool:
		def = "INTEGER NOT NULL DEFAULT 0"
	case gateway.Time, gateway.Date:
		def = "VARCHAR(40) DEFAULT NULL"
	default:
		if f.Unique {
			def = "VARCHAR(191)"
		} else {
			def = "TEXT"
		}
	}
	if f.Unique {
		def += " UNIQUE"
	}
	return f.Column + " " + def
}

func (s *Store) schema(collection string) (gateway.Schema, error) {
	sc, ok := s.schemas[collection]
	if !ok {
		return gateway.Schema{}, fmt.Errorf("%w: %s", gateway.ErrUnknownCollection, collection)
	}
	return sc, nil
}

func (s *Store) Fetch(ctx context.Context, collection string, q gateway.Query) ([]gateway.Record, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	query, args, fields, err := buildSelect(dialectFor(s.driver), sc, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	defer rows.Close()

	var out []gateway.Record
	for rows.Next() {
		rec, err := scanRecord(rows, fields)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, collection, id string) (gateway.Record, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	return s.getByID(ctx, s.db, sc, id)
}

type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

func (s *Store) getByID(ctx context.Context, q queryer, sc gateway.Schema, id string) (gateway.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?;", strings.Join(columns(sc.Fields), ", "), sc.Collection)
	rows, err := q.QueryxContext(ctx, q.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", sc.Collection, id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s", gateway.ErrNotFound, sc.Collection, id)
	}
	return scanRecord(rows, sc.Fields)
}

func (s *Store) Create(ctx context.Context, collection string, records []gateway.Record) ([]gateway.Record, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	var out []gateway.Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			cols, args, err := encodeRecord(sc, rec, true)
			if err != nil {
				return err
			}
			id := s.newID()
			cols = append([]string{"id"}, cols...)
			args = append([]any{id}, args...)

			marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", sc.Collection, strings.Join(cols, ", "), marks)
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", gateway.ErrConflict, err)
				}
				return fmt.Errorf("insert %s: %w", collection, err)
			}
			created, err := s.getByID(ctx, tx, sc, id)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, collection string, records []gateway.Record) ([]gateway.Record, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	var out []gateway.Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			id := rec.ID()
			if id == "" {
				return fmt.Errorf("%w: update without %s", gateway.ErrInvalidQuery, gateway.FieldID)
			}
			cols, args, err := encodeRecord(sc, rec, false)
			if err != nil {
				return err
			}
			if len(cols) > 0 {
				sets := make([]string, len(cols))
				for i, c := range cols {
					sets[i] = c + " = ?"
				}
				query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?;", sc.Collection, strings.Join(sets, ", "))
				if _, err := tx.ExecContext(ctx, tx.Rebind(query), append(args, id)...); err != nil {
					if isUniqueViolation(err) {
						return fmt.Errorf("%w: %s", gateway.ErrConflict, err)
					}
					return fmt.Errorf("update %s %s: %w", collection, id, err)
				}
			}
			// MySQL reports 0 rows affected for a no-op update; read back instead.
			updated, err := s.getByID(ctx, tx, sc, id)
			if err != nil {
				return err
			}
			out = append(out, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) (bool, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE id IN (?);", sc.Collection), ids)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", collection, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == int64(len(ids)), nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
