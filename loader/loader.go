package loader

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config is the explicit store configuration passed into the loader
// constructor. Required fields are validated eagerly with a descriptive
// failure; the core never reads environment variables itself.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string

	// Table is the fully qualified target table. Defaults to
	// hpt.standard_charge.
	Table string
}

// Validate reports the first missing required field.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"host", c.Host},
		{"port", c.Port},
		{"user", c.User},
		{"password", c.Password},
		{"database", c.Database},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("loader config: %s is required", f.name)
		}
	}
	return nil
}

// ConnString builds the pgx connection string.
func (c *Config) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database, sslMode)
}

func (c *Config) tableIdent() pgx.Identifier {
	table := c.Table
	if table == "" {
		table = "hpt.standard_charge"
	}
	return pgx.Identifier(strings.Split(table, "."))
}

// Loader replaces a hospital's rows in the relational store inside one
// transaction. Loads of different hospitals are independent; concurrent
// loads of the same hospital identifier must be serialized by the caller.
type Loader struct {
	pool  *pgxpool.Pool
	log   *zap.Logger
	table pgx.Identifier
}

// New validates the config, connects, and pings the store.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return NewWithPool(pool, cfg, log), nil
}

// NewWithPool wraps an existing pool. The pool stays owned by the caller.
func NewWithPool(pool *pgxpool.Pool, cfg Config, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{pool: pool, log: log, table: cfg.tableIdent()}
}

// Close releases the connection pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// Load deletes any prior rows for the hospital identifier and bulk-inserts
// the new rows via COPY, all inside a single transaction. Reprocessing a
// hospital is therefore fully idempotent: rerunning on the same or an
// updated source yields exactly the rows of the latest expansion, never
// duplicates or stale leftovers. Any failure rolls the whole transaction
// back, leaving the previous load untouched.
func (l *Loader) Load(ctx context.Context, hospitalID string, rows []ChargeRow) (int64, error) {
	if hospitalID == "" {
		return 0, fmt.Errorf("load: hospital id is required")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE hospital_id = $1", l.table.Sanitize())
	tag, err := tx.Exec(ctx, deleteSQL, hospitalID)
	if err != nil {
		return 0, fmt.Errorf("delete prior rows for %s: %w", hospitalID, err)
	}
	deleted := tag.RowsAffected()

	copied, err := tx.CopyFrom(ctx, l.table, Columns(),
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rows[i].values(hospitalID)
		}))
	if err != nil {
		return 0, fmt.Errorf("copy rows for %s: %w", hospitalID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit load for %s: %w", hospitalID, err)
	}

	l.log.Info("loaded hospital",
		zap.String("hospital_id", hospitalID),
		zap.Int64("rows_deleted", deleted),
		zap.Int64("rows_inserted", copied))
	return copied, nil
}

// values renders one row in load column order. The hospital identifier
// comes from the load call so every row of a load shares the identifier
// the delete was keyed on.
func (r *ChargeRow) values(hospitalID string) ([]any, error) {
	date, err := time.Parse("2006-01-02", r.LastUpdatedOn)
	if err != nil {
		return nil, fmt.Errorf("row date %q: %w", r.LastUpdatedOn, err)
	}
	return []any{
		hospitalID,
		r.HospitalName,
		optToPgText(r.HospitalLocation),
		pgtype.Date{Time: date, Valid: true},
		optToPgText(r.Version),
		r.Description,
		optToPgText(r.Setting),
		optToPgText(r.BillingClass),
		optToPgText(r.Code),
		optToPgText(r.CodeType),
		optToPgText(r.Modifiers),
		floatToNumeric(r.GrossCharge),
		floatToNumeric(r.DiscountedCashCharge),
		optToPgText(r.PayerName),
		optToPgText(r.PlanName),
		floatToNumeric(r.NegotiatedDollar),
		floatToNumeric(r.NegotiatedPercentage),
		optToPgText(r.RateKind),
		r.SourceFile,
	}, nil
}

// pgtype helpers

func floatToNumeric(f *float64) pgtype.Numeric {
	if f == nil {
		return pgtype.Numeric{Valid: false}
	}
	text := big.NewFloat(*f).Text('f', -1)
	var num pgtype.Numeric
	num.Scan(text)
	return num
}

func optToPgText(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}
