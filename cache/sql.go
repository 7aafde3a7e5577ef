package cache

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type sqlRow struct {
	ID         string `db:"id"`
	Value      []byte `db:"value"`
	ExpiresAt  int64  `db:"expires_at"`
	SlidingNS  int64  `db:"sliding_ns"`
	AbsoluteAt int64  `db:"absolute_at"`
}

type sqlStore struct {
	db        *sqlx.DB
	owned     bool
	table     string
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config

	selectQuery string
	upsertQuery string
	touchQuery  string
	deleteQuery string
	purgeQuery  string
}

var _ Store = (*sqlStore)(nil)

func validTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return errors.Newf("cache: invalid table name %q", table)
	}
	return nil
}

// EnsureTable creates the cache table and its expiry index if they do not exist.
func EnsureTable(ctx context.Context, db *sqlx.DB, table string) error {
	if err := validTable(table); err != nil {
		return err
	}
	blob := "BLOB"
	if db.DriverName() == DriverPostgres {
		blob = "BYTEA"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(449) PRIMARY KEY,
		value %s NOT NULL,
		expires_at BIGINT NOT NULL,
		sliding_ns BIGINT NOT NULL DEFAULT 0,
		absolute_at BIGINT NOT NULL DEFAULT 0
	)`, table, blob),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires_at ON %s(expires_at)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "cache: creating table %s", table)
		}
	}
	return nil
}

// NewSQL returns a Store backed by a relational table. The table must already
// exist (see EnsureTable). The caller owns db.
func NewSQL(ctx context.Context, db *sqlx.DB, table string, opts ...Option) (Store, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	childCtx, cancel := context.WithCancel(ctx)
	c := &sqlStore{
		db:     db,
		table:  table,
		ctx:    childCtx,
		cancel: cancel,
		cfg:    cfg,
		selectQuery: db.Rebind(fmt.Sprintf(
			`SELECT id, value, expires_at, sliding_ns, absolute_at FROM %s WHERE id = ?`, table)),
		upsertQuery: fmt.Sprintf(`INSERT INTO %s (id, value, expires_at, sliding_ns, absolute_at)
		VALUES (:id, :value, :expires_at, :sliding_ns, :absolute_at)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at,
		sliding_ns = excluded.sliding_ns, absolute_at = excluded.absolute_at`, table),
		touchQuery:  db.Rebind(fmt.Sprintf(`UPDATE %s SET expires_at = ? WHERE id = ?`, table)),
		deleteQuery: db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)),
		purgeQuery:  db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE expires_at > 0 AND expires_at < ?`, table)),
	}
	if c.cfg.expiryCheck <= 0 {
		c.cfg.expiryCheck = time.Minute
	}
	c.waitGroup.Add(1)
	go c.run()
	return c, nil
}

// OpenSQL opens a database with the given driver (DriverSQLite or
// DriverPostgres), creates the table if missing and returns a Store that owns
// the connection pool.
func OpenSQL(ctx context.Context, driver, dsn, table string, opts ...Option) (Store, error) {
	if driver == DriverSQLite && dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: opening %s database", driver)
	}
	if driver == DriverSQLite {
		// every pooled connection to :memory: would see its own database
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "cache: enabling WAL")
		}
	}
	pctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "cache: pinging %s database", driver)
	}
	if err := EnsureTable(ctx, db, table); err != nil {
		db.Close()
		return nil, err
	}
	s, err := NewSQL(ctx, db, table, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.(*sqlStore).owned = true
	return s, nil
}

func (c *sqlStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *sqlStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	var row sqlRow
	err := c.db.GetContext(qctx, &row, c.selectQuery, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	now := c.cfg.now()
	if row.ExpiresAt > 0 && row.ExpiresAt <= now.UnixNano() {
		// Lazily delete expired entry.
		_, _ = c.db.ExecContext(qctx, c.deleteQuery, key)
		return false, nil, nil
	}
	if row.SlidingNS > 0 {
		var absolute time.Time
		if row.AbsoluteAt > 0 {
			absolute = time.Unix(0, row.AbsoluteAt)
		}
		next := slide(now, time.Duration(row.SlidingNS), absolute)
		if _, err := c.db.ExecContext(qctx, c.touchQuery, next.UnixNano(), key); err != nil {
			return false, nil, err
		}
	}
	return true, row.Value, nil
}

func (c *sqlStore) Set(ctx context.Context, key string, payload []byte, exp Expiration) error {
	absolute, expires, err := exp.Deadlines(c.cfg.now())
	if err != nil {
		return err
	}
	row := sqlRow{ID: key, Value: payload, SlidingNS: int64(exp.Sliding)}
	if !expires.IsZero() {
		row.ExpiresAt = expires.UnixNano()
	}
	if !absolute.IsZero() {
		row.AbsoluteAt = absolute.UnixNano()
	}
	if row.Value == nil {
		row.Value = []byte{}
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	_, err = c.db.NamedExecContext(qctx, c.upsertQuery, row)
	return err
}

func (c *sqlStore) Remove(ctx context.Context, key string) (bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	result, err := c.db.ExecContext(qctx, c.deleteQuery, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (c *sqlStore) Close() error {
	var dbErr error
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		if c.owned {
			dbErr = c.db.Close()
		}
	})
	return dbErr
}

func (c *sqlStore) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.db.ExecContext(c.ctx, c.purgeQuery, c.cfg.now().UnixNano())
		}
	}
}
