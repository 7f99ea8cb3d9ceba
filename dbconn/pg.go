package dbconn

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGConn is a pool of connections to PostgreSQL or CockroachDB.
type PGConn struct {
	id ID
	*pgxpool.Pool
	version     string
	connStr     string
	isCockroach bool
}

var _ Conn = (*PGConn)(nil)

func ConnectPG(ctx context.Context, id ID, connStr string) (*PGConn, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing postgres connection string %s", redact(connStr))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", redact(connStr))
	}
	var version string
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "error detecting version of %s", redact(connStr))
	}
	return NewPGConn(id, pool, connStr, version), nil
}

func NewPGConn(id ID, pool *pgxpool.Pool, connStr string, version string) *PGConn {
	return &PGConn{
		id:          id,
		Pool:        pool,
		version:     version,
		connStr:     connStr,
		isCockroach: strings.Contains(version, "CockroachDB"),
	}
}

func (c *PGConn) ID() ID {
	return c.id
}

func (c *PGConn) IsCockroach() bool {
	return c.isCockroach
}

func (c *PGConn) Close(ctx context.Context) error {
	c.Pool.Close()
	return nil
}

func (c *PGConn) ConnStr() string {
	return c.connStr
}

func (c *PGConn) Dialect() string {
	if c.IsCockroach() {
		return "CockroachDB"
	}
	return "PostgreSQL"
}
