package dbconn

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/reconcile/reconbase"
)

type ID string

// OrderedConns holds the primary connection followed by the secondary one.
type OrderedConns [2]Conn

func (c OrderedConns) Conn(side reconbase.Side) Conn {
	return c[side]
}

// Close closes both connections.
func (c OrderedConns) Close(ctx context.Context) error {
	var err error
	for _, conn := range c {
		if conn != nil {
			err = errors.CombineErrors(err, conn.Close(ctx))
		}
	}
	return err
}

type Conn interface {
	ID() ID
	// Close closes the connection.
	Close(ctx context.Context) error
	// Dialect is the database product behind the connection, e.g. "MySQL".
	Dialect() string
	ConnStr() string
}

// Connect opens a connection pool based on the scheme of connStr.
func Connect(ctx context.Context, preferredID ID, connStr string) (Conn, error) {
	id := preferredID
	if len(connStr) == 0 {
		return nil, errors.Newf("empty connection string")
	}

	before := strings.SplitN(connStr, "://", 2)
	if len(before) != 2 {
		return nil, errors.Newf("connection string %s has no scheme", redact(connStr))
	}
	if id == "" {
		if u, err := url.Parse(connStr); err == nil {
			id = ID(u.Hostname() + ":" + u.Port())
		}
	}

	switch scheme := strings.ToLower(before[0]); {
	case strings.Contains(scheme, "postgres"):
		return ConnectPG(ctx, id, connStr)
	case strings.Contains(scheme, "mysql"):
		return ConnectMySQL(ctx, id, connStr)
	case scheme == "oracle":
		return ConnectOracle(ctx, id, connStr)
	case strings.Contains(scheme, "clickhouse"):
		return ConnectClickHouse(ctx, id, connStr)
	}
	return nil, errors.Newf("unrecognised scheme %s from %s", before[0], redact(connStr))
}

// redact removes the password from a connection URL for use in messages.
func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
