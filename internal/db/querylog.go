package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// queryLogConnector opens connections on the real driver and wraps them so
// every statement is logged at debug level. The wrapped conn does not
// implement ExecerContext/QueryerContext, so database/sql routes everything
// through Prepare and the logging statement.
type queryLogConnector struct {
	driver driver.Driver
	dsn    string
	logger *slog.Logger
}

type queryLogConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type queryLogStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// NewQueryLogConnector returns a driver.Connector for driverName ("sqlite3"
// or "postgres") that logs every query and its args. Use with sql.OpenDB.
// A nil logger falls back to slog.Default().
func NewQueryLogConnector(driverName, dsn string, logger *slog.Logger) (driver.Connector, error) {
	d, err := driverFor(driverName)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &queryLogConnector{driver: d, dsn: dsn, logger: logger}, nil
}

func driverFor(name string) (driver.Driver, error) {
	switch name {
	case "sqlite3":
		return &sqlite3.SQLiteDriver{}, nil
	case "postgres":
		return &pq.Driver{}, nil
	default:
		return nil, fmt.Errorf("query log: unsupported driver %q", name)
	}
}

func (c *queryLogConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &queryLogConn{conn: conn, logger: c.logger}, nil
}

func (c *queryLogConnector) Driver() driver.Driver {
	return c.driver
}

func (c *queryLogConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *queryLogConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &queryLogStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *queryLogConn) Close() error {
	return c.conn.Close()
}

func (c *queryLogConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *queryLogConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback for drivers without ConnBeginTx
	return c.conn.Begin()
}

func (s *queryLogStmt) Close() error {
	return s.stmt.Close()
}

func (s *queryLogStmt) NumInput() int {
	return s.stmt.NumInput()
}

func (s *queryLogStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.log("exec", valuesToAny(args))
	//nolint:staticcheck // SA1019 required by driver.Stmt
	return s.stmt.Exec(args)
}

func (s *queryLogStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.log("exec", namedToAny(args))
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without StmtExecContext
	return s.stmt.Exec(namedToValues(args))
}

func (s *queryLogStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.log("query", valuesToAny(args))
	//nolint:staticcheck // SA1019 required by driver.Stmt
	return s.stmt.Query(args)
}

func (s *queryLogStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.log("query", namedToAny(args))
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without StmtQueryContext
	return s.stmt.Query(namedToValues(args))
}

func (s *queryLogStmt) log(op string, args []any) {
	s.logger.Debug("sql", "op", op, "sql", s.query, "args", args)
}

func valuesToAny(args []driver.Value) []any {
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = formatArg(v)
	}
	return out
}

func namedToAny(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
