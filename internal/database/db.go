// Package database is the query layer over pgx. Each query is a method on Queries, which runs
// against a pool or, via WithTx, inside a transaction.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

const isDatabaseRunning = `SELECT true AS running`

func (q *Queries) IsDatabaseRunning(ctx context.Context) (bool, error) {
	row := q.db.QueryRow(ctx, isDatabaseRunning)
	var running bool
	err := row.Scan(&running)
	return running, err
}
