// Package store defines the query interface every persistence backend
// implements and the row shape shared between them.
package store

import (
	"context"
	"errors"
)

// TableName is the table or collection holding profit entries.
const TableName = "profit_entries"

// ErrNoRows is returned by SelectByDate when no entry exists for the date.
var ErrNoRows = errors.New("no rows in result set")

type (
	// Reader lists and filters persisted records.
	Reader interface {
		// SelectAll returns every record ordered by ascending date.
		SelectAll(ctx context.Context) ([]Record, error)
		// SelectByDate returns the record for date, or ErrNoRows.
		SelectByDate(ctx context.Context, date string) (Record, error)
	}

	// Writer persists and removes records.
	Writer interface {
		// Upsert inserts rec, or when a record with the same date already
		// exists overwrites its four numeric columns and UpdatedAt while
		// keeping its ID and CreatedAt. It returns the row actually stored.
		Upsert(ctx context.Context, rec Record) (Record, error)
		// DeleteByID removes the record with the given id. Missing ids are not an error.
		DeleteByID(ctx context.Context, id string) error
	}

	// Backend is the full query interface the entry store runs against.
	Backend interface {
		Reader
		Writer
		Ping(ctx context.Context) error
	}
)
