package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// KVTable is created by the contract_kv migration.
const KVTable = "contract_kv"

// SQLBackend stores contract keys in the PocketBase SQLite database.
type SQLBackend struct {
	app       core.App
	namespace string
}

func NewSQLBackend(app core.App, namespace string) *SQLBackend {
	return &SQLBackend{app: app, namespace: namespace}
}

func (b *SQLBackend) rowKey(key Key) string {
	return b.namespace + ":" + key.String()
}

func (b *SQLBackend) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	return b.load(ctx, b.app.DB(), key)
}

func (b *SQLBackend) load(ctx context.Context, db dbx.Builder, key Key) ([]byte, bool, error) {
	var value []byte
	err := db.
		NewQuery("SELECT [[value]] FROM {{" + KVTable + "}} WHERE [[key]] = {:key} LIMIT 1").
		Bind(dbx.Params{"key": b.rowKey(key)}).
		WithContext(ctx).
		Row(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Apply re-reads every read key inside the SQLite write transaction before
// writing.
func (b *SQLBackend) Apply(ctx context.Context, reads []Read, writes []Write) error {
	return b.app.RunInTransaction(func(txApp core.App) error {
		for _, r := range reads {
			current, found, err := b.load(ctx, txApp.DB(), r.Key)
			if err != nil {
				return err
			}
			if !r.Matches(current, found) {
				return ErrConflict
			}
		}
		for _, w := range writes {
			var q *dbx.Query
			if w.Delete {
				q = txApp.DB().
					NewQuery("DELETE FROM {{" + KVTable + "}} WHERE [[key]] = {:key}").
					Bind(dbx.Params{"key": b.rowKey(w.Key)})
			} else {
				q = txApp.DB().
					NewQuery("INSERT INTO {{" + KVTable + "}} ([[key]], [[value]]) VALUES ({:key}, {:value}) " +
						"ON CONFLICT([[key]]) DO UPDATE SET [[value]] = excluded.[[value]]").
					Bind(dbx.Params{"key": b.rowKey(w.Key), "value": w.Value})
			}
			if _, err := q.WithContext(ctx).Execute(); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateKVTable creates the key/value table if missing.
func CreateKVTable(db dbx.Builder) error {
	_, err := db.NewQuery("CREATE TABLE IF NOT EXISTS {{" + KVTable + "}} (" +
		"[[key]] TEXT PRIMARY KEY NOT NULL, " +
		"[[value]] BLOB NOT NULL)").Execute()
	return err
}

func DropKVTable(db dbx.Builder) error {
	_, err := db.NewQuery("DROP TABLE IF EXISTS {{" + KVTable + "}}").Execute()
	return err
}
