package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mycelian/mycelian-todo/internal/store"
)

type states struct{ s *Store }

func (st *states) Get(ctx context.Context, key, name string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	q := st.s.dialect.rebind(`SELECT value FROM entity_state WHERE entity_key = ? AND state_name = ?`)
	err := st.s.do(ctx, "get state", func() error {
		err := st.s.db.QueryRowContext(ctx, q, key, name).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			value, found = nil, false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (st *states) Set(ctx context.Context, key, name string, value []byte) error {
	q := st.s.dialect.rebind(upsertState)
	return st.s.do(ctx, "set state", func() error {
		_, err := st.s.db.ExecContext(ctx, q, key, name, nonNil(value), time.Now().UnixNano())
		return err
	})
}

func (st *states) ReadModifyWrite(ctx context.Context, key, name string, initial []byte, fn store.UpdateFunc) ([]byte, error) {
	d := st.s.dialect
	sel := d.rebind(`SELECT value FROM entity_state WHERE entity_key = ? AND state_name = ?` + d.LockSuffix)
	ins := d.rebind(`INSERT INTO entity_state (entity_key, state_name, value, version, update_time)
		VALUES (?, ?, ?, 1, ?) ON CONFLICT (entity_key, state_name) DO NOTHING`)
	upd := d.rebind(`UPDATE entity_state SET value = ?, version = version + 1, update_time = ?
		WHERE entity_key = ? AND state_name = ?`)

	var out []byte
	err := st.s.do(ctx, "read-modify-write", func() error {
		return st.s.inTx(ctx, func(tx *sql.Tx) error {
			var cur []byte
			err := tx.QueryRowContext(ctx, sel, key, name).Scan(&cur)
			now := time.Now().UnixNano()
			switch {
			case errors.Is(err, sql.ErrNoRows):
				res, err := tx.ExecContext(ctx, ins, key, name, nonNil(initial), now)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return errConflict
				}
				out = initial
				return nil
			case err != nil:
				return err
			}

			next, err := fn(cur)
			if err != nil {
				return store.Abort(err)
			}
			if _, err := tx.ExecContext(ctx, upd, nonNil(next), now, key, name); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const upsertState = `INSERT INTO entity_state (entity_key, state_name, value, version, update_time)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT (entity_key, state_name)
	DO UPDATE SET value = excluded.value, version = entity_state.version + 1, update_time = excluded.update_time`

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
