package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mycelian/mycelian-todo/internal/model"
)

type reminders struct{ s *Store }

const reminderColumns = `entity_key, name, due_ns, period_ns, payload, next_fire_at, attempt_count, lease_owner, lease_until`

type rowScanner interface{ Scan(dest ...any) error }

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var (
		r                            model.Reminder
		due, period, next, leaseTill int64
	)
	if err := row.Scan(&r.EntityKey, &r.Name, &due, &period, &r.Payload, &next, &r.Attempts, &r.LeaseOwner, &leaseTill); err != nil {
		return nil, err
	}
	r.DueTime = time.Duration(due)
	r.Period = time.Duration(period)
	r.NextFireAt = fromNanos(next)
	r.LeaseUntil = fromNanos(leaseTill)
	return &r, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func (rs *reminders) Put(ctx context.Context, r *model.Reminder) (bool, error) {
	q := rs.s.dialect.rebind(`INSERT INTO reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', 0)
		ON CONFLICT (entity_key, name) DO UPDATE SET
			due_ns = excluded.due_ns,
			period_ns = excluded.period_ns,
			payload = excluded.payload,
			next_fire_at = excluded.next_fire_at,
			attempt_count = 0,
			lease_owner = '',
			lease_until = 0
		WHERE reminders.due_ns IS DISTINCT FROM excluded.due_ns
			OR reminders.period_ns IS DISTINCT FROM excluded.period_ns
			OR reminders.payload IS DISTINCT FROM excluded.payload`)

	var changed bool
	err := rs.s.do(ctx, "put reminder", func() error {
		res, err := rs.s.db.ExecContext(ctx, q, r.EntityKey, r.Name, int64(r.DueTime), int64(r.Period),
			nonNil(r.Payload), toNanos(r.NextFireAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		return nil
	})
	return changed, err
}

func (rs *reminders) Get(ctx context.Context, key, name string) (*model.Reminder, error) {
	q := rs.s.dialect.rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE entity_key = ? AND name = ?`)
	var out *model.Reminder
	err := rs.s.do(ctx, "get reminder", func() error {
		r, err := scanReminder(rs.s.db.QueryRowContext(ctx, q, key, name))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		out = r
		return err
	})
	return out, err
}

func (rs *reminders) List(ctx context.Context, key string) ([]*model.Reminder, error) {
	q := rs.s.dialect.rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE entity_key = ? ORDER BY name`)
	var out []*model.Reminder
	err := rs.s.do(ctx, "list reminders", func() error {
		out = out[:0]
		rows, err := rs.s.db.QueryContext(ctx, q, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanReminder(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func (rs *reminders) Delete(ctx context.Context, key, name string) error {
	q := rs.s.dialect.rebind(`DELETE FROM reminders WHERE entity_key = ? AND name = ?`)
	return rs.s.do(ctx, "delete reminder", func() error {
		_, err := rs.s.db.ExecContext(ctx, q, key, name)
		return err
	})
}

func (rs *reminders) Lease(ctx context.Context, owner string, now, until time.Time, limit int) ([]*model.Reminder, error) {
	d := rs.s.dialect
	sel := d.rebind(`SELECT ` + reminderColumns + ` FROM reminders
		WHERE next_fire_at <= ? AND (lease_owner = '' OR lease_until <= ?)
		ORDER BY next_fire_at
		LIMIT ?` + d.SkipLockedSuffix)
	upd := d.rebind(`UPDATE reminders SET lease_owner = ?, lease_until = ? WHERE entity_key = ? AND name = ?`)

	var out []*model.Reminder
	err := rs.s.do(ctx, "lease reminders", func() error {
		out = out[:0]
		return rs.s.inTx(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, sel, now.UnixNano(), now.UnixNano(), limit)
			if err != nil {
				return err
			}
			for rows.Next() {
				r, err := scanReminder(rows)
				if err != nil {
					rows.Close()
					return err
				}
				out = append(out, r)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()

			for _, r := range out {
				if _, err := tx.ExecContext(ctx, upd, owner, until.UnixNano(), r.EntityKey, r.Name); err != nil {
					return err
				}
				r.LeaseOwner = owner
				r.LeaseUntil = fromNanos(until.UnixNano())
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (rs *reminders) Reschedule(ctx context.Context, key, name, owner string, next time.Time, attempts int) error {
	q := rs.s.dialect.rebind(`UPDATE reminders
		SET next_fire_at = ?, attempt_count = ?, lease_owner = '', lease_until = 0
		WHERE entity_key = ? AND name = ? AND lease_owner = ?`)
	return rs.s.do(ctx, "reschedule reminder", func() error {
		_, err := rs.s.db.ExecContext(ctx, q, next.UnixNano(), attempts, key, name, owner)
		return err
	})
}

func (rs *reminders) Complete(ctx context.Context, key, name, owner string) error {
	q := rs.s.dialect.rebind(`DELETE FROM reminders WHERE entity_key = ? AND name = ? AND lease_owner = ?`)
	return rs.s.do(ctx, "complete reminder", func() error {
		_, err := rs.s.db.ExecContext(ctx, q, key, name, owner)
		return err
	})
}

func (rs *reminders) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	q := rs.s.dialect.rebind(`UPDATE reminders SET lease_owner = '', lease_until = 0
		WHERE lease_owner <> '' AND lease_until <= ?`)
	var n int64
	err := rs.s.do(ctx, "release leases", func() error {
		res, err := rs.s.db.ExecContext(ctx, q, now.UnixNano())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (rs *reminders) Count(ctx context.Context) (int, error) {
	var n int
	err := rs.s.do(ctx, "count reminders", func() error {
		return rs.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders`).Scan(&n)
	})
	return n, err
}
