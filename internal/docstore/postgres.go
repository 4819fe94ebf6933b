package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// PostgresStore keeps every document as a JSONB row keyed by its path. Change
// fan-out goes through the notifier so other processes see writes too.
type PostgresStore struct {
	db       *sql.DB
	notifier Notifier
}

func NewPostgresStore(db *sql.DB, notifier Notifier) *PostgresStore {
	return &PostgresStore{db: db, notifier: notifier}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Snapshot, error) {
	var raw []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE path = $1`, path,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: true, Data: raw, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, value any, merge bool) error {
	doc, err := normalizeMap(value)
	if err != nil {
		return err
	}
	if merge {
		err = s.mutate(ctx, path, true, func(existing map[string]any) (map[string]any, bool, error) {
			if existing == nil {
				return doc, true, nil
			}
			mergeTop(existing, doc)
			return existing, true, nil
		})
	} else {
		err = s.upsert(ctx, path, doc)
	}
	if err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, path string, fields map[string]any) error {
	err := s.mutate(ctx, path, false, func(existing map[string]any) (map[string]any, bool, error) {
		if err := applyFields(existing, fields); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

func (s *PostgresStore) AppendToSet(ctx context.Context, path, field string, value any) error {
	changed := false
	err := s.mutate(ctx, path, false, func(existing map[string]any) (map[string]any, bool, error) {
		appended, err := appendUnique(existing, field, value)
		if err != nil {
			return nil, false, err
		}
		changed = appended
		return existing, appended, nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, path)
	}
	return nil
}

func (s *PostgresStore) RunTransaction(ctx context.Context, path string, fn func(Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	tx := &postgresTx{ctx: ctx, dbTx: dbTx, path: path}
	if err := tx.load(); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if tx.dirty {
		if err := tx.flush(); err != nil {
			_ = dbTx.Rollback()
			return err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	if tx.dirty {
		s.publish(ctx, path)
	}
	return nil
}

func (s *PostgresStore) Subscribe(path string, onChange func(Snapshot), onError func(error)) (CancelFunc, error) {
	deliver := func() {
		snap, err := s.Get(context.Background(), path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(snap)
	}
	cancel, err := s.notifier.Subscribe(func(changed string) {
		if changed == path {
			deliver()
		}
	})
	if err != nil {
		return nil, err
	}
	deliver()
	return cancel, nil
}

func (s *PostgresStore) CollectionSubscribe(prefix string, onChange func([]Snapshot), onError func(error)) (CancelFunc, error) {
	deliver := func() {
		children, err := s.children(context.Background(), prefix)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(children)
	}
	cancel, err := s.notifier.Subscribe(func(changed string) {
		if parentOf(changed) == prefix {
			deliver()
		}
	})
	if err != nil {
		return nil, err
	}
	deliver()
	return cancel, nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]Snapshot, error) {
	return s.children(ctx, prefix)
}

func (s *PostgresStore) ServerTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	return now.UTC(), nil
}

func (s *PostgresStore) children(ctx context.Context, prefix string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, updated_at FROM documents WHERE parent = $1 ORDER BY path`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", prefix, err)
	}
	defer rows.Close()

	var children []Snapshot
	for rows.Next() {
		var snap Snapshot
		var raw []byte
		if err := rows.Scan(&snap.Path, &raw, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		snap.Exists = true
		snap.Data = raw
		children = append(children, snap)
	}
	return children, rows.Err()
}

// mutate runs a locked read-modify-write on one document row. The callback
// receives the decoded document (nil when absent and createIfMissing is set)
// and returns the document to write plus whether to write at all.
func (s *PostgresStore) mutate(ctx context.Context, path string, createIfMissing bool, fn func(map[string]any) (map[string]any, bool, error)) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	var raw []byte
	err = dbTx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path,
	).Scan(&raw)
	var existing map[string]any
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !createIfMissing {
			return fmt.Errorf("mutate %s: %w", path, ErrNotFound)
		}
	case err != nil:
		return fmt.Errorf("lock %s: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}

	updated, write, err := fn(existing)
	if err != nil {
		return err
	}
	if write {
		encoded, err := encodeDoc(updated)
		if err != nil {
			return err
		}
		if _, err := dbTx.ExecContext(ctx, upsertQuery, path, parentOf(path), []byte(encoded)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return dbTx.Commit()
}

const upsertQuery = `
	INSERT INTO documents (path, parent, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`

func (s *PostgresStore) upsert(ctx context.Context, path string, doc map[string]any) error {
	encoded, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertQuery, path, parentOf(path), []byte(encoded)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) publish(ctx context.Context, path string) {
	if err := s.notifier.Publish(ctx, path); err != nil {
		log.Printf("docstore: publish change for %s: %v", path, err)
	}
}

type postgresTx struct {
	ctx    context.Context
	dbTx   *sql.Tx
	path   string
	staged map[string]any
	exists bool
	dirty  bool
}

func (tx *postgresTx) load() error {
	var raw []byte
	err := tx.dbTx.QueryRowContext(tx.ctx,
		`SELECT data FROM documents WHERE path = $1 FOR UPDATE`, tx.path,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", tx.path, err)
	}
	if err := json.Unmarshal(raw, &tx.staged); err != nil {
		return fmt.Errorf("decode %s: %w", tx.path, err)
	}
	tx.exists = true
	return nil
}

func (tx *postgresTx) flush() error {
	encoded, err := encodeDoc(tx.staged)
	if err != nil {
		return err
	}
	if _, err := tx.dbTx.ExecContext(tx.ctx, upsertQuery, tx.path, parentOf(tx.path), []byte(encoded)); err != nil {
		return fmt.Errorf("write %s: %w", tx.path, err)
	}
	return nil
}

func (tx *postgresTx) Get() (Snapshot, error) {
	if !tx.exists {
		return Snapshot{Path: tx.path}, nil
	}
	raw, err := encodeDoc(tx.staged)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: tx.path, Exists: true, Data: raw}, nil
}

func (tx *postgresTx) Set(value any, merge bool) error {
	doc, err := normalizeMap(value)
	if err != nil {
		return err
	}
	if merge && tx.exists {
		mergeTop(tx.staged, doc)
	} else {
		tx.staged = doc
	}
	tx.exists = true
	tx.dirty = true
	return nil
}

func (tx *postgresTx) Update(fields map[string]any) error {
	if !tx.exists {
		return fmt.Errorf("update %s: %w", tx.path, ErrNotFound)
	}
	if err := applyFields(tx.staged, fields); err != nil {
		return err
	}
	tx.dirty = true
	return nil
}
