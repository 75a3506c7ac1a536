package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskgate/internal/domain"
)

// SQLStore keeps documents in the embedded SQLite database. Run
// migrate.Migrate on DB first.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

func (s *SQLStore) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) Close() error { return s.DB.Close() }

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	d := Document{Collection: collection, ID: id}
	var body string
	err := s.DB.QueryRowContext(ctx, `SELECT body,version,updated_at FROM documents WHERE collection=? AND id=?`, collection, id).
		Scan(&body, &d.Version, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, storeErr("get", err)
	}
	d.Body = []byte(body)
	return d, nil
}

func (s *SQLStore) Put(ctx context.Context, doc Document, expected int64) (Document, error) {
	doc.UpdatedAt = s.now()
	var (
		res sql.Result
		err error
	)
	switch {
	case expected == AnyVersion:
		err = s.DB.QueryRowContext(ctx, `
INSERT INTO documents(collection,id,body,version,updated_at) VALUES (?,?,?,1,?)
ON CONFLICT(collection,id) DO UPDATE SET body=excluded.body, version=documents.version+1, updated_at=excluded.updated_at
RETURNING version`, doc.Collection, doc.ID, string(doc.Body), doc.UpdatedAt).Scan(&doc.Version)
		if err != nil {
			return Document{}, storeErr("put", err)
		}
		return doc, nil
	case expected == NoVersion:
		res, err = s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,body,version,updated_at) VALUES (?,?,?,1,?) ON CONFLICT(collection,id) DO NOTHING`,
			doc.Collection, doc.ID, string(doc.Body), doc.UpdatedAt)
		doc.Version = 1
	default:
		res, err = s.DB.ExecContext(ctx, `UPDATE documents SET body=?, version=version+1, updated_at=? WHERE collection=? AND id=? AND version=?`,
			string(doc.Body), doc.UpdatedAt, doc.Collection, doc.ID, expected)
		doc.Version = expected + 1
	}
	if err != nil {
		return Document{}, storeErr("put", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Document{}, ErrConflict
	}
	return doc, nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string, expected int64) error {
	query := `DELETE FROM documents WHERE collection=? AND id=?`
	args := []any{collection, id}
	if expected != AnyVersion {
		query += ` AND version=?`
		args = append(args, expected)
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 && expected != AnyVersion {
		return ErrConflict
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,body,version,updated_at FROM documents WHERE collection=? ORDER BY id`, collection)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		d := Document{Collection: collection}
		var body string
		if err := rows.Scan(&d.ID, &body, &d.Version, &d.UpdatedAt); err != nil {
			return nil, storeErr("list", err)
		}
		d.Body = []byte(body)
		docs = append(docs, d)
	}
	return docs, storeErr("list", rows.Err())
}

func (s *SQLStore) AppendEvent(ctx context.Context, evt domain.Event) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS, evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, evt.Payload)
	return storeErr("append_event", err)
}

func (s *SQLStore) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if f.EntityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		query += ` AND entity_id=?`
		args = append(args, f.EntityID)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list_events", err)
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, storeErr("list_events", err)
		}
		res = append(res, e)
	}
	return res, storeErr("list_events", rows.Err())
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
