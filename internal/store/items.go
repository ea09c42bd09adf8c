package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ak125/contentgate/internal/content"
)

// #region upsert-item
// UpsertItem inserts or refreshes an item's catalog fields. Publishing state
// (auto-publish flag, QA baseline) is left untouched on update.
func (s *Store) UpsertItem(ctx context.Context, item content.Item) error {
	protected, err := json.Marshal(item.Protected)
	if err != nil {
		return fmt.Errorf("marshal protected fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (item_id, label, description, protected, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   label = excluded.label,
		   description = excluded.description,
		   protected = excluded.protected,
		   updated_at = excluded.updated_at`,
		item.ID, item.Label, item.Description, string(protected), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// #endregion upsert-item

// #region get-item
// GetItem reads one item.
func (s *Store) GetItem(ctx context.Context, id string) (ItemRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, label, description, protected, auto_publish, qa_baseline, updated_at
		 FROM items WHERE item_id = ?`, id)
	rec, err := scanItem(row)
	if err != nil {
		return ItemRecord{}, notFound(err, "get item "+id)
	}
	return rec, nil
}

// ListItems returns every item ordered by id.
func (s *Store) ListItems(ctx context.Context) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, label, description, protected, auto_publish, qa_baseline, updated_at
		 FROM items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (ItemRecord, error) {
	var rec ItemRecord
	var protected string
	var auto int
	var baseline sql.NullString
	var updated string
	if err := row.Scan(&rec.ID, &rec.Label, &rec.Description, &protected, &auto, &baseline, &updated); err != nil {
		return ItemRecord{}, err
	}
	if err := json.Unmarshal([]byte(protected), &rec.Protected); err != nil {
		return ItemRecord{}, fmt.Errorf("unmarshal protected fields: %w", err)
	}
	rec.AutoPublish = auto == 1
	rec.QABaseline = baseline.String
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

// #endregion get-item

// #region publishing-state
// SetAutoPublish flips the item's auto-publish toggle.
func (s *Store) SetAutoPublish(ctx context.Context, id string, on bool) error {
	return s.updateItem(ctx, id, `UPDATE items SET auto_publish = ? WHERE item_id = ?`, boolInt(on), id)
}

// SetQABaseline records the protected-field hash later publishes are compared against.
func (s *Store) SetQABaseline(ctx context.Context, id, hash string) error {
	return s.updateItem(ctx, id, `UPDATE items SET qa_baseline = ? WHERE item_id = ?`, hash, id)
}

func (s *Store) updateItem(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update item %s: %w", id, ErrNotFound)
	}
	return nil
}

// #endregion publishing-state
