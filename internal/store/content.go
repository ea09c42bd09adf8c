package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ak125/contentgate/internal/content"
)

// #region save-content
// SaveContent stores a new version of the (item, role) page, parented on the
// active one, and moves the active pointer to it in one transaction.
func (s *Store) SaveContent(ctx context.Context, itemID string, role content.Role, html string, origin Origin, meta string) (ContentVersion, error) {
	sum := sha256.Sum256([]byte(html))
	v := ContentVersion{
		VersionID: uuid.New().String(),
		ItemID:    itemID,
		Role:      role,
		HTML:      html,
		Hash:      hex.EncodeToString(sum[:]),
		Origin:    origin,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ContentVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_content WHERE item_id = ? AND role = ?`, itemID, string(role),
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ContentVersion{}, fmt.Errorf("read active: %w", err)
	}
	v.ParentID = parent.String

	_, err = tx.ExecContext(ctx,
		`INSERT INTO content_versions (version_id, parent_id, item_id, role, html, content_hash, origin, meta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, nullIfEmpty(v.ParentID), itemID, string(role), html, v.Hash, string(origin),
		nullIfEmpty(meta), v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ContentVersion{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_content (item_id, role, version_id) VALUES (?, ?, ?)
		 ON CONFLICT(item_id, role) DO UPDATE SET version_id = excluded.version_id`,
		itemID, string(role), v.VersionID,
	)
	if err != nil {
		return ContentVersion{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ContentVersion{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// #endregion save-content

// #region active-content
// ActiveContent reads the active version of the (item, role) page.
func (s *Store) ActiveContent(ctx context.Context, itemID string, role content.Role) (ContentVersion, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_content WHERE item_id = ? AND role = ?`, itemID, string(role),
	).Scan(&versionID)
	if err != nil {
		return ContentVersion{}, notFound(err, fmt.Sprintf("active content %s/%s", itemID, role))
	}
	return s.GetVersion(ctx, versionID)
}

// GetVersion retrieves one content version.
func (s *Store) GetVersion(ctx context.Context, id string) (ContentVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, item_id, role, html, content_hash, origin, meta_json, created_at
		 FROM content_versions WHERE version_id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return ContentVersion{}, notFound(err, "get version "+id)
	}
	return v, nil
}

// ListVersions returns the most recent versions of the (item, role) page, newest first.
func (s *Store) ListVersions(ctx context.Context, itemID string, role content.Role, limit int) ([]ContentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, item_id, role, html, content_hash, origin, meta_json, created_at
		 FROM content_versions WHERE item_id = ? AND role = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, itemID, string(role), limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []ContentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVersion(row scanner) (ContentVersion, error) {
	var v ContentVersion
	var parent, meta sql.NullString
	var role, origin, created string
	if err := row.Scan(&v.VersionID, &parent, &v.ItemID, &role, &v.HTML, &v.Hash, &origin, &meta, &created); err != nil {
		return ContentVersion{}, err
	}
	v.ParentID = parent.String
	v.Role = content.Role(role)
	v.Origin = Origin(origin)
	v.Meta = meta.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return v, nil
}

// #endregion active-content

// #region rollback
// Rollback points the (item, role) page back at an earlier version.
func (s *Store) Rollback(ctx context.Context, itemID string, role content.Role, versionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_versions WHERE version_id = ? AND item_id = ? AND role = ?`,
		versionID, itemID, string(role),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE active_content SET version_id = ? WHERE item_id = ? AND role = ?`,
		versionID, itemID, string(role))
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback
