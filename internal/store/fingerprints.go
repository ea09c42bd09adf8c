package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/content"
)

// #region save-fingerprints
// SaveFingerprints appends the page and section fingerprints of one published version.
func (s *Store) SaveFingerprints(ctx context.Context, itemID string, fps []compliance.SectionFingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, fp := range fps {
		vec, err := json.Marshal(fp.Vector)
		if err != nil {
			return fmt.Errorf("marshal fingerprint: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprints (item_id, role, section, vector_json, created_at) VALUES (?, ?, ?, ?, ?)`,
			itemID, string(fp.Role), string(fp.Section), string(vec), now,
		); err != nil {
			return fmt.Errorf("insert fingerprint: %w", err)
		}
	}
	return tx.Commit()
}

// #endregion save-fingerprints

// #region latest-fingerprints
// LatestFingerprints returns, for every role other than exclude, the most
// recent fingerprint of each section (and of the whole page) of the item.
func (s *Store) LatestFingerprints(ctx context.Context, itemID string, exclude content.Role) ([]compliance.SectionFingerprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.role, f.section, f.vector_json
		 FROM fingerprints f
		 JOIN (SELECT role, section, MAX(id) AS id FROM fingerprints
		       WHERE item_id = ? AND role != ? GROUP BY role, section) latest
		   ON latest.id = f.id
		 ORDER BY f.role, f.section`,
		itemID, string(exclude),
	)
	if err != nil {
		return nil, fmt.Errorf("latest fingerprints: %w", err)
	}
	defer rows.Close()

	var out []compliance.SectionFingerprint
	for rows.Next() {
		var role, section, vec string
		if err := rows.Scan(&role, &section, &vec); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp := compliance.SectionFingerprint{Role: content.Role(role), Section: content.SectionKey(section)}
		if err := json.Unmarshal([]byte(vec), &fp.Vector); err != nil {
			return nil, fmt.Errorf("unmarshal fingerprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// #endregion latest-fingerprints
