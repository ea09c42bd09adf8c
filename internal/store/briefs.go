package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ak125/contentgate/internal/content"
)

// #region save-brief
// SaveBrief stores a new brief version for its (item, role). The brief gets a
// fresh id and the next version number; its status defaults to draft.
func (s *Store) SaveBrief(ctx context.Context, b content.Brief) (content.Brief, error) {
	if !b.Role.Valid() {
		return content.Brief{}, fmt.Errorf("save brief: unknown role %q", b.Role)
	}
	if b.Status == "" {
		b.Status = content.BriefDraft
	}
	if b.Status == content.BriefActive {
		return content.Brief{}, fmt.Errorf("save brief: use ActivateBrief to activate")
	}
	b.ID = uuid.New().String()

	secondary, forbidden, required, err := marshalLists(b)
	if err != nil {
		return content.Brief{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.Brief{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM briefs WHERE item_id = ? AND role = ?`,
		b.ItemID, string(b.Role),
	).Scan(&b.Version); err != nil {
		return content.Brief{}, fmt.Errorf("next brief version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO briefs (brief_id, item_id, role, primary_intent, secondary_intents, forbidden_overlap,
		                     required_terms, primary_keyword, status, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ItemID, string(b.Role), b.PrimaryIntent, secondary, forbidden, required,
		b.PrimaryKeyword, string(b.Status), b.Version, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return content.Brief{}, fmt.Errorf("insert brief: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return content.Brief{}, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

func marshalLists(b content.Brief) (string, string, string, error) {
	var out [3]string
	for i, list := range [][]string{b.SecondaryIntents, b.ForbiddenOverlap, b.RequiredTerms} {
		if list == nil {
			list = []string{}
		}
		data, err := json.Marshal(list)
		if err != nil {
			return "", "", "", fmt.Errorf("marshal brief lists: %w", err)
		}
		out[i] = string(data)
	}
	return out[0], out[1], out[2], nil
}

// #endregion save-brief

// #region activate-brief
// ActivateBrief makes the brief the active contract for its (item, role),
// archiving the previously active brief in the same transaction.
func (s *Store) ActivateBrief(ctx context.Context, briefID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var itemID, role, status string
	err = tx.QueryRowContext(ctx,
		`SELECT item_id, role, status FROM briefs WHERE brief_id = ?`, briefID,
	).Scan(&itemID, &role, &status)
	if err != nil {
		return notFound(err, "get brief "+briefID)
	}
	if content.BriefStatus(status) == content.BriefArchived {
		return fmt.Errorf("activate brief %s: brief is archived", briefID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE briefs SET status = ? WHERE item_id = ? AND role = ? AND status = ? AND brief_id != ?`,
		string(content.BriefArchived), itemID, role, string(content.BriefActive), briefID,
	); err != nil {
		return fmt.Errorf("archive previous brief: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE briefs SET status = ? WHERE brief_id = ?`, string(content.BriefActive), briefID,
	); err != nil {
		return fmt.Errorf("activate brief: %w", err)
	}
	return tx.Commit()
}

// #endregion activate-brief

// #region get-brief
const briefColumns = `brief_id, item_id, role, primary_intent, secondary_intents, forbidden_overlap,
	required_terms, primary_keyword, status, version`

// ActiveBrief returns the active brief for (item, role), or ErrNotFound.
func (s *Store) ActiveBrief(ctx context.Context, itemID string, role content.Role) (content.Brief, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+briefColumns+` FROM briefs WHERE item_id = ? AND role = ? AND status = ?`,
		itemID, string(role), string(content.BriefActive))
	b, err := scanBrief(row)
	if err != nil {
		return content.Brief{}, notFound(err, fmt.Sprintf("active brief %s/%s", itemID, role))
	}
	return b, nil
}

// GetBrief reads one brief by id.
func (s *Store) GetBrief(ctx context.Context, id string) (content.Brief, error) {
	b, err := scanBrief(s.db.QueryRowContext(ctx, `SELECT `+briefColumns+` FROM briefs WHERE brief_id = ?`, id))
	if err != nil {
		return content.Brief{}, notFound(err, "get brief "+id)
	}
	return b, nil
}

func scanBrief(row scanner) (content.Brief, error) {
	var b content.Brief
	var role, status, secondary, forbidden, required string
	if err := row.Scan(&b.ID, &b.ItemID, &role, &b.PrimaryIntent, &secondary, &forbidden,
		&required, &b.PrimaryKeyword, &status, &b.Version); err != nil {
		return content.Brief{}, err
	}
	b.Role = content.Role(role)
	b.Status = content.BriefStatus(status)
	for _, f := range []struct {
		raw  string
		dest *[]string
	}{{secondary, &b.SecondaryIntents}, {forbidden, &b.ForbiddenOverlap}, {required, &b.RequiredTerms}} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return content.Brief{}, fmt.Errorf("unmarshal brief lists: %w", err)
		}
	}
	return b, nil
}

// #endregion get-brief
