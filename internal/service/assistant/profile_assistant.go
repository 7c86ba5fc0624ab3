package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDossier is what the context assembler sees for a user with no
// profile row yet. Absence of a dossier is a defined state, not an error.
const DefaultDossier = "No prior information recorded for this agent."

// Dossier returns the stored dossier text for the user, or DefaultDossier
// when no profile row exists.
func (s *Service) Dossier(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	var dossier string
	err := s.db.QueryRowContext(ctx,
		`SELECT dossier FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&dossier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultDossier, nil
		}
		return "", fmt.Errorf("load dossier: %w", err)
	}
	if strings.TrimSpace(dossier) == "" {
		return DefaultDossier, nil
	}
	return dossier, nil
}

// UpsertDossier replaces the user's dossier, creating the row on first
// refinement. The update-then-insert runs in one transaction so it stays
// portable across the supported drivers.
func (s *Service) UpsertDossier(ctx context.Context, userID int64, dossier string) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	dossier = strings.TrimSpace(dossier)
	if dossier == "" {
		return errors.New("dossier cannot be empty")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE user_profiles SET dossier = ?, updated_at = ? WHERE user_id = ?`,
		dossier, now, userID,
	)
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dossier rows affected: %w", err)
	}
	if affected == 0 {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO user_profiles (user_id, dossier, updated_at) VALUES (?, ?, ?)`,
			userID, dossier, now,
		); err != nil {
			return fmt.Errorf("insert dossier: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit dossier: %w", err)
	}
	return nil
}
