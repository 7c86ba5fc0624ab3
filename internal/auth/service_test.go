package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/legacyosint/osint-chatbot/internal/config"
	"github.com/legacyosint/osint-chatbot/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		"agent", "hash", time.Now().UTC(),
	); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return db
}

func TestIssueAndValidateToken(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	userID, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if userID != 1 {
		t.Fatalf("expected user 1, got %d", userID)
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)

	if _, err := svc.ValidateToken(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec(`UPDATE user_tokens SET expires_at = ? WHERE token = ?`, past, token); err != nil {
		t.Fatalf("expire token: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	// expired tokens are removed on validation
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected expired token row to be deleted")
	}
}

func TestRevokeUserTokens(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()

	first, err := svc.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	second, err := svc.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := svc.RevokeUserTokens(ctx, 1); err != nil {
		t.Fatalf("revoke user tokens: %v", err)
	}
	for _, token := range []string{first, second} {
		if _, err := svc.ValidateToken(ctx, token); err == nil {
			t.Fatalf("token %s should be revoked", token)
		}
	}
}
