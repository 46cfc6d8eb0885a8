package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	// TelegramChatIDs are registered as active admins with every permission.
	TelegramChatIDs []int64
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(ctx, tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	for _, chatID := range cfg.TelegramChatIDs {
		if err := ensureTelegramAdmin(ctx, tx, chatID, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

// seedAdmin creates the staff user, or refreshes its hash when the configured
// password no longer matches.
func seedAdmin(ctx context.Context, tx *sql.Tx, email, password string, stats *Stats) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var current string
	err := tx.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE email = ?`, email).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check admin user existence: %w", err)
	default:
		if bcrypt.CompareHashAndPassword([]byte(current), []byte(password)) == nil {
			return nil
		}
	}

	hash, herr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if herr != nil {
		return fmt.Errorf("hash admin password: %w", herr)
	}

	if err == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE email = ?`, string(hash), email); err != nil {
			return fmt.Errorf("update admin password: %w", err)
		}
		stats.Updates++
		return nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, string(hash)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureTelegramAdmin(ctx context.Context, tx *sql.Tx, chatID int64, stats *Stats) error {
	if chatID == 0 {
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO telegram_admins (chat_id, is_active, can_manage_applications)
		VALUES (?, 1, 1)
		ON CONFLICT (chat_id) DO NOTHING
	`, chatID)
	if err != nil {
		return fmt.Errorf("insert telegram admin %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert telegram admin %d: %w", chatID, err)
	}
	stats.Inserts += int(n)
	return nil
}
