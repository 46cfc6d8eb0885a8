package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// TelegramAdmin is a chat allowed to drive the bot. Active admins may read
// applications; changing their status also needs CanManageApplications.
type TelegramAdmin struct {
	ID                    int64
	ChatID                int64
	Username              string
	FirstName             string
	Active                bool
	CanManageApplications bool
}

var telegramAdminColumns = []string{"id", "chat_id", "username", "first_name", "is_active", "can_manage_applications"}

func scanTelegramAdmin(row sq.RowScanner) (TelegramAdmin, error) {
	var a TelegramAdmin
	err := row.Scan(&a.ID, &a.ChatID, &a.Username, &a.FirstName, &a.Active, &a.CanManageApplications)
	return a, err
}

// ActiveTelegramAdmins returns admins that receive notifications.
func (s *Store) ActiveTelegramAdmins(ctx context.Context) ([]TelegramAdmin, error) {
	rows, err := sq.Select(telegramAdminColumns...).
		From("telegram_admins").
		Where(sq.Eq{"is_active": 1}).
		OrderBy("id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list telegram admins: %w", err)
	}
	defer rows.Close()

	var out []TelegramAdmin
	for rows.Next() {
		a, err := scanTelegramAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan telegram admin: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TelegramAdminByChat returns the admin registered for chatID, active or not.
func (s *Store) TelegramAdminByChat(ctx context.Context, chatID int64) (TelegramAdmin, error) {
	row := sq.Select(telegramAdminColumns...).
		From("telegram_admins").
		Where(sq.Eq{"chat_id": chatID}).
		RunWith(s.db).
		QueryRowContext(ctx)
	a, err := scanTelegramAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TelegramAdmin{}, fmt.Errorf("telegram admin %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return TelegramAdmin{}, fmt.Errorf("get telegram admin %d: %w", chatID, err)
	}
	return a, nil
}

// EnsureTelegramAdmin inserts a when its chat id is unknown. It reports
// whether a row was inserted; existing rows are not modified.
func (s *Store) EnsureTelegramAdmin(ctx context.Context, a TelegramAdmin) (bool, error) {
	return ensureTelegramAdmin(ctx, s.db, a)
}

func ensureTelegramAdmin(ctx context.Context, runner sq.BaseRunner, a TelegramAdmin) (bool, error) {
	res, err := sq.Insert("telegram_admins").
		Columns("chat_id", "username", "first_name", "is_active", "can_manage_applications").
		Values(a.ChatID, a.Username, a.FirstName, a.Active, a.CanManageApplications).
		Suffix("ON CONFLICT (chat_id) DO NOTHING").
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("insert telegram admin %d: %w", a.ChatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert telegram admin %d: %w", a.ChatID, err)
	}
	return n == 1, nil
}
