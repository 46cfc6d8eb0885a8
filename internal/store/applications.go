package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hairbuy/intake/internal/pricing"
)

var applicationColumns = []string{
	"id", "length_band", "length_cm", "color", "structure", "condition", "age",
	"photo1", "photo2", "photo3", "name", "phone", "email", "city", "comment",
	"estimated_price", "final_price", "status", "admin_notes", "created_at", "updated_at",
}

// Filter narrows List. Zero fields do not filter. Query matches name, phone,
// email, city and comment case-insensitively; From is inclusive, To exclusive.
type Filter struct {
	Status Status
	Query  string
	From   time.Time
	To     time.Time
	Limit  uint64
	Offset uint64
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Create stores a new application with status new.
func (s *Store) Create(ctx context.Context, in NewApplication) (Application, error) {
	if len(in.Photos) == 0 {
		return Application{}, fmt.Errorf("create application: at least one photo is required")
	}
	photos := [3]string{}
	copy(photos[:], in.Photos)

	var lengthCM any
	if cm, ok := in.Length.CM(); ok {
		lengthCM = cm
	}
	now := formatTime(s.now())

	res, err := sq.Insert("applications").
		SetMap(map[string]any{
			"length_band":     string(in.Length.Band()),
			"length_cm":       lengthCM,
			"color":           string(in.Color),
			"structure":       string(in.Structure),
			"condition":       string(in.Condition),
			"age":             string(in.Age),
			"photo1":          photos[0],
			"photo2":          photos[1],
			"photo3":          photos[2],
			"name":            in.Name,
			"phone":           in.Phone,
			"email":           in.Email,
			"city":            in.City,
			"comment":         in.Comment,
			"estimated_price": in.EstimatedPrice,
			"status":          string(StatusNew),
			"search":          searchText(in.Name, in.Phone, in.Email, in.City, in.Comment),
			"created_at":      now,
			"updated_at":      now,
		}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("insert application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Application{}, fmt.Errorf("read application id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns one application or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Application, error) {
	return getApplication(ctx, s.db, id)
}

func getApplication(ctx context.Context, runner sq.BaseRunner, id int64) (Application, error) {
	row := sq.Select(applicationColumns...).
		From("applications").
		Where(sq.Eq{"id": id}).
		RunWith(runner).
		QueryRowContext(ctx)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Application{}, fmt.Errorf("query application %d: %w", id, err)
	}
	return a, nil
}

// MarkViewed moves a new application to viewed. Other statuses are left alone.
func (s *Store) MarkViewed(ctx context.Context, id int64) (Application, error) {
	_, err := sq.Update("applications").
		Set("status", string(StatusViewed)).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id, "status": string(StatusNew)}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("mark application %d viewed: %w", id, err)
	}
	return s.Get(ctx, id)
}

// List returns one page of applications, newest first, and the total number
// matching the filter.
func (s *Store) List(ctx context.Context, f Filter) ([]Application, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("list applications: %w: %q", ErrInvalidStatus, f.Status)
	}

	var total int
	err := applyFilter(sq.Select("COUNT(*)").From("applications"), f).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	limit := f.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	q := applyFilter(sq.Select(applicationColumns...).From("applications"), f).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		Offset(f.Offset)
	apps, err := s.queryApplications(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return apps, total, nil
}

// All returns every application, newest first, for exports.
func (s *Store) All(ctx context.Context) ([]Application, error) {
	apps, err := s.queryApplications(ctx, sq.Select(applicationColumns...).
		From("applications").
		OrderBy("created_at DESC", "id DESC"))
	if err != nil {
		return nil, fmt.Errorf("list all applications: %w", err)
	}
	return apps, nil
}

// Recent returns the newest applications, optionally only those in status.
func (s *Store) Recent(ctx context.Context, status Status, limit uint64) ([]Application, error) {
	apps, _, err := s.List(ctx, Filter{Status: status, Limit: limit})
	return apps, err
}

// SetStatus moves an application along its lifecycle.
func (s *Store) SetStatus(ctx context.Context, id int64, to Status) (Application, error) {
	return s.UpdateAdmin(ctx, id, AdminUpdate{Status: &to})
}

// AdminUpdate is a partial update from staff. Nil fields are left unchanged.
type AdminUpdate struct {
	Status          *Status
	FinalPrice      *int64
	ClearFinalPrice bool
	AdminNotes      *string
}

func (u AdminUpdate) toMap() map[string]any {
	m := map[string]any{}
	if u.Status != nil {
		m["status"] = string(*u.Status)
	}
	if u.ClearFinalPrice {
		m["final_price"] = nil
	} else if u.FinalPrice != nil {
		m["final_price"] = *u.FinalPrice
	}
	if u.AdminNotes != nil {
		m["admin_notes"] = strings.TrimSpace(*u.AdminNotes)
	}
	return m
}

// UpdateAdmin applies u atomically. A status change must be a valid
// transition; re-setting the current status is a no-op.
func (s *Store) UpdateAdmin(ctx context.Context, id int64, u AdminUpdate) (Application, error) {
	if u.Status != nil && !u.Status.Valid() {
		return Application{}, fmt.Errorf("update application %d: %w: %q", id, ErrInvalidStatus, *u.Status)
	}
	if u.FinalPrice != nil && *u.FinalPrice < 0 {
		return Application{}, fmt.Errorf("update application %d: final price must not be negative", id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getApplication(ctx, tx, id)
	if err != nil {
		return Application{}, err
	}
	if u.Status != nil {
		if !current.Status.CanTransition(*u.Status) {
			return Application{}, &TransitionError{From: current.Status, To: *u.Status}
		}
		if *u.Status == current.Status {
			u.Status = nil
		}
	}

	changes := u.toMap()
	if len(changes) == 0 {
		return current, nil
	}
	changes["updated_at"] = formatTime(s.now())

	if _, err := sq.Update("applications").
		SetMap(changes).
		Where(sq.Eq{"id": id}).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return Application{}, fmt.Errorf("update application %d: %w", id, err)
	}

	updated, err := getApplication(ctx, tx, id)
	if err != nil {
		return Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("commit update transaction: %w", err)
	}
	return updated, nil
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		b = b.Where(sq.Expr(`search LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(q))+"%"))
	}
	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": formatTime(f.From)})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.Lt{"created_at": formatTime(f.To)})
	}
	return b
}

func (s *Store) queryApplications(ctx context.Context, q sq.SelectBuilder) ([]Application, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApplication(row sq.RowScanner) (Application, error) {
	var (
		a                      Application
		band, color            string
		structure, condition   string
		age, status            string
		photo1, photo2, photo3 string
		lengthCM, finalPrice   sql.NullInt64
		createdAt, updatedAt   string
	)
	err := row.Scan(
		&a.ID, &band, &lengthCM, &color, &structure, &condition, &age,
		&photo1, &photo2, &photo3, &a.Name, &a.Phone, &a.Email, &a.City, &a.Comment,
		&a.EstimatedPrice, &finalPrice, &status, &a.AdminNotes, &createdAt, &updatedAt,
	)
	if err != nil {
		return Application{}, err
	}

	a.LengthBand = pricing.Band(band)
	a.Color = pricing.Color(color)
	a.Structure = pricing.Structure(structure)
	a.Condition = pricing.Condition(condition)
	a.Age = pricing.Age(age)
	a.Status = Status(status)
	if lengthCM.Valid {
		cm := int(lengthCM.Int64)
		a.LengthCM = &cm
	}
	if finalPrice.Valid {
		p := finalPrice.Int64
		a.FinalPrice = &p
	}
	for _, p := range []string{photo1, photo2, photo3} {
		if p != "" {
			a.Photos = append(a.Photos, p)
		}
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Application{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Application{}, err
	}
	return a, nil
}

func searchText(name, phone, email, city, comment string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return strings.ToLower(strings.Join([]string{name, phone, digits.String(), email, city, comment}, "\n"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
