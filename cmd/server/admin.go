package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/intake"
	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/report"
	"github.com/hairbuy/intake/internal/store"
)

const dateLayout = "2006-01-02"

type applicationJSON struct {
	ID             int64        `json:"id"`
	Status         store.Status `json:"status"`
	StatusLabel    string       `json:"status_label"`
	LengthBand     pricing.Band `json:"length_band"`
	LengthCM       *int         `json:"length_cm"`
	Color          string       `json:"color"`
	Structure      string       `json:"structure"`
	Condition      string       `json:"condition"`
	Age            string       `json:"age"`
	Photos         []string     `json:"photos"`
	Name           string       `json:"name"`
	Phone          string       `json:"phone"`
	Email          string       `json:"email,omitempty"`
	City           string       `json:"city,omitempty"`
	Comment        string       `json:"comment,omitempty"`
	EstimatedPrice int64        `json:"estimated_price"`
	FinalPrice     *int64       `json:"final_price"`
	AdminNotes     string       `json:"admin_notes"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func newApplicationJSON(a store.Application) applicationJSON {
	photos := make([]string, 0, len(a.Photos))
	for _, p := range a.Photos {
		photos = append(photos, "/admin/api/photos/"+p)
	}
	return applicationJSON{
		ID:             a.ID,
		Status:         a.Status,
		StatusLabel:    a.Status.Label(),
		LengthBand:     a.LengthBand,
		LengthCM:       a.LengthCM,
		Color:          string(a.Color),
		Structure:      string(a.Structure),
		Condition:      string(a.Condition),
		Age:            string(a.Age),
		Photos:         photos,
		Name:           a.Name,
		Phone:          a.Phone,
		Email:          a.Email,
		City:           a.City,
		Comment:        a.Comment,
		EstimatedPrice: a.EstimatedPrice,
		FinalPrice:     a.FinalPrice,
		AdminNotes:     a.AdminNotes,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<14)).Decode(&req); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: malformed JSON body", errBadRequest))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid form", errBadRequest))
			return
		}
		req = loginRequest{Email: r.FormValue("email"), Password: r.FormValue("password")}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	valid, err := s.auth.validateCredentials(r.Context(), email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !valid {
		s.logger.Warn("admin login rejected", zap.String("email", email))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}

	s.auth.setSessionCookie(w, email)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type listResponse struct {
	Items  []applicationJSON `json:"items"`
	Total  int               `json:"total"`
	Limit  uint64            `json:"limit"`
	Offset uint64            `json:"offset"`
}

func (s *server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apps, total, err := s.store.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]applicationJSON, 0, len(apps))
	for _, a := range apps {
		items = append(items, newApplicationJSON(a))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// parseFilter reads status, q, from, to (inclusive dates), limit and offset.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Status: store.Status(q.Get("status")),
		Query:  strings.TrimSpace(q.Get("q")),
	}
	fields := map[string]string{}

	if raw := q.Get("from"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			fields["from"] = "Ожидается дата ГГГГ-ММ-ДД"
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			fields["to"] = "Ожидается дата ГГГГ-ММ-ДД"
		}
		f.To = t.AddDate(0, 0, 1)
	}
	for name, dst := range map[string]*uint64{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fields[name] = "Ожидается неотрицательное число"
			continue
		}
		*dst = n
	}
	if len(fields) > 0 {
		return store.Filter{}, intake.ValidationErrors(fields)
	}
	return f, nil
}

func (s *server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := applicationID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.store.MarkViewed(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationJSON(a))
}

type updateRequest struct {
	Status     *store.Status   `json:"status"`
	FinalPrice json.RawMessage `json:"final_price"`
	AdminNotes *string         `json:"admin_notes"`
}

// handleUpdateApplication applies a partial update. A null final_price clears
// it; an absent one leaves it unchanged.
func (s *server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, err := applicationID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed JSON body", errBadRequest))
		return
	}

	u := store.AdminUpdate{Status: req.Status, AdminNotes: req.AdminNotes}
	if raw := bytes.TrimSpace(req.FinalPrice); len(raw) > 0 {
		if bytes.Equal(raw, []byte("null")) {
			u.ClearFinalPrice = true
		} else {
			var price int64
			if err := json.Unmarshal(raw, &price); err != nil || price < 0 {
				s.writeError(w, r, intake.ValidationErrors{"final_price": "Ожидается неотрицательное целое число"})
				return
			}
			u.FinalPrice = &price
		}
	}

	before, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.store.UpdateAdmin(r.Context(), id, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a.Status != before.Status {
		observability.StatusChanges.WithLabelValues(string(a.Status), "admin").Inc()
		s.logger.Info("application status changed",
			zap.Int64("application_id", a.ID),
			zap.String("from", string(before.Status)),
			zap.String("status", string(a.Status)),
		)
	}
	writeJSON(w, http.StatusOK, newApplicationJSON(a))
}

func applicationID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid application id", errBadRequest)
	}
	return id, nil
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := report.BuildDashboard(r.Context(), s.store, s.now(), trendDays(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) handleTrend(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.Trend(r.Context(), s.now(), trendDays(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// trendDays reads ?days=, leaving defaults and the upper bound to the store.
func trendDays(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		return 0
	}
	return n
}

func (s *server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteApplicationsCSV(&buf, apps); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAttachment(w, "text/csv; charset=utf-8", "applications", "csv", buf.Bytes())
}

func (s *server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := report.ApplicationsXLSX(apps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAttachment(w, xlsxContentType, "applications", "xlsx", data)
}

func (s *server) handleExportPrices(w http.ResponseWriter, r *http.Request) {
	data, err := report.PriceTableXLSX(s.prices.Engine())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAttachment(w, xlsxContentType, "prices", "xlsx", data)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *server) writeAttachment(w http.ResponseWriter, contentType, name, ext string, data []byte) {
	filename := fmt.Sprintf("%s_%s.%s", name, s.now().Format("20060102_1504"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type overrideJSON struct {
	Length string `json:"length"`
	Color  string `json:"color"`
	Amount int64  `json:"amount"`
}

type priceTableResponse struct {
	Currency  string            `json:"currency"`
	Grid      []report.PriceRow `json:"grid"`
	Overrides []overrideJSON    `json:"overrides"`
}

func (s *server) handleAdminPrices(w http.ResponseWriter, r *http.Request) {
	engine := s.prices.Engine()
	grid, err := report.PriceGrid(engine)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	overrides, err := s.store.ListOverrides(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]overrideJSON, 0, len(overrides))
	for _, o := range overrides {
		out = append(out, overrideJSON{Length: string(o.Band), Color: string(o.Color), Amount: o.Amount})
	}
	writeJSON(w, http.StatusOK, priceTableResponse{Currency: engine.Table().Currency(), Grid: grid, Overrides: out})
}

// handlePutOverride saves the override only when the table it produces is
// valid, then swaps the live table.
func (s *server) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideJSON
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<14)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed JSON body", errBadRequest))
		return
	}
	o, fields := parseOverride(req.Length, req.Color)
	if req.Amount < 0 {
		fields["amount"] = "Сумма не может быть отрицательной"
	}
	if len(fields) > 0 {
		s.writeError(w, r, intake.ValidationErrors(fields))
		return
	}
	o.Amount = req.Amount

	err := s.editOverrides(r.Context(), func(current []pricing.Override) ([]pricing.Override, error) {
		return replaceOverride(current, o), nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("price override saved",
		zap.String("length", string(o.Band)),
		zap.String("color", string(o.Color)),
		zap.Int64("amount", o.Amount),
	)
	writeJSON(w, http.StatusOK, overrideJSON{Length: string(o.Band), Color: string(o.Color), Amount: o.Amount})
}

func (s *server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	o, fields := parseOverride(chi.URLParam(r, "length"), chi.URLParam(r, "color"))
	if len(fields) > 0 {
		s.writeError(w, r, intake.ValidationErrors(fields))
		return
	}

	err := s.editOverrides(r.Context(), func(current []pricing.Override) ([]pricing.Override, error) {
		remaining := current[:0:0]
		for _, c := range current {
			if c.Band != o.Band || c.Color != o.Color {
				remaining = append(remaining, c)
			}
		}
		if len(remaining) == len(current) {
			return nil, fmt.Errorf("price override %s/%s: %w", o.Band, o.Color, store.ErrNotFound)
		}
		return remaining, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("price override removed",
		zap.String("length", string(o.Band)),
		zap.String("color", string(o.Color)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// editOverrides applies edit to the stored overrides and swaps the live table.
// Edits are serialized and the set is rejected unless the resulting table is
// valid, so concurrent requests cannot commit a table neither checked.
func (s *server) editOverrides(ctx context.Context, edit func([]pricing.Override) ([]pricing.Override, error)) error {
	s.pricesMu.Lock()
	defer s.pricesMu.Unlock()

	var table *pricing.Table
	err := s.store.EditOverrides(ctx, func(current []pricing.Override) ([]pricing.Override, error) {
		next, err := edit(current)
		if err != nil {
			return nil, err
		}
		t, err := s.baseTable.WithOverrides(next)
		if err != nil {
			return nil, intake.ValidationErrors{"amount": err.Error()}
		}
		table = t
		return next, nil
	})
	if err != nil {
		return err
	}
	s.prices.Swap(table)
	return nil
}

func replaceOverride(current []pricing.Override, o pricing.Override) []pricing.Override {
	next := make([]pricing.Override, 0, len(current)+1)
	for _, c := range current {
		if c.Band != o.Band || c.Color != o.Color {
			next = append(next, c)
		}
	}
	return append(next, o)
}

func parseOverride(rawBand, rawColor string) (pricing.Override, map[string]string) {
	fields := map[string]string{}
	band, ok := pricing.ParseBand(rawBand)
	if !ok {
		fields["length"] = "Неизвестный диапазон длины"
	}
	color, ok := pricing.NormalizeColor(rawColor)
	if !ok {
		fields["color"] = "Неизвестный цвет"
	}
	return pricing.Override{Band: band, Color: color}, fields
}

func (s *server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	path, err := s.photos.Path(chi.URLParam(r, "*"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
