package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/intake"
	"github.com/hairbuy/intake/internal/notify"
	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/report"
	"github.com/hairbuy/intake/internal/store"
)

type calculatorRequest struct {
	Length    any    `json:"length"`
	Color     string `json:"color"`
	Structure string `json:"structure"`
	Condition string `json:"condition"`
	Age       string `json:"age"`
}

type fallbackJSON struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Default string `json:"default"`
}

type quoteResponse struct {
	EstimatedPrice int64          `json:"estimated_price"`
	PriceMin       int64          `json:"price_min"`
	PriceMax       int64          `json:"price_max"`
	Currency       string         `json:"currency"`
	LengthBand     pricing.Band   `json:"length_band"`
	Color          pricing.Color  `json:"color"`
	Structure      string         `json:"structure"`
	Condition      string         `json:"condition"`
	Age            string         `json:"age"`
	Fallbacks      []fallbackJSON `json:"fallbacks,omitempty"`
}

func newQuoteResponse(q pricing.Quote) quoteResponse {
	resp := quoteResponse{
		EstimatedPrice: q.Amount,
		PriceMin:       q.Min,
		PriceMax:       q.Max,
		Currency:       q.Currency,
		LengthBand:     q.Band,
		Color:          q.Color,
		Structure:      string(q.Structure),
		Condition:      string(q.Condition),
		Age:            string(q.Age),
	}
	for _, f := range q.Fallbacks {
		resp.Fallbacks = append(resp.Fallbacks, fallbackJSON{Field: f.Field, Value: f.Value, Default: f.Default})
	}
	return resp
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCalculator quotes a price without storing anything. It accepts JSON or
// form-encoded bodies.
func (s *server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	var req calculatorRequest
	if isJSON(r) {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: malformed JSON body", errBadRequest))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid form", errBadRequest))
			return
		}
		req = calculatorRequest{
			Length:    r.FormValue("length"),
			Color:     r.FormValue("color"),
			Structure: r.FormValue("structure"),
			Condition: r.FormValue("condition"),
			Age:       r.FormValue("age"),
		}
	}

	length, err := pricing.ParseLength(req.Length)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.prices.Engine().Compute(pricing.Input{
		Length:    length,
		Color:     req.Color,
		Structure: req.Structure,
		Condition: req.Condition,
		Age:       req.Age,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.recordQuote("calculator", q)
	writeJSON(w, http.StatusOK, newQuoteResponse(q))
}

func (s *server) recordQuote(source string, q pricing.Quote) {
	observability.QuotesComputed.WithLabelValues(source).Inc()
	for _, f := range q.Fallbacks {
		observability.CategoryFallbacks.WithLabelValues(f.Field).Inc()
		s.logger.Warn("unrecognized category replaced by default",
			zap.String("source", source),
			zap.String("field", f.Field),
			zap.String("value", f.Value),
			zap.String("default", f.Default),
		)
	}
}

type pricesResponse struct {
	Currency string              `json:"currency"`
	Ranges   []report.PriceRange `json:"ranges"`
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	engine := s.prices.Engine()
	ranges, err := report.PriceRanges(engine)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{Currency: engine.Table().Currency(), Ranges: ranges})
}

type createdResponse struct {
	ID             int64        `json:"id"`
	Status         store.Status `json:"status"`
	EstimatedPrice int64        `json:"estimated_price"`
	PriceMin       int64        `json:"price_min"`
	PriceMax       int64        `json:"price_max"`
	Currency       string       `json:"currency"`
}

// handleCreateApplication validates a multipart submission, prices it, stores
// the photos and the application, then queues notifications.
func (s *server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPhotoBytes*intake.MaxPhotos + 1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request too large"})
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: expected multipart form", errBadRequest))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := intake.Form{
		Name:      r.FormValue("name"),
		Phone:     r.FormValue("phone"),
		Email:     r.FormValue("email"),
		City:      r.FormValue("city"),
		Comment:   r.FormValue("comment"),
		Length:    r.FormValue("length"),
		Color:     r.FormValue("color"),
		Structure: r.FormValue("structure"),
		Condition: r.FormValue("condition"),
		Age:       r.FormValue("age"),
	}
	files := make(map[string]*multipart.FileHeader, intake.MaxPhotos)
	for i := 1; i <= intake.MaxPhotos; i++ {
		field := fmt.Sprintf("photo%d", i)
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			continue
		}
		head, err := sniff(fhs[0])
		if err != nil {
			s.writeError(w, r, fmt.Errorf("read %s: %w", field, err))
			return
		}
		files[field] = fhs[0]
		form.Photos = append(form.Photos, intake.PhotoMeta{
			Field:    field,
			Filename: fhs[0].Filename,
			Size:     fhs[0].Size,
			Head:     head,
		})
	}

	sub, err := s.validator.Normalize(form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q, err := s.prices.Engine().Compute(sub.PricingInput())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.recordQuote("application", q)

	saved := make([]string, 0, len(sub.Photos))
	for _, p := range sub.Photos {
		name, err := s.savePhoto(files[p.Field], p.Ext)
		if err != nil {
			s.photos.Remove(saved...)
			s.writeError(w, r, fmt.Errorf("save %s: %w", p.Field, err))
			return
		}
		saved = append(saved, name)
	}

	app, err := s.store.Create(r.Context(), newApplication(sub, saved, q.Amount))
	if err != nil {
		s.photos.Remove(saved...)
		s.writeError(w, r, err)
		return
	}
	observability.ApplicationsCreated.Inc()
	s.logger.Info("application created",
		zap.Int64("application_id", app.ID),
		zap.Int64("estimated_price", app.EstimatedPrice),
		zap.Int("photos", len(saved)),
	)

	s.events.Enqueue(notify.Event{Kind: notify.KindApplicationCreated, Application: app})

	writeJSON(w, http.StatusCreated, createdResponse{
		ID:             app.ID,
		Status:         app.Status,
		EstimatedPrice: app.EstimatedPrice,
		PriceMin:       q.Min,
		PriceMax:       q.Max,
		Currency:       q.Currency,
	})
}

func newApplication(sub intake.Submission, photos []string, estimate int64) store.NewApplication {
	return store.NewApplication{
		Length:         sub.Length,
		Color:          sub.Color,
		Structure:      sub.Structure,
		Condition:      sub.Condition,
		Age:            sub.Age,
		Photos:         photos,
		Name:           sub.Name,
		Phone:          sub.Phone,
		Email:          sub.Email,
		City:           sub.City,
		Comment:        sub.Comment,
		EstimatedPrice: estimate,
	}
}

func sniff(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, intake.SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

func (s *server) savePhoto(fh *multipart.FileHeader, ext string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.photos.Save(f, ext)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(mt, "application/json")
}
