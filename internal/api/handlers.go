package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/sms"
	"github.com/jask/smsledger/internal/service"
)

type classifyResponse struct {
	Accepted   bool            `json:"accepted"`
	Reason     *sms.Reason     `json:"reason,omitempty"`
	Extraction *sms.Extraction `json:"extraction,omitempty"`
	// Merchant is the normalized form of the extracted merchant.
	Merchant string `json:"merchant,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var msg sms.RawMessage
	if err := decode(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := msg.Validate(); err != nil {
		writeFault(w, r, err)
		return
	}
	res := s.Engine.Classify(msg)
	resp := classifyResponse{Accepted: res.Accepted(), Extraction: res.Extraction}
	if res.Accepted() {
		resp.Merchant = sms.NormalizeMerchant(res.Extraction.MerchantRaw)
	} else {
		resp.Reason = &res.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var msg sms.RawMessage
	if err := decode(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	out, err := s.Engine.ProcessAndPersist(r.Context(), msg)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Kind == service.OutcomeInserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

type batchRequest struct {
	Messages []sms.RawMessage `json:"messages"`
}

type batchResponse struct {
	Summary service.Summary `json:"summary"`
	// Error is set when the batch stopped early; Summary covers what ran.
	Error string `json:"error,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sum, err := s.Engine.ReprocessBatch(r.Context(), req.Messages, nil)
	if err != nil {
		var be *service.BatchError
		if errors.As(err, &be) {
			writeJSON(w, http.StatusInternalServerError, batchResponse{Summary: sum, Error: be.Error()})
			return
		}
		// cancelled by the client
		writeJSON(w, http.StatusServiceUnavailable, batchResponse{Summary: sum, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Summary: sum})
}

func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reconciler.CleanupDuplicates(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type categoryView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Emoji        string `json:"emoji,omitempty"`
	IsSystem     bool   `json:"is_system"`
	DisplayOrder int    `json:"display_order"`
}

func toCategoryView(c repository.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Color: c.Color, Emoji: c.Emoji, IsSystem: c.IsSystem, DisplayOrder: c.DisplayOrder}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Merchants.Categories(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type createCategoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	c, err := s.Merchants.CreateCategory(r.Context(), req.Name, req.Color, req.Emoji)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryView(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.Merchants.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transactionView struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	MerchantRaw     string          `json:"merchant_raw"`
	Category        string          `json:"category,omitempty"`
	BankName        string          `json:"bank_name"`
	Date            time.Time       `json:"date"`
	IsDebit         bool            `json:"is_debit"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Confidence      float64         `json:"confidence"`
}

func (s *Server) handleMerchantTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	txs, err := s.Merchants.Transactions(r.Context(), merchantParam(r), limit)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	cats, err := s.Merchants.Categories(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		v := transactionView{
			ID:          t.ID,
			Amount:      decimal.New(t.AmountMinor, -2),
			Merchant:    t.NormalizedMerchant,
			MerchantRaw: t.MerchantRaw,
			BankName:    t.BankName,
			Date:        t.TransactionDate.In(s.location()),
			IsDebit:     t.IsDebit,
			Confidence:  t.Confidence,
		}
		if t.CategoryID != nil {
			v.Category = names[*t.CategoryID]
		}
		if t.ReferenceNumber != nil {
			v.ReferenceNumber = *t.ReferenceNumber
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type recategorizeRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleRecategorize(w http.ResponseWriter, r *http.Request) {
	var req recategorizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	moved, err := s.Merchants.Recategorize(r.Context(), merchantParam(r), req.Category)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": moved})
}

type exclusionRequest struct {
	Excluded bool `json:"excluded"`
}

func (s *Server) handleExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.Merchants.SetExcluded(r.Context(), merchantParam(r), req.Excluded); err != nil {
		writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryTotalView struct {
	CategoryID string          `json:"category_id"`
	Category   string          `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
}

type merchantTotalView struct {
	Merchant    string          `json:"merchant"`
	DisplayName string          `json:"display_name"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
}

type summaryResponse struct {
	From       string              `json:"from"`
	To         string              `json:"to"`
	Categories []categoryTotalView `json:"categories"`
	Merchants  []merchantTotalView `json:"merchants"`
}

// handleSummary reports debit spend over [from, to], both dates inclusive
// local days. The default range is the current month.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	loc := s.location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	limit := 10
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		limit = n
	}

	txs := repository.NewTransactionRepo(s.DB)
	byCat, err := txs.SpendingByCategory(r.Context(), from, to)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	top, err := txs.TopMerchants(r.Context(), from, to, limit)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	resp := summaryResponse{
		From:       from.Format(time.DateOnly),
		To:         to.AddDate(0, 0, -1).Format(time.DateOnly),
		Categories: make([]categoryTotalView, 0, len(byCat)),
		Merchants:  make([]merchantTotalView, 0, len(top)),
	}
	for _, c := range byCat {
		resp.Categories = append(resp.Categories, categoryTotalView{
			CategoryID: c.CategoryID, Category: c.CategoryName, Total: decimal.New(c.TotalMinor, -2), Count: c.Count,
		})
	}
	for _, m := range top {
		resp.Merchants = append(resp.Merchants, merchantTotalView{
			Merchant: m.NormalizedMerchant, DisplayName: m.DisplayName, Total: decimal.New(m.TotalMinor, -2), Count: m.Count,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
