package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"budgetchat/internal/core"
	"budgetchat/internal/extract"
	"budgetchat/internal/log"
	"budgetchat/internal/timeline"
)

const readinessTimeout = 2 * time.Second

// handleParse turns free text into candidate entries. Nothing is saved.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSONBody(w, r, s.maxBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	entries, err := s.parser.Extract(r.Context(), req.Text)
	if err != nil {
		s.writeExtractError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.ExpenseEntry{}
	}
	NewResponse().JSON(entries).Write(w)
}

func (s *Server) writeExtractError(w http.ResponseWriter, r *http.Request, err error) {
	kind := extract.KindOf(err)
	status := http.StatusBadGateway
	switch {
	case kind == extract.KindInvalidInput:
		status = http.StatusBadRequest
	case kind == extract.KindUpstream && extract.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case kind == extract.KindConfiguration, kind == extract.KindUnknown:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Parse request failed",
			log.FieldErrorType, kind.String(),
			log.FieldError, err.Error())
	}

	code := kind.String()
	if kind == extract.KindUnknown {
		code = codeInternal
	}
	ErrorResponse(status, code, err.Error()).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	list, err := s.listExpenses(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "List expenses failed", err)
		return
	}
	NewResponse().JSON(list).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSONBody(w, r, s.maxBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	entry, err := req.entry()
	if err != nil {
		UnprocessableEntityError("amount is required and must be a number").Write(w)
		return
	}

	saved, err := s.expenses.CreateExpense(r.Context(), entry)
	if err != nil {
		if isValidationError(err) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		s.internalError(w, r, "Create expense failed", err)
		return
	}
	s.listCache.Purge()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/expenses/"+saved.ID).
		JSON(saved).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.GetExpense(r.Context(), r.PathValue("id"))
	if errors.Is(err, core.ErrNotFound) {
		NotFoundError(err.Error()).Write(w)
		return
	}
	if err != nil {
		s.internalError(w, r, "Get expense failed", err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	list, err := s.listExpenses(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "List expenses failed", err)
		return
	}

	entries := make([]core.ExpenseEntry, 0, len(list))
	for _, e := range list {
		entries = append(entries, e.Entry())
	}
	days := timeline.Group(entries, s.now())
	if days == nil {
		days = []timeline.Day{}
	}
	NewResponse().JSON(days).Write(w)
}

// listExpenses serves from the list cache, which every create purges.
func (s *Server) listExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	key := strconv.Itoa(limit)
	if list, ok := s.listCache.Get(key); ok {
		log.FromContext(ctx).DebugContext(ctx, "Expense list cache hit", "limit", limit)
		return list, nil
	}

	list, err := s.expenses.ListExpenses(ctx, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.Expense{}
	}
	s.listCache.Set(key, list)
	return list, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.readiness(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, codeUnavailable, err.Error()).Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), msg, log.FieldError, err.Error())
	InternalServerError("internal error").Write(w)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		ErrorResponse(http.StatusRequestEntityTooLarge, codeTooLarge, err.Error()).Write(w)
		return
	}
	BadRequestError(err.Error()).Write(w)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount,
		core.ErrEmptyCurrency,
		core.ErrEmptyCategory,
		core.ErrInvalidDate,
		core.ErrNoteTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
