package http

import (
	"errors"
	"net/http"
	"strings"

	"profittracker/internal/core"
	applog "profittracker/internal/log"
)

const defaultRecentLimit = 10

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.entries.ListAll(r.Context())).Write(w)
}

// handleUpsertEntry answers 201 when the date was new and 200 when an
// existing entry was overwritten.
func (s *Server) handleUpsertEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := ParseEntryRequest(w, r)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	saved, created, err := s.entries.Upsert(r.Context(), entry)
	if err != nil {
		if core.IsValidation(err) {
			s.writeRequestError(w, r, err)
			return
		}
		InternalServerError("Failed to save entry", persistenceDetails(err)).Write(w)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Data(saved).Write(w)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		ErrorResponse(http.StatusBadRequest, "Entry ID is required", "").Write(w)
		return
	}

	if err := s.entries.DeleteByID(r.Context(), id); err != nil {
		InternalServerError("Failed to delete entry", persistenceDetails(err)).Write(w)
		return
	}
	NewJSONResponse().Data(map[string]bool{"success": true}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.entries.Summary(r.Context())).Write(w)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.entries.Series(r.Context())).Write(w)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRecentLimit)
	if err != nil {
		BadRequestError("Invalid query parameter", err.Error()).Write(w)
		return
	}
	NewJSONResponse().Data(s.entries.Recent(r.Context(), limit)).Write(w)
}

// writeRequestError maps parse and validation failures onto 400 bodies.
func (s *Server) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected entry request",
		applog.FieldOperation, applog.OpValidate,
		applog.FieldError, err.Error())

	var ve *core.ValidationError
	switch {
	case errors.Is(err, core.ErrMissingFields) && errors.As(err, &ve):
		BadRequestError("Missing required fields", ve.Field).Write(w)
	case errors.As(err, &ve):
		BadRequestError("Invalid field value", ve.Error()).Write(w)
	case errors.Is(err, ErrBodyTooLarge):
		BadRequestError("Request body too large", err.Error()).Write(w)
	default:
		BadRequestError("Invalid request body", err.Error()).Write(w)
	}
}

// persistenceDetails exposes the underlying store message.
func persistenceDetails(err error) string {
	var pe *core.PersistenceError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}
