package importer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smetacat/smetacat/internal/platform/httpx"
)

// Handler wires HTTP endpoints for import runs and unmatched-row review.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	filler       *Filler
	validator    *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, orchestrator *Orchestrator, filler *Filler) *Handler {
	return &Handler{logger: logger, orchestrator: orchestrator, filler: filler, validator: validator.New()}
}

// MountRoutes registers import routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/imports", h.runImport)
	r.Get("/imports/{id}", h.getSession)
	r.Get("/imports/unmatched", h.listUnmatched)
	r.Post("/imports/unmatched/{id}/resolve", h.resolveUnmatched)
	r.Post("/imports/unmatched/{id}/reject", h.rejectUnmatched)
	r.Post("/estimates/fill", h.fillEstimate)
}

type runImportRequest struct {
	Path       string `json:"path" validate:"required"`
	CustomerID *int64 `json:"customer_id" validate:"omitempty,gt=0"`
	VendorID   *int64 `json:"vendor_id" validate:"omitempty,gt=0"`
	DocDate    string `json:"doc_date" validate:"omitempty,datetime=2006-01-02"`
}

type summaryResponse struct {
	SessionID int64    `json:"session_id"`
	SourceID  int64    `json:"source_id"`
	TotalRows int      `json:"total_rows"`
	Processed int      `json:"processed"`
	Errors    int      `json:"errors"`
	Unmatched []rawRow `json:"unmatched"`
}

type rawRow struct {
	Name    string   `json:"name"`
	Price   *float64 `json:"price,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Article string   `json:"article,omitempty"`
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request) {
	var req runImportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	opts := Options{CustomerID: req.CustomerID, VendorID: req.VendorID}
	if req.DocDate != "" {
		parsed, _ := time.Parse("2006-01-02", req.DocDate)
		opts.DocDate = &parsed
	}

	summary, err := h.orchestrator.ImportFile(r.Context(), req.Path, opts)
	if err != nil {
		if errors.Is(err, ErrNoNameColumn) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unusable Price List", err.Error())
			return
		}
		h.logger.Error("import run failed", "path", req.Path, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Import Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, toSummaryResponse(summary))
}

func toSummaryResponse(s Summary) summaryResponse {
	resp := summaryResponse{
		SessionID: s.SessionID,
		SourceID:  s.SourceID,
		TotalRows: s.TotalRows,
		Processed: s.Processed,
		Errors:    s.Errors,
		Unmatched: make([]rawRow, 0, len(s.Unmatched)),
	}
	for _, u := range s.Unmatched {
		resp.Unmatched = append(resp.Unmatched, rawRow{Name: u.Name, Price: u.Price, Unit: u.Unit, Article: u.Article})
	}
	return resp
}

type sessionResponse struct {
	ID            int64               `json:"id"`
	SourceFile    string              `json:"source_file"`
	CustomerID    *int64              `json:"customer_id,omitempty"`
	VendorID      *int64              `json:"vendor_id,omitempty"`
	Status        SessionStatus       `json:"status"`
	ProcessedRows int                 `json:"processed_rows"`
	ErrorRows     int                 `json:"error_rows"`
	CreatedAt     time.Time           `json:"created_at"`
	Pending       []unmatchedResponse `json:"pending_unmatched"`
}

type unmatchedResponse struct {
	ID         int64            `json:"id"`
	SessionID  int64            `json:"session_id"`
	RawName    string           `json:"raw_name"`
	RawPrice   *float64         `json:"raw_price,omitempty"`
	RawUnit    string           `json:"raw_unit,omitempty"`
	RawArticle string           `json:"raw_article,omitempty"`
	Status     ResolutionStatus `json:"status"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "session id must be an integer")
		return
	}
	session, pending, err := h.orchestrator.Session(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "import session not found")
		return
	}
	if err != nil {
		h.logger.Error("load import session", "session_id", id, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not load import session")
		return
	}
	resp := sessionResponse{
		ID:            session.ID,
		SourceFile:    session.SourceFile,
		CustomerID:    session.CustomerID,
		VendorID:      session.VendorID,
		Status:        session.Status,
		ProcessedRows: session.ProcessedRows,
		ErrorRows:     session.ErrorRows,
		CreatedAt:     session.CreatedAt,
		Pending:       make([]unmatchedResponse, 0, len(pending)),
	}
	for _, u := range pending {
		resp.Pending = append(resp.Pending, toUnmatchedResponse(u))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func toUnmatchedResponse(u UnmatchedImport) unmatchedResponse {
	return unmatchedResponse{
		ID:         u.ID,
		SessionID:  u.SessionID,
		RawName:    u.RawName,
		RawPrice:   u.RawPrice,
		RawUnit:    u.RawUnit,
		RawArticle: u.RawArticle,
		Status:     u.Status,
	}
}

func (h *Handler) listUnmatched(w http.ResponseWriter, r *http.Request) {
	pending, err := h.orchestrator.PendingUnmatched(r.Context())
	if err != nil {
		h.logger.Error("list unmatched rows", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not list unmatched rows")
		return
	}
	out := make([]unmatchedResponse, 0, len(pending))
	for _, u := range pending {
		out = append(out, toUnmatchedResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type resolveRequest struct {
	MaterialID string `json:"material_id" validate:"required,uuid4"`
}

func (h *Handler) resolveUnmatched(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "unmatched id must be an integer")
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	switch err := h.orchestrator.ResolveUnmatched(r.Context(), id, req.MaterialID); {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unmatched row not found")
	case errors.Is(err, ErrAlreadyResolved):
		httpx.Problem(w, http.StatusConflict, "Already Resolved", "unmatched row is no longer pending")
	case err != nil:
		h.logger.Error("resolve unmatched row", "unmatched_id", id, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not resolve unmatched row")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) rejectUnmatched(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "unmatched id must be an integer")
		return
	}
	switch err := h.orchestrator.RejectUnmatched(r.Context(), id); {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyResolved):
		httpx.Problem(w, http.StatusConflict, "Not Pending", "unmatched row is no longer pending")
	case err != nil:
		h.logger.Error("reject unmatched row", "unmatched_id", id, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not reject unmatched row")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type fillRequest struct {
	Path string `json:"path" validate:"required"`
}

func (h *Handler) fillEstimate(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	report, err := h.filler.FillFile(r.Context(), req.Path)
	if err != nil {
		h.logger.Error("fill estimate", "path", req.Path, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Fill Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
