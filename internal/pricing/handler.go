package pricing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/smetacat/smetacat/internal/platform/httpx"
)

// Handler wires HTTP endpoints for price queries and manual price entry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	group     singleflight.Group
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers pricing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials/{id}/price", h.selectPrice)
	r.Post("/prices", h.recordManualPrice)
	r.Post("/prices/{id}/invalidate", h.invalidatePrice)
}

type priceResponse struct {
	MaterialID string  `json:"material_id"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	PriceDate  string  `json:"price_date"`
	SourceType string  `json:"source_type"`
	SourceName string  `json:"source_name"`
}

func (h *Handler) selectPrice(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "id")

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = &parsed
	}

	var customerID *int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Customer", "customer_id must be an integer")
			return
		}
		customerID = &parsed
	}

	// Concurrent identical queries collapse into one store round trip.
	key := materialID + ":" + r.URL.Query().Get("as_of") + ":" + FormatCustomerKey(customerID)
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.SelectPrice(r.Context(), materialID, asOf, customerID)
	})
	if err != nil {
		if errors.Is(err, ErrNoPrice) {
			httpx.Problem(w, http.StatusNotFound, "No Price", fmt.Sprintf("no selectable price for material %s", materialID))
			return
		}
		h.logger.Error("select price", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	obs := result.(Observation)
	httpx.JSON(w, http.StatusOK, priceResponse{
		MaterialID: obs.MaterialID,
		Price:      obs.Price,
		Currency:   obs.Currency,
		PriceDate:  obs.PriceDate.Format("2006-01-02"),
		SourceType: string(obs.SourceType),
		SourceName: obs.SourceName,
	})
}

type manualPriceRequest struct {
	MaterialID string  `json:"material_id" validate:"required"`
	Price      float64 `json:"price" validate:"gte=0"`
	Currency   string  `json:"currency"`
	PriceDate  string  `json:"price_date"`
	SourceName string  `json:"source_name"`
}

func (h *Handler) recordManualPrice(w http.ResponseWriter, r *http.Request) {
	var req manualPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	priceDate := time.Now()
	if req.PriceDate != "" {
		parsed, err := time.Parse("2006-01-02", req.PriceDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "price_date must be YYYY-MM-DD")
			return
		}
		priceDate = parsed
	}
	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = "Manual entry"
	}

	sourceID, err := h.service.CreateSource(r.Context(), SourceInput{
		Type:    SourceTypeManual,
		Name:    sourceName,
		DocDate: priceDate,
	})
	if err != nil {
		h.logger.Error("create manual source", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	priceID, err := h.service.AppendPrice(r.Context(), req.MaterialID, req.Price, req.Currency, priceDate, sourceID)
	if err != nil {
		h.logger.Error("append manual price", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"price_id": priceID, "source_id": sourceID})
}

func (h *Handler) invalidatePrice(w http.ResponseWriter, r *http.Request) {
	priceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "price id must be an integer")
		return
	}
	if err := h.service.InvalidatePrice(r.Context(), priceID); err != nil {
		if errors.Is(err, ErrNoPrice) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "price observation not found")
			return
		}
		h.logger.Error("invalidate price", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
