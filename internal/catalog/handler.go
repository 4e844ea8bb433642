package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smetacat/smetacat/internal/platform/httpx"
)

// Handler wires HTTP endpoints for catalog masterdata.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.listMaterials)
		r.Post("/", h.createMaterial)
		r.Get("/{id}", h.getMaterial)
		r.Delete("/{id}", h.deactivateMaterial)
		r.Post("/{id}/aliases", h.addAlias)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
	})
	r.Route("/vendors", func(r chi.Router) {
		r.Get("/", h.listVendors)
		r.Post("/", h.createVendor)
	})
}

type createMaterialRequest struct {
	Name            string  `json:"name" validate:"required"`
	Unit            string  `json:"unit" validate:"required"`
	WorkRate        float64 `json:"work_rate" validate:"gte=0"`
	Category        string  `json:"category"`
	DefaultVendorID *int64  `json:"default_vendor_id"`
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	material, err := h.service.CreateMaterial(r.Context(), CreateMaterialInput{
		Name:            req.Name,
		Unit:            req.Unit,
		WorkRate:        req.WorkRate,
		Category:        req.Category,
		DefaultVendorID: req.DefaultVendorID,
	})
	if err != nil {
		h.respondError(w, "create material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	filter := MaterialFilter{
		Search:     r.URL.Query().Get("search"),
		ActiveOnly: r.URL.Query().Get("all") == "",
	}
	materials, err := h.service.ListMaterials(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list materials", err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	material, err := h.service.GetMaterial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) deactivateMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateMaterial(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "deactivate material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type addAliasRequest struct {
	Alias      string `json:"alias" validate:"required"`
	CustomerID *int64 `json:"customer_id"`
}

func (h *Handler) addAlias(w http.ResponseWriter, r *http.Request) {
	var req addAliasRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.AddAlias(r.Context(), chi.URLParam(r, "id"), req.Alias, req.CustomerID, AliasSourceManual)
	if err != nil {
		h.respondError(w, "add alias", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type createCustomerRequest struct {
	Name                string `json:"name" validate:"required"`
	PreferredSourceType string `json:"preferred_source_type"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.CreateCustomer(r.Context(), req.Name, req.PreferredSourceType)
	if err != nil {
		h.respondError(w, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.respondError(w, "list customers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customers)
}

type createVendorRequest struct {
	Name         string          `json:"name" validate:"required"`
	WebsiteURL   string          `json:"website_url" validate:"omitempty,url"`
	ScrapeConfig json.RawMessage `json:"scrape_config"`
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.CreateVendor(r.Context(), req.Name, req.WebsiteURL, string(req.ScrapeConfig))
	if err != nil {
		h.respondError(w, "create vendor", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context())
	if err != nil {
		h.respondError(w, "list vendors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendors)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
