package transport

import (
	"errors"
	"net/http"

	"inventa/internal/domain"
	"inventa/internal/middleware"
	"inventa/internal/repository"
	"inventa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleItemRequest is one requested line of a sale
type SaleItemRequest struct {
	ProductID int64           `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CreateSaleRequest represents the sale creation payload
type CreateSaleRequest struct {
	CustomerID int64             `json:"customerId" validate:"required"`
	Items      []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateSaleStatusRequest represents the status change payload. The field is
// named estado for compatibility with the existing admin client.
type UpdateSaleStatusRequest struct {
	ID     int64  `json:"id" validate:"required"`
	Status string `json:"estado" validate:"required,oneof=PENDIENTE COMPLETADA CANCELADA"`
}

// DeleteSaleRequest represents the sale deletion payload
type DeleteSaleRequest struct {
	ID int64 `json:"id" validate:"required"`
}

// SaleHandler handles HTTP requests for the sale workflow
type SaleHandler struct {
	saleService service.SaleService
	logger      *zap.Logger
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(saleService service.SaleService, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		saleService: saleService,
		logger:      logger,
	}
}

// RegisterRoutes registers all sale routes
func (h *SaleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sales", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Patch("/", h.UpdateStatus)
		r.Delete("/", h.Delete)
	})
}

// Create handles sale creation
func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Sale creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]service.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SaleItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	sale, err := h.saleService.CreateSale(r.Context(), req.CustomerID, items)
	if err != nil {
		h.respondSaleError(w, err, "failed to create sale")
		return
	}

	h.logger.Info("Sale created",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("customer_id", sale.CustomerID),
		zap.String("total", sale.Total.String()),
		zap.Int("items", len(sale.Items)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, sale)
}

// List handles listing all sales
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	sales, err := h.saleService.ListSales(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sales", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

// UpdateStatus handles sale status changes
func (h *SaleHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateSaleStatusRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Sale status validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sale, err := h.saleService.UpdateSaleStatus(r.Context(), req.ID, domain.SaleStatus(req.Status))
	if err != nil {
		h.respondSaleError(w, err, "failed to update sale")
		return
	}

	h.logger.Info("Sale status updated",
		zap.Int64("sale_id", sale.ID),
		zap.String("status", string(sale.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, sale)
}

// Delete handles sale deletion with stock reversal
func (h *SaleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteSaleRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Sale deletion validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.saleService.DeleteSale(r.Context(), req.ID); err != nil {
		h.respondSaleError(w, err, "failed to delete sale")
		return
	}

	h.logger.Info("Sale deleted", zap.Int64("sale_id", req.ID))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "sale deleted successfully"})
}

// respondSaleError maps sale workflow errors to HTTP status codes. Item- and
// entity-scoped errors keep their message, which names the offending entity.
func (h *SaleHandler) respondSaleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrEmptySale),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrNegativeUnitPrice),
		errors.Is(err, service.ErrInvalidSaleStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrSaleNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
