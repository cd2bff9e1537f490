package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

// CheckoutService — операции оформления, которые отдаёт HTTP API.
type CheckoutService interface {
	Commit(ctx context.Context, req checkout.CommitRequest) (checkout.CommitResult, error)
	Settlement(ctx context.Context, buyerID int64) (checkout.Settlement, error)
	GetOrder(ctx context.Context, buyerID int64, orderID string) (domain.Order, error)
}

// Handler — gin-обработчики заказов.
type Handler struct {
	svc    CheckoutService
	buyers BuyerResolver
	logger *log.Entry
}

// NewHandler создаёт обработчики; nil resolver означает заголовок X-Buyer-ID.
func NewHandler(svc CheckoutService, buyers BuyerResolver, logger *log.Entry) *Handler {
	if buyers == nil {
		buyers = NewHeaderBuyerResolver("")
	}
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{svc: svc, buyers: buyers, logger: logger}
}

// Settlement — GET /orders/settlement/.
func (h *Handler) Settlement(c *gin.Context) {
	buyerID, ok := h.buyer(c)
	if !ok {
		return
	}

	s, err := h.svc.Settlement(c.Request.Context(), buyerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettlementResponse(s))
}

// CommitOrder — POST /orders/.
func (h *Handler) CommitOrder(c *gin.Context) {
	buyerID, ok := h.buyer(c)
	if !ok {
		return
	}

	var req commitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(domain.KindValidation)})
		return
	}

	result, err := h.svc.Commit(c.Request.Context(), checkout.CommitRequest{
		BuyerID:   buyerID,
		AddressID: req.Address,
		PayMethod: domain.PayMethod(req.PayMethod),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := commitOrderResponse{OrderID: result.Order.ID, Order: toOrderResponse(result.Order)}
	if result.CartCleanupErr != nil {
		resp.Warning = result.CartCleanupErr.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// GetOrder — GET /orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	buyerID, ok := h.buyer(c)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(c.Request.Context(), buyerID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *Handler) buyer(c *gin.Context) (int64, bool) {
	id, err := h.buyers.ResolveBuyer(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return 0, false
	}
	return id, true
}

// fail переводит класс доменной ошибки в HTTP-статус.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: string(kind)}

	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindInsufficient:
		status = http.StatusConflict
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			available := stockErr.Available
			resp.VariantID = stockErr.VariantID
			resp.Requested = stockErr.Requested
			resp.Available = &available
		}
	case domain.KindNotFound:
		status = http.StatusNotFound
	default:
		// Подробности сбоя хранилища остаются в логе.
		resp.Error = domain.ErrPersistence.Error()
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, resp)
}
