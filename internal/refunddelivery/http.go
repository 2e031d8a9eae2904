// Package refunddelivery manages delivery layer of purchase refunds.
package refunddelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/middleware"
	"github.com/gigdesk/credits/pkg/errorspkg"
	"github.com/gigdesk/credits/pkg/tokenpkg"
	"github.com/gigdesk/credits/pkg/web"
)

// Service provides service layer interface needed by refund delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package refunddelivery
type Service interface {
	Eligibility(ctx context.Context, accountID, entryID int64) (domain.RefundEligibility, error)
	Apply(ctx context.Context, accountID, entryID int64) (domain.Account, error)
}

// PurchaseGetter resolves an order reference to its purchase record.
//
//go:generate mockgen -source http.go -destination http_mock.go -package refunddelivery
type PurchaseGetter interface {
	Get(ctx context.Context, orderRef string) (domain.PendingPurchase, error)
}

// AccountGetter resolves the caller's credits account.
//
//go:generate mockgen -source http.go -destination http_mock.go -package refunddelivery
type AccountGetter interface {
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
}

// Handler facilitates refund delivery layer logic.
type Handler struct {
	service   Service
	purchases PurchaseGetter
	accounts  AccountGetter
}

// NewHandler returns refund handler.
func NewHandler(rs Service, pg PurchaseGetter, ag AccountGetter) *Handler {
	return &Handler{
		service:   rs,
		purchases: pg,
		accounts:  ag,
	}
}

type orderRefURI struct {
	OrderRef string `uri:"order_ref" binding:"required,uuid"`
}

// resolve maps the caller plus order reference to the confirmed purchase
// entry the refund policy operates on. Foreign or unconfirmed purchases read
// as not found.
func (h *Handler) resolve(gctx *gin.Context) (accountID, entryID int64, ok bool) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var uri orderRefURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(domain.ErrPurchaseNotFound))

		return 0, 0, false
	}

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.accounts.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return 0, 0, false
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return 0, 0, false
	}

	purchase, err := h.purchases.Get(ctx, uri.OrderRef)
	if err != nil {
		if err == domain.ErrPurchaseNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return 0, 0, false
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return 0, 0, false
	}

	if purchase.AccountID != acc.ID {
		l.Warn().Str("order_ref", uri.OrderRef).Msg("order reference owned by another account")
		gctx.JSON(http.StatusNotFound, web.Error(domain.ErrPurchaseNotFound))

		return 0, 0, false
	}

	if purchase.Status != domain.PurchaseConfirmed {
		gctx.JSON(http.StatusUnprocessableEntity, web.Error(
			&domain.RefundIneligibleError{Reason: domain.RefundReasonNotPurchase}))

		return 0, 0, false
	}

	return acc.ID, purchase.ConfirmedEntryID, true
}

type eligibilityData struct {
	Eligibility domain.RefundEligibility `json:"eligibility"`
}
type eligibilityResponse struct {
	Data eligibilityData `json:"data,omitempty"`
}

// Eligibility handles http request to preview what a refund would return.
func (h *Handler) Eligibility(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	accountID, entryID, ok := h.resolve(gctx)
	if !ok {
		return
	}

	eligibility, err := h.service.Eligibility(ctx, accountID, entryID)
	if err != nil {
		if err == domain.ErrEntryNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusOK, eligibilityResponse{Data: eligibilityData{eligibility}})
}

type accountData struct {
	Account domain.Account `json:"account"`
}
type accountResponse struct {
	Data accountData `json:"data,omitempty"`
}

// Apply handles http request to apply a refund for a confirmed purchase.
func (h *Handler) Apply(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	accountID, entryID, ok := h.resolve(gctx)
	if !ok {
		return
	}

	acc, err := h.service.Apply(ctx, accountID, entryID)
	if err != nil {
		var ineligible *domain.RefundIneligibleError
		if errors.As(err, &ineligible) {
			gctx.JSON(http.StatusUnprocessableEntity, web.Response{
				Error: ineligible.Error(),
				Data:  ineligible,
			})

			return
		}

		switch err {
		case domain.ErrEntryNotFound:
			gctx.JSON(http.StatusNotFound, web.Error(err))
		case domain.ErrBalanceCeiling:
			gctx.JSON(http.StatusUnprocessableEntity, web.Error(err))
		case errorspkg.ErrContention:
			gctx.JSON(http.StatusConflict, web.Error(err))
		default:
			gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
		}

		return
	}

	gctx.JSON(http.StatusOK, accountResponse{Data: accountData{acc}})
}
