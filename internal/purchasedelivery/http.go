// Package purchasedelivery manages delivery layer of credit purchases.
package purchasedelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/middleware"
	"github.com/gigdesk/credits/pkg/errorspkg"
	"github.com/gigdesk/credits/pkg/tokenpkg"
	"github.com/gigdesk/credits/pkg/web"
)

// Service provides service layer interface needed by purchase delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package purchasedelivery
type Service interface {
	Initiate(ctx context.Context, arg domain.InitiatePurchaseParams) (domain.PendingPurchase, error)
	Confirm(ctx context.Context, orderRef, paymentID, signature string) (domain.ConfirmPurchaseResult, error)
	Fail(ctx context.Context, orderRef string) error
	Get(ctx context.Context, orderRef string) (domain.PendingPurchase, error)
	ListPackages(ctx context.Context) ([]domain.CreditPackage, error)
}

// AccountGetter resolves the caller's credits account.
//
//go:generate mockgen -source http.go -destination http_mock.go -package purchasedelivery
type AccountGetter interface {
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
}

// Handler facilitates purchase delivery layer logic.
type Handler struct {
	service  Service
	accounts AccountGetter
}

// NewHandler returns purchase handler.
func NewHandler(ps Service, ag AccountGetter) *Handler {
	return &Handler{
		service:  ps,
		accounts: ag,
	}
}

type purchaseData struct {
	Purchase domain.PendingPurchase `json:"purchase"`
}
type purchaseResponse struct {
	Data purchaseData `json:"data,omitempty"`
}

type initiateRequest struct {
	PackageID int64 `json:"package_id" binding:"omitempty,min=1"`
	Credits   int64 `json:"credits" binding:"omitempty,min=1"`
}

// Initiate handles http request to reserve a credit purchase.
func (h *Handler) Initiate(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var req initiateRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		var (
			ve     validator.ValidationErrors
			errMsg string
		)

		if errors.As(err, &ve) {
			field := ve[0]
			errMsg = field.Field() + web.GetErrorMsg(field)
		}

		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: errMsg})

		return
	}

	if (req.PackageID == 0) == (req.Credits == 0) {
		gctx.JSON(http.StatusBadRequest,
			web.Response{Error: "exactly one of package_id and credits must be set"})

		return
	}

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.accounts.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	purchase, err := h.service.Initiate(ctx, domain.InitiatePurchaseParams{
		AccountID: acc.ID,
		PackageID: req.PackageID,
		Credits:   req.Credits,
	})
	if err != nil {
		switch err {
		case domain.ErrPackageNotFound:
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		case domain.ErrPurchaseTooSmall, domain.ErrPurchaseTooLarge:
			gctx.JSON(http.StatusBadRequest, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusOK, purchaseResponse{Data: purchaseData{purchase}})
}

type orderRefURI struct {
	OrderRef string `uri:"order_ref" binding:"required,uuid"`
}

type confirmRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Confirm handles http request to confirm a purchase with the gateway's
// payment proof. Replayed confirmations return the recorded result.
func (h *Handler) Confirm(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var uri orderRefURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(domain.ErrPurchaseNotFound))

		return
	}

	var req confirmRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		var (
			ve     validator.ValidationErrors
			errMsg string
		)

		if errors.As(err, &ve) {
			field := ve[0]
			errMsg = field.Field() + web.GetErrorMsg(field)
		}

		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: errMsg})

		return
	}

	if !h.ownsPurchase(gctx, uri.OrderRef) {
		return
	}

	result, err := h.service.Confirm(ctx, uri.OrderRef, req.PaymentID, req.Signature)
	if err != nil {
		writePurchaseError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, struct {
		Data domain.ConfirmPurchaseResult `json:"data"`
	}{result})
}

// Fail handles http request to abandon a pending purchase after the gateway
// reported a failed payment.
func (h *Handler) Fail(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var uri orderRefURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(domain.ErrPurchaseNotFound))

		return
	}

	if !h.ownsPurchase(gctx, uri.OrderRef) {
		return
	}

	if err := h.service.Fail(ctx, uri.OrderRef); err != nil {
		writePurchaseError(gctx, err)
		return
	}

	gctx.Status(http.StatusNoContent)
}

type packagesData struct {
	Packages []domain.CreditPackage `json:"packages"`
}
type packagesResponse struct {
	Data packagesData `json:"data,omitempty"`
}

// ListPackages handles http request to list purchasable credit packages.
func (h *Handler) ListPackages(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	packages, err := h.service.ListPackages(ctx)
	if err != nil {
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
		return
	}

	gctx.JSON(http.StatusOK, packagesResponse{Data: packagesData{packages}})
}

// ownsPurchase verifies that the order reference belongs to the caller's
// account. Foreign order references read as not found.
func (h *Handler) ownsPurchase(gctx *gin.Context, orderRef string) bool {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.accounts.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return false
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return false
	}

	purchase, err := h.service.Get(ctx, orderRef)
	if err != nil {
		if err == domain.ErrPurchaseNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return false
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return false
	}

	if purchase.AccountID != acc.ID {
		l.Warn().Str("order_ref", orderRef).Msg("order reference owned by another account")
		gctx.JSON(http.StatusNotFound, web.Error(domain.ErrPurchaseNotFound))

		return false
	}

	return true
}

// writePurchaseError maps purchase state machine failures to http statuses.
func writePurchaseError(gctx *gin.Context, err error) {
	switch err {
	case domain.ErrPurchaseNotFound:
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case domain.ErrSignatureMismatch:
		gctx.JSON(http.StatusUnauthorized, web.Error(err))
	case domain.ErrPurchaseExpired:
		gctx.JSON(http.StatusGone, web.Error(err))
	case domain.ErrAlreadyConfirmed, domain.ErrPurchaseFailed:
		gctx.JSON(http.StatusConflict, web.Error(err))
	case domain.ErrBalanceCeiling:
		gctx.JSON(http.StatusUnprocessableEntity, web.Error(err))
	case errorspkg.ErrContention:
		gctx.JSON(http.StatusConflict, web.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
