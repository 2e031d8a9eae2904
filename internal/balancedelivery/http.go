// Package balancedelivery manages delivery layer of account balances.
package balancedelivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/middleware"
	"github.com/gigdesk/credits/pkg/errorspkg"
	"github.com/gigdesk/credits/pkg/tokenpkg"
	"github.com/gigdesk/credits/pkg/web"
)

// Service provides service layer interface needed by balance delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package balancedelivery
type Service interface {
	Get(ctx context.Context, accountID int64) (domain.Account, error)
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
	History(ctx context.Context, arg domain.ListEntriesParams) ([]domain.LedgerEntry, error)
	Debit(ctx context.Context, accountID, amount int64, entryType domain.EntryType, reference string) (domain.Account, error)
	AdminAdjust(ctx context.Context, accountID, delta int64, reason, adminID string) (domain.Account, error)
}

// Handler facilitates balance delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns balance handler.
func NewHandler(bs Service) *Handler {
	return &Handler{service: bs}
}

type accountData struct {
	Account domain.Account `json:"account"`
}
type accountResponse struct {
	Data accountData `json:"data,omitempty"`
}

// Get handles http request to get the caller's account and balance.
func (h *Handler) Get(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.service.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusOK, accountResponse{Data: accountData{acc}})
}

type historyRequest struct {
	Limit  int32     `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int32     `form:"offset" binding:"omitempty,min=0"`
	Type   string    `form:"type" binding:"omitempty,entrytype"`
	From   time.Time `form:"from" binding:"omitempty" time_format:"2006-01-02T15:04:05Z07:00"`
	To     time.Time `form:"to" binding:"omitempty" time_format:"2006-01-02T15:04:05Z07:00"`
}

type historyData struct {
	Entries []domain.LedgerEntry `json:"entries"`
}
type historyResponse struct {
	Data historyData `json:"data,omitempty"`
}

// History handles http request to page through the caller's ledger entries.
func (h *Handler) History(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var req historyRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
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

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.service.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	entries, err := h.service.History(ctx, domain.ListEntriesParams{
		AccountID: acc.ID,
		Limit:     req.Limit,
		Offset:    req.Offset,
		Type:      domain.EntryType(req.Type),
		From:      req.From,
		To:        req.To,
	})
	if err != nil {
		if err == domain.ErrUnknownEntryType {
			gctx.JSON(http.StatusBadRequest, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusOK, historyResponse{Data: historyData{entries}})
}

type deductRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"`
}

// Deduct handles http request to spend credits from the caller's balance.
func (h *Handler) Deduct(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var req deductRequest
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

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	acc, err := h.service.GetByOwner(ctx, authPayload.Username)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	updated, err := h.service.Debit(ctx, acc.ID, req.Amount, domain.EntryDeduction, req.Reference)
	if err != nil {
		writeAppendError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, accountResponse{Data: accountData{updated}})
}

type adjustURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

type adjustRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdminAdjust handles http request to apply an administrative balance correction.
func (h *Handler) AdminAdjust(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(gctx)

	var uri adjustURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
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

	var req adjustRequest
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

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	updated, err := h.service.AdminAdjust(ctx, uri.ID, req.Delta, req.Reason, authPayload.Username)
	if err != nil {
		switch err {
		case domain.ErrReasonTooShort, domain.ErrZeroAmount:
			gctx.JSON(http.StatusBadRequest, web.Error(err))
			return
		}

		writeAppendError(gctx, err)

		return
	}

	gctx.JSON(http.StatusOK, accountResponse{Data: accountData{updated}})
}

// writeAppendError maps ledger append failures shared by every mutating route.
func writeAppendError(gctx *gin.Context, err error) {
	var ice *domain.InsufficientCreditsError
	if errors.As(err, &ice) {
		gctx.JSON(http.StatusUnprocessableEntity, web.Response{Error: ice.Error(), Data: ice})
		return
	}

	switch err {
	case domain.ErrAccountNotFound:
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case domain.ErrBalanceCeiling:
		gctx.JSON(http.StatusUnprocessableEntity, web.Error(err))
	case domain.ErrNegativeAmount, domain.ErrZeroAmount, domain.ErrUnknownEntryType:
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errorspkg.ErrContention:
		gctx.JSON(http.StatusConflict, web.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
