package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/token"
	"github.com/tidemarket/escrow/internal/vault"
)

// errorResponse is the envelope for every error status. Required is only
// set on underpayment so the buyer can retry with a corrected amount.
type errorResponse struct {
	Error    string `json:"error"`
	Required uint64 `json:"required,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrPriceNotMet),
		errors.Is(err, vault.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrNotListed),
		errors.Is(err, market.ErrNoProceeds):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotAuthorized),
		errors.Is(err, market.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidFee),
		errors.Is(err, market.ErrAmountOverflow),
		errors.Is(err, market.ErrUnsupportedAsset):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrTransferFailed),
		errors.Is(err, token.ErrReceiverRejected):
		return http.StatusBadGateway
	case errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, token.ErrNotMinter),
		errors.Is(err, token.ErrNotOwner),
		errors.Is(err, token.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, token.ErrExists):
		return http.StatusConflict
	case errors.Is(err, token.ErrBadQuantity),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, vault.ErrAmountOverflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var notMet *market.PriceNotMetError
	if errors.As(err, &notMet) {
		resp.Required = notMet.Required
	}

	writeJSON(w, statusFor(err), resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
