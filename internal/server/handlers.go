package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/model"
)

type createListingRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Seller     string `json:"seller"`
	Quantity   uint64 `json:"quantity"`
	UnitPrice  uint64 `json:"unit_price"`
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

type repriceRequest struct {
	Seller    string `json:"seller"`
	UnitPrice uint64 `json:"unit_price"`
}

type buyRequest struct {
	Buyer    string `json:"buyer"`
	Quantity uint64 `json:"quantity"`
	Payment  uint64 `json:"payment"`
}

type setFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps uint64 `json:"fee_bps"`
}

type listingResponse struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Seller     string `json:"seller"`
	UnitPrice  uint64 `json:"unit_price"`
	Quantity   uint64 `json:"quantity"`
	CreatedAt  int64  `json:"created_at"`
}

type receiptResponse struct {
	SaleID           string `json:"sale_id"`
	Collection       string `json:"collection"`
	TokenID          string `json:"token_id"`
	Seller           string `json:"seller"`
	Buyer            string `json:"buyer"`
	Quantity         uint64 `json:"quantity"`
	UnitPrice        uint64 `json:"unit_price"`
	Total            uint64 `json:"total"`
	Fee              uint64 `json:"fee"`
	Royalty          uint64 `json:"royalty"`
	RoyaltyRecipient string `json:"royalty_recipient,omitempty"`
	SellerProceeds   uint64 `json:"seller_proceeds"`
	Remaining        uint64 `json:"remaining"`
	ExecutedAt       int64  `json:"executed_at"`
}

type proceedsResponse struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type totalsResponse struct {
	ActiveListings      int    `json:"active_listings"`
	Sales               uint64 `json:"sales"`
	Volume              uint64 `json:"volume"`
	FeeBps              uint64 `json:"fee_bps"`
	ProceedsOutstanding uint64 `json:"proceeds_outstanding"`
}

func toListingResponse(l model.Listing) listingResponse {
	return listingResponse{
		Collection: string(l.Collection),
		TokenID:    l.TokenID,
		Seller:     string(l.Seller),
		UnitPrice:  l.UnitPrice,
		Quantity:   l.Quantity,
		CreatedAt:  l.CreatedAt,
	}
}

func toReceiptResponse(r model.SaleReceipt) receiptResponse {
	return receiptResponse{
		SaleID:           r.SaleID,
		Collection:       string(r.Collection),
		TokenID:          r.TokenID,
		Seller:           string(r.Seller),
		Buyer:            string(r.Buyer),
		Quantity:         r.Quantity,
		UnitPrice:        r.UnitPrice,
		Total:            r.Total,
		Fee:              r.Fee,
		Royalty:          r.Royalty,
		RoyaltyRecipient: string(r.RoyaltyRecipient),
		SellerProceeds:   r.SellerProceeds,
		Remaining:        r.Remaining,
		ExecutedAt:       r.ExecutedAt,
	}
}

// refFromVars builds the asset reference addressed by the route.
func refFromVars(r *http.Request) model.AssetRef {
	vars := mux.Vars(r)
	return model.AssetRef{
		Collection: model.Address(vars["collection"]),
		TokenID:    vars["token"],
	}
}

// recordOp is nil-safe so the server runs without a metrics registry.
func (s *Server) recordOp(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordOp(op, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request) {
	listings := s.engine.Listings()
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Collection != listings[j].Collection {
			return listings[i].Collection < listings[j].Collection
		}
		return listings[i].TokenID < listings[j].TokenID
	})

	resp := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, ok := s.engine.GetListing(refFromVars(r))
	if !ok {
		writeError(w, market.ErrNotListed)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var payload createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if err := validateCreateListing(payload); err != nil {
		badRequest(w, err.Error())
		return
	}

	ref := model.AssetRef{
		Collection: model.Address(payload.Collection),
		TokenID:    payload.TokenID,
	}
	err := s.engine.List(r.Context(), model.Address(payload.Seller), ref, payload.Quantity, payload.UnitPrice)
	s.recordOp("list", err)
	if err != nil {
		writeError(w, err)
		return
	}

	l, _ := s.engine.GetListing(ref)
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var payload cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Caller == "" {
		badRequest(w, "caller is required")
		return
	}

	err := s.engine.Cancel(r.Context(), model.Address(payload.Caller), refFromVars(r))
	s.recordOp("cancel", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) handleReprice(w http.ResponseWriter, r *http.Request) {
	var payload repriceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Seller == "" {
		badRequest(w, "seller is required")
		return
	}

	ref := refFromVars(r)
	err := s.engine.Reprice(r.Context(), model.Address(payload.Seller), ref, payload.UnitPrice)
	s.recordOp("reprice", err)
	if err != nil {
		writeError(w, err)
		return
	}

	l, _ := s.engine.GetListing(ref)
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var payload buyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Buyer == "" {
		badRequest(w, "buyer is required")
		return
	}

	receipt, err := s.engine.Settle(r.Context(), model.Address(payload.Buyer), refFromVars(r), payload.Quantity, payload.Payment)
	s.recordOp("settle", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (s *Server) handleGetProceeds(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	writeJSON(w, http.StatusOK, proceedsResponse{
		Account: account,
		Amount:  s.engine.Proceeds(model.Address(account)),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]

	amount, err := s.engine.Withdraw(r.Context(), model.Address(account))
	s.recordOp("withdraw", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proceedsResponse{Account: account, Amount: amount})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var payload setFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Caller == "" {
		badRequest(w, "caller is required")
		return
	}

	err := s.engine.SetFee(r.Context(), model.Address(payload.Caller), payload.FeeBps)
	s.recordOp("set_fee", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"fee_bps": payload.FeeBps})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	t := s.engine.Totals()
	writeJSON(w, http.StatusOK, totalsResponse{
		ActiveListings:      t.ActiveListings,
		Sales:               t.Sales,
		Volume:              t.Volume,
		FeeBps:              s.engine.FeeBps(),
		ProceedsOutstanding: s.engine.Outstanding(),
	})
}

func validateCreateListing(req createListingRequest) error {
	if req.Collection == "" {
		return errors.New("collection is required")
	}
	if req.TokenID == "" {
		return errors.New("token_id is required")
	}
	if req.Seller == "" {
		return errors.New("seller is required")
	}
	if req.Quantity == 0 {
		return errors.New("quantity must be positive")
	}
	if req.UnitPrice == 0 {
		return errors.New("unit_price must be positive")
	}
	return nil
}
