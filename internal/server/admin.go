package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tidemarket/escrow/internal/model"
)

type mintRequest struct {
	Caller   string `json:"caller"`
	To       string `json:"to"`
	TokenID  string `json:"token_id"`
	Quantity uint64 `json:"quantity"`
}

type approveRequest struct {
	Owner  string `json:"owner"`
	Revoke bool   `json:"revoke"`
}

type minterRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Revoke  bool   `json:"revoke"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// collectionFromVars resolves the collection addressed by the route.
func (s *Server) collectionFromVars(w http.ResponseWriter, r *http.Request) (model.Address, Collection, bool) {
	id := model.Address(mux.Vars(r)["collection"])
	coll, ok := s.collections[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown collection"})
		return "", nil, false
	}
	return id, coll, true
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	id, coll, ok := s.collectionFromVars(w, r)
	if !ok {
		return
	}

	var payload mintRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Caller == "" {
		badRequest(w, "caller is required")
		return
	}
	if payload.To == "" {
		badRequest(w, "to is required")
		return
	}
	if payload.TokenID == "" {
		badRequest(w, "token_id is required")
		return
	}
	if payload.Quantity == 0 {
		badRequest(w, "quantity must be positive")
		return
	}

	err := coll.Mint(r.Context(), model.Address(payload.Caller), model.Address(payload.To), payload.TokenID, payload.Quantity)
	s.recordOp("mint", err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"collection": string(id),
		"token_id":   payload.TokenID,
		"owner":      payload.To,
		"quantity":   payload.Quantity,
	})
}

// handleApprove grants or revokes the escrow account's operator approval
// on behalf of the owner. Listing requires this approval in place.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	_, coll, ok := s.collectionFromVars(w, r)
	if !ok {
		return
	}

	var payload approveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Owner == "" {
		badRequest(w, "owner is required")
		return
	}

	escrow := s.engine.EscrowAccount()
	err := coll.SetApprovalForAll(model.Address(payload.Owner), escrow, !payload.Revoke)
	s.recordOp("approve", err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    payload.Owner,
		"operator": string(escrow),
		"approved": !payload.Revoke,
	})
}

func (s *Server) handleMinters(w http.ResponseWriter, r *http.Request) {
	_, coll, ok := s.collectionFromVars(w, r)
	if !ok {
		return
	}

	var payload minterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Caller == "" {
		badRequest(w, "caller is required")
		return
	}
	if payload.Account == "" {
		badRequest(w, "account is required")
		return
	}

	var err error
	if payload.Revoke {
		err = coll.RevokeMinter(model.Address(payload.Caller), model.Address(payload.Account))
	} else {
		err = coll.GrantMinter(model.Address(payload.Caller), model.Address(payload.Account))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": payload.Account,
		"minter":  !payload.Revoke,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: s.bank.Balance(model.Address(account)),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]

	var payload depositRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid json payload")
		return
	}
	if payload.Amount == 0 {
		badRequest(w, "amount must be positive")
		return
	}

	if err := s.bank.Deposit(model.Address(account), payload.Amount); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: s.bank.Balance(model.Address(account)),
	})
}
