package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// AccountService is the slice of the engine the account endpoints use.
type AccountService interface {
	GetAccount(ctx context.Context, owner domain.Pubkey) (domain.Account, error)
	Deposit(ctx context.Context, owner domain.Pubkey, lamports uint64) (uint64, error)
}

// AccountHandler serves native balances and token holdings.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logHandler(logger, "accounts")}
}

type accountResponse struct {
	domain.Account
	SOL string `json:"sol"`
}

// GetAccount returns an owner's lamports and token accounts.
// GET /api/accounts/{owner}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParsePubkey(pathParam(r, "owner"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get account", err)
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Account: acct, SOL: domain.FormatSOL(acct.Lamports)})
}

type depositRequest struct {
	Lamports uint64 `json:"lamports"`
}

// Deposit credits native funds to an owner. It stands in for the external
// transfer that would fund the account.
// POST /api/accounts/{owner}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParsePubkey(pathParam(r, "owner"))
	if err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	var req depositRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.accounts.Deposit(r.Context(), owner, req.Lamports)
	if err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    owner,
		"lamports": balance,
		"sol":      domain.FormatSOL(balance),
	})
}
