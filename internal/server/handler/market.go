package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, id string) (domain.MarketRecord, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error)
	ListEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error)

	ConfigureMarket(ctx context.Context, caller domain.Pubkey, params domain.MarketParams) (domain.MarketRecord, error)
	Activate(ctx context.Context, marketID string) (domain.MarketRecord, error)
	PlaceBet(ctx context.Context, caller domain.Pubkey, marketID string, amount uint64, isYes bool) (service.BetReceipt, error)
	AddLiquidity(ctx context.Context, caller domain.Pubkey, marketID string, lamports uint64) (domain.MarketRecord, error)
	AdminResolve(ctx context.Context, caller domain.Pubkey, marketID string, outcome bool) (domain.MarketRecord, error)
	Withdraw(ctx context.Context, caller domain.Pubkey, marketID string, tokenAccount domain.Pubkey) (service.Payout, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.MarketRecord `json:"markets"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// ListMarkets returns markets oldest first, ties broken by id.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.MarketRecord{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// configureRequest carries everything in domain.MarketParams except the id,
// which comes from the path.
type configureRequest struct {
	Value       float64               `json:"value"`
	Range       uint8                 `json:"range"`
	TokenAmount uint64                `json:"token_amount"`
	TokenPrice  uint64                `json:"token_price"`
	Date        int64                 `json:"date"`
	Feed        domain.Pubkey         `json:"feed"`
	MetadataA   *domain.TokenMetadata `json:"metadata_a,omitempty"`
	MetadataB   *domain.TokenMetadata `json:"metadata_b,omitempty"`
}

// ConfigureMarket creates the market or reconfigures it while in Prepare.
// PUT /api/markets/{id}
func (h *MarketHandler) ConfigureMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req configureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.markets.ConfigureMarket(r.Context(), caller, domain.MarketParams{
		MarketID:    pathParam(r, "id"),
		Value:       req.Value,
		Range:       req.Range,
		TokenAmount: req.TokenAmount,
		TokenPrice:  req.TokenPrice,
		Date:        req.Date,
		Feed:        req.Feed,
		MetadataA:   req.MetadataA,
		MetadataB:   req.MetadataB,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "configure market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Activate moves the market from Prepare to Active.
// POST /api/markets/{id}/activate
func (h *MarketHandler) Activate(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Activate(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "activate market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type betRequest struct {
	Amount uint64 `json:"amount"`
	IsYes  bool   `json:"is_yes"`
}

type betResponse struct {
	service.BetReceipt
	StakeSOL string `json:"stake_sol"`
}

// PlaceBet buys claim tokens on one side.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req betRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.markets.PlaceBet(r.Context(), caller, pathParam(r, "id"), req.Amount, req.IsYes)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusOK, betResponse{
		BetReceipt: receipt,
		StakeSOL:   domain.FormatSOL(receipt.Stake),
	})
}

type liquidityRequest struct {
	Lamports uint64 `json:"lamports"`
}

// AddLiquidity moves native funds from the caller into the escrow.
// POST /api/markets/{id}/liquidity
func (h *MarketHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req liquidityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.markets.AddLiquidity(r.Context(), caller, pathParam(r, "id"), req.Lamports)
	if err != nil {
		writeDomainError(w, r, h.logger, "add liquidity", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type resolveRequest struct {
	Outcome *bool `json:"outcome"`
}

// Resolve records the outcome. Only the admin may call it.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}

	m, err := h.markets.AdminResolve(r.Context(), caller, pathParam(r, "id"), *req.Outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type withdrawRequest struct {
	TokenAccount domain.Pubkey `json:"token_account"`
}

type withdrawResponse struct {
	service.Payout
	AmountSOL string `json:"amount_sol"`
}

// Withdraw pays the caller's share of the escrow for winning tokens.
// POST /api/markets/{id}/withdraw
func (h *MarketHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.markets.Withdraw(r.Context(), caller, pathParam(r, "id"), req.TokenAccount)
	if err != nil {
		writeDomainError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{
		Payout:    payout,
		AmountSOL: domain.FormatSOL(payout.Amount),
	})
}

type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListEvents returns a market's event log, oldest first.
// GET /api/markets/{id}/events?limit=50&offset=0
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.markets.ListEvents(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events, Limit: opts.Limit, Offset: opts.Offset})
}
