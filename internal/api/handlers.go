package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"tezfolio/internal/aggregate"
	"tezfolio/internal/cache"
	"tezfolio/internal/domain/entity"
	"tezfolio/internal/priority"
	"tezfolio/internal/scheduler"
	"tezfolio/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the portfolio REST surface.
type Handler struct {
	aggregator *aggregate.WalletAggregator
	wallets    *store.WalletStore
	cache      *cache.Store
	logger     *zap.Logger
	topTokens  int

	mu       sync.Mutex
	sessions map[string]*scheduler.Session
}

// NewHandler wires the REST handlers.
func NewHandler(
	aggregator *aggregate.WalletAggregator,
	wallets *store.WalletStore,
	cacheStore *cache.Store,
	topTokens int,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		aggregator: aggregator,
		wallets:    wallets,
		cache:      cacheStore,
		logger:     logger.Named("Handler"),
		topTokens:  topTokens,
		sessions:   make(map[string]*scheduler.Session),
	}
}

type addWalletRequest struct {
	Chain   string `json:"chain" binding:"required"`
	Address string `json:"address" binding:"required"`
	Label   string `json:"label"`
}

type renameWalletRequest struct {
	Label string `json:"label" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, errorResponse{Error: err.Error()})
}

// ListWallets returns every tracked wallet.
func (h *Handler) ListWallets(c *gin.Context) {
	wallets, err := h.wallets.List()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// AddWallet tracks a new wallet by address or .tez domain and runs the
// seeding refresh before responding.
func (h *Handler) AddWallet(c *gin.Context) {
	var req addWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	chain := entity.ChainType(req.Chain)
	if chain != entity.ChainTezos && chain != entity.ChainEtherlink {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "chain must be tezos or etherlink"})
		return
	}

	w, err := h.aggregator.AddWallet(c.Request.Context(), chain, req.Address, req.Label)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAddress) {
			abortWithError(c, http.StatusConflict, err)
			return
		}
		abortWithError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// RenameWallet updates a wallet's label.
func (h *Handler) RenameWallet(c *gin.Context) {
	var req renameWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.wallets.Rename(c.Param("id"), req.Label); err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			abortWithError(c, http.StatusNotFound, err)
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveWallet stops tracking a wallet.
func (h *Handler) RemoveWallet(c *gin.Context) {
	id := c.Param("id")
	h.closeSession(id)
	if err := h.wallets.Remove(id); err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshWallet re-fetches one wallet across every source and persists the
// merged result.
func (h *Handler) RefreshWallet(c *gin.Context) {
	w, ok, err := h.wallets.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abortWithError(c, http.StatusNotFound, store.ErrWalletNotFound)
		return
	}
	merged, err := h.aggregator.RefreshAndSave(c.Request.Context(), w)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}

// RefreshAll refreshes every tracked wallet in parallel. Per-wallet failures
// keep the previous data and do not fail the whole call.
func (h *Handler) RefreshAll(c *gin.Context) {
	wallets, err := h.aggregator.RefreshAll(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// Portfolio computes the aggregate statistics over all tracked wallets.
func (h *Handler) Portfolio(c *gin.Context) {
	wallets, err := h.wallets.List()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, aggregate.ComputeStats(wallets, h.topTokens))
}

// History returns the balance history for one wallet, days capped by query.
func (h *Handler) History(c *gin.Context) {
	w, ok, err := h.wallets.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abortWithError(c, http.StatusNotFound, store.ErrWalletNotFound)
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "days must be a positive integer"})
		return
	}
	points, err := h.aggregator.History(c.Request.Context(), w, days)
	if err != nil {
		abortWithError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": points})
}

// Snapshots returns the recorded balance timeline, optionally filtered by
// walletId.
func (h *Handler) Snapshots(c *gin.Context) {
	snaps, err := h.wallets.Snapshots(c.Query("walletId"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// Export produces the downloadable wallet list file.
func (h *Handler) Export(c *gin.Context) {
	file, err := h.wallets.Export()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Import merges an uploaded wallet list file.
func (h *Handler) Import(c *gin.Context) {
	var file entity.ExportFile
	if err := c.ShouldBindJSON(&file); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	result, err := h.wallets.Import(file)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StartLoad opens a progressive loading session for a wallet: critical data
// immediately, deferred tiers on interaction, low tiers on idle. Replaces any
// previous session for the same wallet.
func (h *Handler) StartLoad(c *gin.Context) {
	w, ok, err := h.wallets.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abortWithError(c, http.StatusNotFound, store.ErrWalletNotFound)
		return
	}
	viewCtx := priority.Context(c.DefaultQuery("context", string(priority.ContextList)))
	switch viewCtx {
	case priority.ContextList, priority.ContextDetail, priority.ContextBackground:
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "context must be list, detail or background"})
		return
	}

	runner := func(ctx context.Context, cap priority.Capability) {
		h.aggregator.RunCapability(ctx, w, cap)
	}
	session := scheduler.NewSession(w.Chain, viewCtx, runner, h.logger)

	h.mu.Lock()
	if old, exists := h.sessions[w.ID]; exists {
		old.Close()
	}
	h.sessions[w.ID] = session
	h.mu.Unlock()

	session.Start(context.WithoutCancel(c.Request.Context()))
	_, total := session.Progress()
	c.JSON(http.StatusAccepted, gin.H{"tasks": total})
}

// Interact marks a user interaction on the wallet's loading session,
// releasing the deferred tiers.
func (h *Handler) Interact(c *gin.Context) {
	h.mu.Lock()
	session, ok := h.sessions[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active loading session"})
		return
	}
	session.Interact(context.WithoutCancel(c.Request.Context()))
	c.Status(http.StatusNoContent)
}

// LoadProgress reports settled versus total tasks for the wallet's session.
func (h *Handler) LoadProgress(c *gin.Context) {
	h.mu.Lock()
	session, ok := h.sessions[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active loading session"})
		return
	}
	completed, total := session.Progress()
	c.JSON(http.StatusOK, gin.H{"completed": completed, "total": total})
}

// StopLoad closes the wallet's loading session. In-flight fetches finish and
// still populate the cache.
func (h *Handler) StopLoad(c *gin.Context) {
	h.closeSession(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) closeSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if session, ok := h.sessions[id]; ok {
		session.Close()
		delete(h.sessions, id)
	}
}

// Reconnect drops every cached fetch result and kicks a background refresh,
// used when the upstream connection was lost and data may be arbitrarily
// stale.
func (h *Handler) Reconnect(c *gin.Context) {
	dropped := h.cache.Invalidate(func(cache.Key) bool { return true })
	go func() {
		if err := h.aggregator.RefreshStale(context.Background()); err != nil {
			h.logger.Warn("reconnect refresh failed", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"invalidated": dropped})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
