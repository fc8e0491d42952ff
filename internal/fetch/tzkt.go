package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/metrics"
	"tezfolio/internal/ratelimit"

	"go.uber.org/zap"
)

const (
	mutezPerTez = 1_000_000
	// edgeDenominator converts the baker's edge-of-baking-over-staking
	// parameter into a 0..1 fee fraction.
	edgeDenominator = 1_000_000_000
	// cyclesPerYear annualizes one cycle's rewards. Approximate and
	// protocol-parameter-dependent; cycle length can change.
	cyclesPerYear = 73

	rewardCycleScan = 10

	// History sampling: fine-grained windows stay under the result cap and
	// are trimmed to a displayable size.
	blocksPerDay      = 10_800
	maxHistoryResults = 500
	maxHistoryPoints  = 100
	fineWindowDays    = 7

	tokenPageLimit       = 200
	transactionPageLimit = 20
)

// BalanceBreakdown is the Tezos account balance split, in XTZ. Total is the
// summing source of truth; Spendable is always derived, never fetched.
type BalanceBreakdown struct {
	Total     float64
	Spendable float64
	Staked    float64
	Unstaked  float64
}

// Delegation is the wallet's delegation state.
type Delegation struct {
	Status        entity.DelegationStatus
	Delegate      string
	DelegateAlias string
	StakedBalance float64
}

// TzktClient fetches Tezos account data from a TzKT-style explorer API.
// Every call goes through the tzkt provider queue.
type TzktClient struct {
	http    *httpJSON
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	baseURL string
}

// NewTzktClient creates a TzKT fetcher bound to the shared rate limiter.
func NewTzktClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *zap.Logger) *TzktClient {
	l := logger.Named("TzktClient")
	return &TzktClient{
		http:    newHTTPJSON(timeout, l),
		limiter: limiter,
		logger:  l,
		baseURL: trimTrailingSlash(baseURL),
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// do runs one rate-limited, retried GET and records metrics.
func (c *TzktClient) do(ctx context.Context, capability, requestURL string, out any) error {
	return withRetry(ctx, c.logger, capability, func(ctx context.Context) error {
		start := time.Now()
		err := c.limiter.Do(ctx, ratelimit.QueueTzkt, func(ctx context.Context) error {
			return c.http.get(capability, requestURL, out)
		})
		metrics.FetchDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.FetchTotal.WithLabelValues(capability, "error").Inc()
			return err
		}
		metrics.FetchTotal.WithLabelValues(capability, "ok").Inc()
		return nil
	})
}

type tzktAccount struct {
	Type            string `json:"type"`
	Alias           string `json:"alias"`
	Balance         int64  `json:"balance"`
	StakedBalance   int64  `json:"stakedBalance"`
	UnstakedBalance int64  `json:"unstakedBalance"`
	Delegate        *struct {
		Address string `json:"address"`
		Alias   string `json:"alias"`
	} `json:"delegate"`
	StakingBalance           int64 `json:"stakingBalance"`
	DelegatedBalance         int64 `json:"delegatedBalance"`
	LimitOfStakingOverBaking int64 `json:"limitOfStakingOverBaking"`
	EdgeOfBakingOverStaking  int64 `json:"edgeOfBakingOverStaking"`
}

func (c *TzktClient) getAccount(ctx context.Context, capability, address string) (*tzktAccount, error) {
	var acc tzktAccount
	requestURL := fmt.Sprintf("%s/v1/accounts/%s", c.baseURL, url.PathEscape(address))
	if err := c.do(ctx, capability, requestURL, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetBalanceBreakdown fetches the account's balance split. Amounts arrive in
// mutez and are normalized here; spendable = total - staked - unstaked.
func (c *TzktClient) GetBalanceBreakdown(ctx context.Context, address string) (BalanceBreakdown, error) {
	acc, err := c.getAccount(ctx, "balance", address)
	if err != nil {
		return BalanceBreakdown{}, err
	}
	total := float64(acc.Balance) / mutezPerTez
	staked := float64(acc.StakedBalance) / mutezPerTez
	unstaked := float64(acc.UnstakedBalance) / mutezPerTez
	return BalanceBreakdown{
		Total:     total,
		Staked:    staked,
		Unstaked:  unstaked,
		Spendable: total - staked - unstaked,
	}, nil
}

// GetDelegation fetches the wallet's delegation state. An undelegated account
// is a valid success, not a failure.
func (c *TzktClient) GetDelegation(ctx context.Context, address string) (Delegation, error) {
	acc, err := c.getAccount(ctx, "delegation", address)
	if err != nil {
		return Delegation{}, err
	}
	d := Delegation{StakedBalance: float64(acc.StakedBalance) / mutezPerTez}
	if acc.Delegate != nil {
		d.Delegate = acc.Delegate.Address
		d.DelegateAlias = acc.Delegate.Alias
	}
	d.Status = entity.DeriveStatus(d.StakedBalance, d.Delegate)
	return d, nil
}

type tzktTokenBalance struct {
	Balance string `json:"balance"`
	Token   struct {
		Contract struct {
			Address string `json:"address"`
		} `json:"contract"`
		TokenID  string `json:"tokenId"`
		Standard string `json:"standard"`
		Metadata *struct {
			Name         string   `json:"name"`
			Symbol       string   `json:"symbol"`
			Decimals     *string  `json:"decimals"`
			ThumbnailURI string   `json:"thumbnailUri"`
			ArtifactURI  string   `json:"artifactUri"`
			DisplayURI   string   `json:"displayUri"`
			Creators     []string `json:"creators"`
			Formats      []any    `json:"formats"`
		} `json:"metadata"`
	} `json:"token"`
}

// GetTokenBalances fetches the wallet's fungible token holdings, filtering
// out NFT-like entries with the heuristic below and normalizing balances by
// the token's decimals. An empty holding set is a valid success.
func (c *TzktClient) GetTokenBalances(ctx context.Context, address string) ([]entity.TokenBalance, error) {
	var raw []tzktTokenBalance
	requestURL := fmt.Sprintf("%s/v1/tokens/balances?account=%s&balance.gt=0&limit=%d",
		c.baseURL, url.QueryEscape(address), tokenPageLimit)
	if err := c.do(ctx, "tokens", requestURL, &raw); err != nil {
		return nil, err
	}

	tokens := make([]entity.TokenBalance, 0, len(raw))
	for _, tb := range raw {
		if tb.Token.Metadata == nil {
			continue
		}
		md := tb.Token.Metadata
		decimals, ok := parseDecimals(md.Decimals)
		rawBalance, balErr := strconv.ParseFloat(tb.Balance, 64)
		if balErr != nil {
			c.logger.Warn("skipping token with unparseable balance",
				zap.String("contract", tb.Token.Contract.Address),
				zap.String("balance", tb.Balance))
			continue
		}
		if isLikelyNFT(ok, decimals, tb.Token.TokenID, rawBalance,
			md.ArtifactURI != "" || md.DisplayURI != "", len(md.Creators) > 0, len(md.Formats) > 0) {
			continue
		}
		tokens = append(tokens, entity.TokenBalance{
			Symbol:          md.Symbol,
			Name:            md.Name,
			Balance:         rawBalance / pow10(decimals),
			Decimals:        decimals,
			ContractAddress: tb.Token.Contract.Address,
			TokenID:         tb.Token.TokenID,
			ThumbnailURI:    md.ThumbnailURI,
		})
	}
	return tokens, nil
}

func parseDecimals(s *string) (int32, bool) {
	if s == nil {
		return 0, false
	}
	d, err := strconv.ParseInt(*s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(d), true
}

func pow10(n int32) float64 {
	p := 1.0
	for i := int32(0); i < n; i++ {
		p *= 10
	}
	return p
}

// isLikelyNFT is a best-effort fungibility signal, not protocol truth. The
// decision table: no decimals metadata, zero decimals, NFT-indicative
// metadata (artifact/display URIs, creators, formats) with a nonzero token
// id, or a balance of exactly 1 with zero decimals all classify as NFT-like.
// Do not tighten or loosen without revisiting the tests covering this table.
func isLikelyNFT(hasDecimals bool, decimals int32, tokenID string, rawBalance float64, hasMediaURI, hasCreators, hasFormats bool) bool {
	if !hasDecimals {
		return true
	}
	if decimals == 0 {
		return true
	}
	nftMetadata := hasMediaURI || hasCreators || hasFormats
	if nftMetadata && tokenID != "" && tokenID != "0" {
		return true
	}
	if rawBalance == 1 && decimals == 0 {
		return true
	}
	return false
}

type tzktDomain struct {
	Name    string `json:"name"`
	Address struct {
		Address string `json:"address"`
	} `json:"address"`
}

// ReverseDomain resolves the reverse record for an address. No record is a
// valid success returning "".
func (c *TzktClient) ReverseDomain(ctx context.Context, address string) (string, error) {
	var domains []tzktDomain
	requestURL := fmt.Sprintf("%s/v1/domains?address=%s&reverse=true&limit=1",
		c.baseURL, url.QueryEscape(address))
	if err := c.do(ctx, "domain", requestURL, &domains); err != nil {
		return "", err
	}
	if len(domains) == 0 {
		return "", nil
	}
	return domains[0].Name, nil
}

// ResolveDomain resolves a .tez name to an address. An unknown name is a
// valid success returning "".
func (c *TzktClient) ResolveDomain(ctx context.Context, name string) (string, error) {
	var domains []tzktDomain
	requestURL := fmt.Sprintf("%s/v1/domains?name=%s&limit=1",
		c.baseURL, url.QueryEscape(name))
	if err := c.do(ctx, "domain", requestURL, &domains); err != nil {
		return "", err
	}
	if len(domains) == 0 {
		return "", nil
	}
	return domains[0].Address.Address, nil
}

type tzktDelegatorRewards struct {
	Cycle            int64 `json:"cycle"`
	BakingPower      int64 `json:"bakingPower"`
	DelegatedBalance int64 `json:"delegatedBalance"`

	FutureBlockRewards       int64 `json:"futureBlockRewards"`
	FutureEndorsementRewards int64 `json:"futureEndorsementRewards"`

	BlockRewardsStakedOwn          int64 `json:"blockRewardsStakedOwn"`
	BlockRewardsStakedShared       int64 `json:"blockRewardsStakedShared"`
	EndorsementRewardsStakedOwn    int64 `json:"endorsementRewardsStakedOwn"`
	EndorsementRewardsStakedShared int64 `json:"endorsementRewardsStakedShared"`

	BlockRewardsDelegated           int64 `json:"blockRewardsDelegated"`
	EndorsementRewardsDelegated     int64 `json:"endorsementRewardsDelegated"`
	VdfRevelationRewardsDelegated   int64 `json:"vdfRevelationRewardsDelegated"`
	NonceRevelationRewardsDelegated int64 `json:"nonceRevelationRewardsDelegated"`
}

func (r tzktDelegatorRewards) toEntity() entity.WalletRewards {
	staking := r.BlockRewardsStakedOwn + r.BlockRewardsStakedShared +
		r.EndorsementRewardsStakedOwn + r.EndorsementRewardsStakedShared
	delegating := r.BlockRewardsDelegated + r.EndorsementRewardsDelegated +
		r.VdfRevelationRewardsDelegated + r.NonceRevelationRewardsDelegated
	return entity.WalletRewards{
		Cycle:             r.Cycle,
		TotalRewards:      float64(staking+delegating) / mutezPerTez,
		FutureRewards:     float64(r.FutureBlockRewards+r.FutureEndorsementRewards) / mutezPerTez,
		DelegatedBalance:  float64(r.DelegatedBalance) / mutezPerTez,
		StakingRewards:    float64(staking) / mutezPerTez,
		DelegatingRewards: float64(delegating) / mutezPerTez,
		BakingPower:       float64(r.BakingPower) / mutezPerTez,
	}
}

// GetRewards scans the wallet's most recent reward cycles and picks the first
// with nonzero paid rewards, falling back to the most recent cycle, which
// then only supplies future rewards. No reward history is a valid success
// returning nil.
func (c *TzktClient) GetRewards(ctx context.Context, address string) (*entity.WalletRewards, error) {
	var raw []tzktDelegatorRewards
	requestURL := fmt.Sprintf("%s/v1/rewards/delegators/%s?limit=%d",
		c.baseURL, url.PathEscape(address), rewardCycleScan)
	if err := c.do(ctx, "rewards", requestURL, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	// Cycles arrive most recent first.
	for _, r := range raw {
		rewards := r.toEntity()
		if rewards.TotalRewards > 0 {
			return &rewards, nil
		}
	}
	fallback := raw[0].toEntity()
	return &fallback, nil
}

// GetDelegationDetails fetches the baker's own account for its staking totals
// and the wallet's reward history for the ROI estimate. The ROI is a crude
// annualization of one cycle's future rewards over baking power.
func (c *TzktClient) GetDelegationDetails(ctx context.Context, address, delegate, delegateAlias string) (*entity.DelegationDetails, error) {
	if delegate == "" {
		return nil, nil
	}
	baker, err := c.getAccount(ctx, "delegation-details", delegate)
	if err != nil {
		return nil, err
	}

	ownStake := float64(baker.StakedBalance) / mutezPerTez
	limitMultiplier := float64(baker.LimitOfStakingOverBaking) / mutezPerTez
	capacity := ownStake * (limitMultiplier + 1)
	stakingBalance := float64(baker.StakingBalance) / mutezPerTez

	details := &entity.DelegationDetails{
		Baker:           delegate,
		BakerName:       bakerDisplayName(delegateAlias, baker.Alias, delegate),
		StakingBalance:  stakingBalance,
		StakingCapacity: capacity,
		FreeSpace:       capacity - stakingBalance,
		Fee:             float64(baker.EdgeOfBakingOverStaking) / edgeDenominator,
	}

	rewards, err := c.GetRewards(ctx, address)
	if err != nil {
		c.logger.Debug("reward history unavailable for ROI estimate",
			zap.String("address", address), zap.Error(err))
		return details, nil
	}
	if rewards != nil && rewards.BakingPower > 0 {
		details.EstimatedROI = rewards.FutureRewards / rewards.BakingPower * cyclesPerYear
	}
	return details, nil
}

func bakerDisplayName(alias, accountAlias, address string) string {
	if alias != "" {
		return alias
	}
	if accountAlias != "" {
		return accountAlias
	}
	if len(address) > 12 {
		return address[:8] + "..." + address[len(address)-4:]
	}
	return address
}

type tzktBalancePoint struct {
	Balance   int64     `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}

// GetBalanceHistory fetches days of balance history. Short windows use
// fine-grained sampling with an adaptive block step to stay under the result
// cap; longer windows use day-sized aggregate steps. Both exclude the current
// incomplete day and strip trailing zero-balance points, which are treated as
// not yet settled.
func (c *TzktClient) GetBalanceHistory(ctx context.Context, address string, days int) ([]entity.BalancePoint, error) {
	if days <= 0 {
		days = 1
	}
	var step int
	if days <= fineWindowDays {
		step = days * blocksPerDay / maxHistoryResults
		if step < 1 {
			step = 1
		}
	} else {
		step = blocksPerDay
	}

	var raw []tzktBalancePoint
	requestURL := fmt.Sprintf("%s/v1/accounts/%s/balance_history?step=%d&limit=%d&sort.desc=level",
		c.baseURL, url.PathEscape(address), step, maxHistoryResults)
	if err := c.do(ctx, "history", requestURL, &raw); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	points := make([]entity.BalancePoint, 0, len(raw))
	for _, p := range raw {
		if p.Timestamp.Before(cutoff) || !p.Timestamp.Before(today) {
			continue
		}
		points = append(points, entity.BalancePoint{
			Timestamp: p.Timestamp,
			Balance:   float64(p.Balance) / mutezPerTez,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	points = stripTrailingZeros(points)
	return thinPoints(points, maxHistoryPoints), nil
}

// stripTrailingZeros drops zero-balance points at the tail of the series.
func stripTrailingZeros(points []entity.BalancePoint) []entity.BalancePoint {
	end := len(points)
	for end > 0 && points[end-1].Balance == 0 {
		end--
	}
	return points[:end]
}

// thinPoints downsamples evenly to at most max points, keeping the last one.
func thinPoints(points []entity.BalancePoint, max int) []entity.BalancePoint {
	if len(points) <= max {
		return points
	}
	out := make([]entity.BalancePoint, 0, max)
	stride := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, points[int(float64(i)*stride)])
	}
	out[max-1] = points[len(points)-1]
	return out
}

type tzktOperation struct {
	Hash      string    `json:"hash"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Amount    int64     `json:"amount"`
	Sender    struct {
		Address string `json:"address"`
	} `json:"sender"`
	Target struct {
		Address string `json:"address"`
	} `json:"target"`
}

// GetTransactions fetches the wallet's most recent transactions.
func (c *TzktClient) GetTransactions(ctx context.Context, address string, limit int) ([]entity.Transaction, error) {
	if limit <= 0 {
		limit = transactionPageLimit
	}
	var raw []tzktOperation
	requestURL := fmt.Sprintf("%s/v1/accounts/%s/operations?type=transaction&limit=%d",
		c.baseURL, url.PathEscape(address), limit)
	if err := c.do(ctx, "transactions", requestURL, &raw); err != nil {
		return nil, err
	}
	txs := make([]entity.Transaction, 0, len(raw))
	for _, op := range raw {
		txs = append(txs, entity.Transaction{
			Hash:      op.Hash,
			Timestamp: op.Timestamp,
			Sender:    op.Sender.Address,
			Target:    op.Target.Address,
			Amount:    float64(op.Amount) / mutezPerTez,
			Kind:      op.Type,
		})
	}
	return txs, nil
}
