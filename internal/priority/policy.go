package priority

import (
	"time"

	"tezfolio/internal/domain/entity"
)

// Priority is the urgency tier of a fetch capability. Lower is more urgent.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	}
	return "unknown"
}

// Capability names one upstream fetch per wallet. It is the first component
// of every cache key.
type Capability string

const (
	CapBalance           Capability = "balance"
	CapDelegation        Capability = "delegation"
	CapTokens            Capability = "tokens"
	CapDomain            Capability = "domain"
	CapCounters          Capability = "counters"
	CapHistory           Capability = "history"
	CapTransactions      Capability = "transactions"
	CapRewards           Capability = "rewards"
	CapDelegationDetails Capability = "delegation-details"
	CapSpotPrice         Capability = "spot-price"
)

// Context is the viewing context a fetch is scheduled under.
type Context string

const (
	ContextList       Context = "list"
	ContextDetail     Context = "detail"
	ContextBackground Context = "background"
)

// Category groups capabilities by how fast their data goes stale.
type Category int

const (
	// CategoryDynamic covers raw balances and anything that moves every block.
	CategoryDynamic Category = iota
	// CategoryStatic covers near-immutable metadata such as domains and
	// baker identity.
	CategoryStatic
	// CategoryHistory covers completed history windows, treated as
	// near-immutable once fetched.
	CategoryHistory
)

// tezosTiers and etherlinkTiers are the static classification of every
// capability per chain type. Etherlink has no low tier.
var tezosTiers = map[Capability]Priority{
	CapBalance:           Critical,
	CapDelegation:        Critical,
	CapTokens:            High,
	CapDomain:            High,
	CapHistory:           Medium,
	CapTransactions:      Medium,
	CapRewards:           Low,
	CapDelegationDetails: Low,
}

var etherlinkTiers = map[Capability]Priority{
	CapBalance:      Critical,
	CapTokens:       High,
	CapCounters:     High,
	CapHistory:      Medium,
	CapTransactions: Medium,
}

var categories = map[Capability]Category{
	CapBalance:           CategoryDynamic,
	CapDelegation:        CategoryDynamic,
	CapTokens:            CategoryDynamic,
	CapDomain:            CategoryStatic,
	CapCounters:          CategoryDynamic,
	CapHistory:           CategoryHistory,
	CapTransactions:      CategoryDynamic,
	CapRewards:           CategoryDynamic,
	CapDelegationDetails: CategoryStatic,
	CapSpotPrice:         CategoryDynamic,
}

// Base staleness budget per tier.
var baseStaleTimes = map[Priority]time.Duration{
	Critical: 30 * time.Second,
	High:     2 * time.Minute,
	Medium:   5 * time.Minute,
	Low:      10 * time.Minute,
}

const (
	historyStaleFactor = 12
	staticStaleFactor  = 3
)

// Task pairs a capability with its tier for one chain type.
type Task struct {
	Capability Capability
	Priority   Priority
}

// TasksFor enumerates every capability for the chain type, sorted ascending
// by priority (critical first). The order within a tier is fixed so the
// scheduler's task list is deterministic.
func TasksFor(chain entity.ChainType) []Task {
	var order []Capability
	var tiers map[Capability]Priority
	switch chain {
	case entity.ChainTezos:
		order = []Capability{
			CapBalance, CapDelegation,
			CapTokens, CapDomain,
			CapHistory, CapTransactions,
			CapRewards, CapDelegationDetails,
		}
		tiers = tezosTiers
	case entity.ChainEtherlink:
		order = []Capability{
			CapBalance,
			CapTokens, CapCounters,
			CapHistory, CapTransactions,
		}
		tiers = etherlinkTiers
	default:
		return nil
	}
	tasks := make([]Task, 0, len(order))
	for _, c := range order {
		tasks = append(tasks, Task{Capability: c, Priority: tiers[c]})
	}
	return tasks
}

// TierOf returns the priority of a capability for the chain type.
func TierOf(chain entity.ChainType, c Capability) (Priority, bool) {
	var tiers map[Capability]Priority
	switch chain {
	case entity.ChainTezos:
		tiers = tezosTiers
	case entity.ChainEtherlink:
		tiers = etherlinkTiers
	default:
		return 0, false
	}
	p, ok := tiers[c]
	return p, ok
}

// ShouldDefer reports whether a fetch of the given tier waits for user
// interaction in the given context. List context shows only critical data
// immediately; detail context also loads high; background defers nothing.
func ShouldDefer(p Priority, ctx Context) bool {
	switch ctx {
	case ContextList:
		return p != Critical
	case ContextDetail:
		return p != Critical && p != High
	case ContextBackground:
		return false
	}
	return false
}

// StaleTimeFor computes the cache staleness budget for a capability: the
// tier's base budget scaled by how immutable the data category is.
func StaleTimeFor(p Priority, c Capability) time.Duration {
	base := baseStaleTimes[p]
	switch categories[c] {
	case CategoryHistory:
		return base * historyStaleFactor
	case CategoryStatic:
		return base * staticStaleFactor
	default:
		return base
	}
}

// CategoryOf exposes the data category of a capability.
func CategoryOf(c Capability) Category {
	return categories[c]
}
