package routetable

import (
	"math"
	"time"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/cost"
	"github.com/kabili207/lorance/core/wire"
)

// ApplyAdvertised processes one (via, node) pair from a HELLO, implementing
// the install/refresh/replace/admission algorithm of spec §4.2 step 4. node
// must already be receiver-relative (the caller — package routeproc — adds
// 1 to the sender-relative metric before calling this).
//
// costFn nil selects hop-count-only behavior (P1/P2): replace iff
// node.Metric < existing.Metric. costFn non-nil selects P3 cost-based
// replacement, with the 15%/20% hysteresis split of spec §4.2.
//
// Candidate cost inputs are copied out and the table's mutex released
// before costFn.Evaluate is called, satisfying the no-nested-lock
// contract of spec §5; the entry is re-read after re-acquiring the lock
// so a concurrent mutation between the copy and the write is never lost
// silently — it simply makes this call's decision stale and it is retried
// on the next HELLO (the table itself is always left consistent).
func (t *Table) ApplyAdvertised(via address.Address, node wire.NetworkNode, costFn *cost.Function, now time.Time, holdTime time.Duration) ApplyResult {
	if node.Address == t.localAddr {
		return ApplyResult{Outcome: OutcomeIgnored}
	}

	t.mu.Lock()
	existing, ok := t.entries[node.Address]
	if !ok {
		result := t.applyInstallLocked(node, via, now, holdTime)
		t.mu.Unlock()
		return result
	}
	existingCopy := *existing
	t.mu.Unlock()

	replace, refreshOnly := t.decideReplace(node, via, existingCopy, costFn)

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-read: another goroutine may have mutated or removed this entry
	// between the unlock above and now.
	current, ok := t.entries[node.Address]
	if !ok {
		return t.applyInstallLocked(node, via, now, holdTime)
	}
	if current.Via != existingCopy.Via || current.Metric != existingCopy.Metric {
		// The decision above was made against an entry that has since
		// changed; discard it and let the next HELLO re-evaluate.
		return ApplyResult{Outcome: OutcomeIgnored}
	}

	topologyChange := false
	outcome := OutcomeRejectedCost

	switch {
	case refreshOnly:
		current.Timeout = now.Add(holdTime)
		outcome = OutcomeRefreshed
	case replace:
		if current.Via != via {
			topologyChange = true
		}
		current.Via = via
		metric := node.Metric
		if metric > t.limits.HopMax {
			metric = t.limits.HopMax
		}
		current.Metric = metric
		current.Timeout = now.Add(holdTime)
		outcome = OutcomeReplaced
	default:
		outcome = OutcomeRejectedCost
	}

	if node.GatewayLoad != wire.UnknownGatewayLoad && node.GatewayLoad != current.GatewayLoad {
		current.GatewayLoad = node.GatewayLoad
	}
	if current.Via == via && node.Role != current.Role {
		current.Role = node.Role
	}

	return ApplyResult{Outcome: outcome, TopologyChange: topologyChange}
}

// applyInstallLocked installs a brand-new entry for node.Address. Must be
// called with t.mu held; the caller retains responsibility for unlocking.
func (t *Table) applyInstallLocked(node wire.NetworkNode, via address.Address, now time.Time, holdTime time.Duration) ApplyResult {
	if len(t.entries) >= t.limits.MaxSize {
		return ApplyResult{Outcome: OutcomeRejectedTableFull}
	}

	metric := node.Metric
	if metric > t.limits.HopMax {
		metric = t.limits.HopMax
	}
	if metric < 1 {
		metric = 1
	}

	t.entries[node.Address] = &RouteEntry{
		Destination: node.Address,
		Via:         via,
		Metric:      metric,
		Role:        node.Role,
		GatewayLoad: node.GatewayLoad,
		Timeout:     now.Add(holdTime),
	}
	return ApplyResult{Outcome: OutcomeInstalled, TopologyChange: true}
}

// decideReplace implements the shouldReplace decision of spec §4.2,
// evaluated outside the table's lock.
func (t *Table) decideReplace(node wire.NetworkNode, via address.Address, existing RouteEntry, costFn *cost.Function) (replace, refreshOnly bool) {
	if node.Metric == existing.Metric && via == existing.Via {
		return false, true
	}

	if costFn == nil {
		return node.Metric < existing.Metric, false
	}

	newCost := costFn.Evaluate(node.Metric, via, node.Address)
	currentCost := costFn.Evaluate(existing.Metric, existing.Via, existing.Destination)

	if math.IsNaN(newCost) || newCost < 0 {
		// A CostFunction producing NaN/negative for the candidate is
		// treated as worse than any finite cost: never replace with it.
		return false, false
	}
	if math.IsNaN(currentCost) || currentCost < 0 {
		// The existing entry's cost is somehow invalid: anything finite
		// and non-negative is an improvement.
		return true, false
	}

	threshold := costFn.Weights().ReplaceHysteresis
	if node.Metric > existing.Metric {
		threshold = costFn.Weights().AddHopHysteresis
	}
	return newCost < currentCost*threshold, false
}
