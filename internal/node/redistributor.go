package node

import (
	"fmt"
	"time"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
)

// runRedistributor hands free children the largest unsearched range each
// interval while the leader is solving. Ranges are cut to a per-child
// budget so a reassignment never parks a child for more than a few
// seconds' worth of hashing. When every part has been searched without a
// hit the round is declared unsolvable and shut down.
func (n *Node) runRedistributor() {
	log := n.log.With("src", "redistributor")
	log.Info("started monitoring for waiting children")

	cfg := config.Load()
	ticker := time.NewTicker(cfg.RedistributeInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !n.IsLeaderSolving() {
			log.Info("leader no longer solving, stopping")
			return
		}

		if n.allPartsSearched() {
			fmt.Println(n.partsReport())
			fmt.Println("----- NO SOLUTION FOUND -----")
			log.Info("entire search space exhausted without a hit")
			n.stopRound()
			return
		}

		waiting := n.waitingChildren()
		if len(waiting) == 0 {
			continue
		}
		log.Debug("waiting children found", "count", len(waiting))

		for _, child := range waiting {
			budget := max(1, int(cfg.RedistributeBudget.Seconds())*int(child.Power)*1000)

			part, ok := n.takeLargestUnsearched(budget)
			if !ok {
				log.Debug("no unsearched ranges available", "child", child.Address)
				continue
			}

			log.Info("redistributing range", "child", child.Address,
				"start", part.Start, "end", part.End,
				"combinations", part.TotalCombinations(), "budget", budget)
			n.dispatchPart(child.Address, part)
		}
	}
}

// waitingChildren snapshots the children currently without work.
func (n *Node) waitingChildren() []Friend {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	var waiting []Friend
	for _, f := range n.friends {
		if f.Role == RoleChildFriend && f.Work == ChildWaiting {
			waiting = append(waiting, f)
		}
	}
	return waiting
}

// allPartsSearched reports whether a non-empty parts map is fully
// SearchedAndNotFound.
func (n *Node) allPartsSearched() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Leader || !n.state.leaderSolving || len(n.state.parts) == 0 {
		return false
	}
	for _, p := range n.state.parts {
		if p.State != problem.SearchedAndNotFound {
			return false
		}
	}
	return true
}

// takeLargestUnsearched pulls the biggest NotDistributed part out of the
// map, splits it to the budget, and re-inserts the head as Distributed
// plus the optional tail untouched. Returns the head.
func (n *Node) takeLargestUnsearched(budget int) (problem.Part, bool) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if n.state.role != Leader || !n.state.leaderSolving {
		return problem.Part{}, false
	}

	largest := -1
	for i, p := range n.state.parts {
		if p.State != problem.NotDistributed {
			continue
		}
		if largest < 0 || p.TotalCombinations() > n.state.parts[largest].TotalCombinations() {
			largest = i
		}
	}
	if largest < 0 {
		return problem.Part{}, false
	}

	part := n.state.parts[largest]
	n.state.parts = append(n.state.parts[:largest], n.state.parts[largest+1:]...)

	head, tail := part.SplitAtCombinations(budget)
	head.State = problem.Distributed
	n.state.parts = append(n.state.parts, head)
	if tail != nil {
		n.state.parts = append(n.state.parts, *tail)
	}

	return head, true
}

// dispatchPart delivers a redistributed range. On failure the head reverts
// to NotDistributed and the child is dropped.
func (n *Node) dispatchPart(address string, part problem.Part) {
	msg := protocol.NewSolveProblem(n.address, address, part.Start, part.End, part.Alphabet, part.Hash)
	if _, err := n.send(msg); err != nil {
		n.log.Warn("failed to redistribute range", "child", address, "error", err)
		n.markPartState(part.Start, part.End, problem.NotDistributed)
		n.RemoveFriend(address)
		return
	}
	n.SetFriendSolving(address, part)
}

// partsReport renders the current parts map for the operator.
func (n *Node) partsReport() string {
	parts := n.Parts()

	report := "----- PROBLEM PARTS -----\n"
	for _, p := range parts {
		report += "  " + p.String() + "\n"
	}
	report += "-------------------------"
	return report
}
