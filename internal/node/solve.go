package node

import (
	"errors"
	"strings"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
	"golang.org/x/sync/errgroup"
)

var errNotLeaderWaiting = errors.New("node: not a leader waiting for a problem, run 'cal' first")

// Recruit turns an idle node into a leader and floods CalculatePower so
// every reachable peer reports in. This is the operator's `cal`.
func (n *Node) Recruit() error {
	if !n.IsIdle() {
		return errors.New("node: not idle, cannot become leader")
	}

	n.TransitionToLeader()
	n.sendCalculatePowerToFriends(n.address)
	return nil
}

// Solve partitions the search space across the recruited children weighted
// by their measured power, dispatches the parts, and starts the leader's
// background loops. This is the operator's `solve`.
func (n *Node) Solve(alphabet string, minLen, maxLen int, hash string) error {
	if !n.IsLeaderWaiting() {
		return errNotLeaderWaiting
	}

	runes := []rune(alphabet)
	if len(runes) == 0 || minLen < 1 || maxLen < minLen {
		return errors.New("node: invalid problem definition")
	}

	start := strings.Repeat(string(runes[0]), minLen)
	end := strings.Repeat(string(runes[len(runes)-1]), maxLen)
	prob := problem.New(alphabet, start, end, hash)

	totalPower := n.totalChildPower()
	n.log.Info("distributing problem", "total_power", totalPower,
		"combinations", prob.TotalCombinations())
	if totalPower == 0 {
		n.log.Warn("no child power available; nothing will be distributed until a child appears")
	}

	parts := prob.DivideIntoNAndKeepPercentage(int(totalPower), config.Load().KeepPercentage)
	parts = n.mergePartsByChildStrength(parts)

	n.TransitionLeaderToSolving()
	n.distributeParts(parts)
	n.SetParts(parts)

	go n.runWatcher()
	go n.runRedistributor()

	n.sendBackupData()
	return nil
}

// Stop abandons the current round and waves the children off. This is the
// operator's `stop`.
func (n *Node) Stop() error {
	if !n.IsLeader() {
		return errors.New("node: not a leader, ignoring stop")
	}
	n.stopRound()
	return nil
}

// mergePartsByChildStrength regroups the evenly-cut parts so each waiting
// child receives power-many consecutive parts merged into one; the single
// leftover is the leader's retained share.
func (n *Node) mergePartsByChildStrength(parts []problem.Part) []problem.Part {
	var powers []uint32
	n.friendsMu.Lock()
	for _, f := range n.friends {
		if f.Role == RoleChildFriend && f.Work == ChildWaiting {
			powers = append(powers, f.Power)
		}
	}
	n.friendsMu.Unlock()

	if len(powers) == 0 || len(parts) == 0 {
		return parts
	}

	var result []problem.Part
	idx := 0
	for _, power := range powers {
		if power == 0 || idx >= len(parts) {
			continue
		}
		end := min(idx+int(power), len(parts))
		group := parts[idx:end]
		if len(group) == 1 {
			result = append(result, group[0])
		} else {
			result = append(result, problem.MergeParts(group))
		}
		idx = end
	}

	if idx < len(parts) {
		if len(parts)-idx > 1 {
			n.log.Warn("more than one leftover part after regrouping", "leftover", len(parts)-idx)
		}
		result = append(result, parts[idx:]...)
	}

	return result
}

// distributeParts sends each waiting child its assigned part in parallel.
// Zero-power children are skipped, matching mergePartsByChildStrength.
// A delivered part flips to Distributed and binds to the child; an
// undeliverable child is dropped and its part stays NotDistributed for the
// redistributor to reclaim.
func (n *Node) distributeParts(parts []problem.Part) {
	var waiting []string
	n.friendsMu.Lock()
	for _, f := range n.friends {
		if f.Role == RoleChildFriend && f.Work == ChildWaiting && f.Power > 0 {
			waiting = append(waiting, f.Address)
		}
	}
	n.friendsMu.Unlock()

	if len(waiting) == 0 || len(parts) == 0 {
		return
	}

	delivered := make([]bool, len(parts))
	var g errgroup.Group

	for i, addr := range waiting {
		if i >= len(parts) {
			break
		}
		part := parts[i]
		g.Go(func() error {
			msg := protocol.NewSolveProblem(n.address, addr, part.Start, part.End, part.Alphabet, part.Hash)
			if _, err := n.send(msg); err != nil {
				n.log.Warn("failed to deliver part, dropping child", "child", addr, "error", err)
				n.RemoveFriend(addr)
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, addr := range waiting {
		if i >= len(parts) || !delivered[i] {
			continue
		}
		parts[i].State = problem.Distributed
		n.SetFriendSolving(addr, parts[i])
	}
}

// PingFriend sends a one-off ping, adding the address as a friend first if
// needed; a missing or unexpected reply drops the friend again. This is the
// operator's `ping`.
func (n *Node) PingFriend(address string) error {
	if !n.IsFriend(address) {
		n.AddFriend(address)
	}

	reply, err := n.send(protocol.NewPing(n.address, address))
	if err != nil {
		n.RemoveFriend(address)
		return err
	}
	if reply.Kind != protocol.Ack {
		n.RemoveFriend(address)
		return errors.New("node: unexpected reply type " + reply.Kind.String())
	}
	return nil
}
