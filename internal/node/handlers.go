package node

import (
	"context"
	"fmt"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
	"github.com/mvolf/hashswarm/pkg/retry"
)

// handleMessage routes one decoded inbound message. Every handler is
// idempotent: duplicates and stale deliveries log and fall through without
// corrupting state. The dispatcher ACKs regardless of what happens here.
func (n *Node) handleMessage(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.Ping:
		// Nothing to do; the dispatcher's ACK is the answer.
	case protocol.Ack:
		n.log.Warn("received ACK as a fresh connection, ignoring", "from", msg.From)
	case protocol.CalculatePower:
		n.handleCalculatePower(msg)
	case protocol.CalculatePowerResult:
		n.handleCalculatePowerResult(msg)
	case protocol.SolveProblem:
		n.handleSolveProblem(msg)
	case protocol.SolutionFound:
		n.handleSolutionFound(msg)
	case protocol.SolutionNotFound:
		n.handleSolutionNotFound(msg)
	case protocol.StopSolving:
		n.handleStopSolving()
	case protocol.BackupData:
		n.handleBackupData(msg)
	case protocol.IAmANewLeader:
		n.handleIAmANewLeader(msg)
	}
}

// handleCalculatePower recruits an idle node into a leader's working set
// and floods the recruitment one hop further.
func (n *Node) handleCalculatePower(msg *protocol.Message) {
	if !n.IsIdle() {
		n.log.Info("not idle, ignoring CalculatePower", "from", msg.From)
		return
	}

	leaderAddress := msg.LeaderAddress
	n.TransitionToChild(leaderAddress)

	// One-hop gossip flood; recipients that already left Idle ignore it.
	n.sendCalculatePowerToFriends(leaderAddress)

	if !n.IsFriend(leaderAddress) {
		n.AddFriend(leaderAddress)
	}
	n.mutateFriend(leaderAddress, func(f *Friend) { f.SetAsLeader() })

	go func() {
		result := protocol.NewCalculatePowerResult(n.address, leaderAddress, n.power)
		if _, err := n.send(result); err != nil {
			n.log.Warn("failed to report power to leader", "leader", leaderAddress, "error", err)
		}
	}()
}

// handleCalculatePowerResult records a recruit's measured power. The first
// child to report becomes the backup.
func (n *Node) handleCalculatePowerResult(msg *protocol.Message) {
	if !n.IsLeader() {
		n.log.Warn("received CalculatePowerResult but not a leader, ignoring", "from", msg.From)
		return
	}

	if !n.TransitionFriendToChild(msg.From, msg.Power) {
		n.log.Warn("power result from unknown friend", "from", msg.From)
		return
	}
	n.log.Info("child recruited", "child", msg.From, "power", msg.Power)

	n.ensureBackupSelected(msg.From)
	n.sendBackupData()
}

// handleSolveProblem starts the local searcher on the assigned range.
func (n *Node) handleSolveProblem(msg *protocol.Message) {
	if !n.IsChildConnected() {
		n.log.Warn("not a connected child, ignoring SolveProblem", "from", msg.From)
		return
	}

	part := problem.Part{
		Start:    msg.Start,
		End:      msg.End,
		Alphabet: msg.Alphabet,
		Hash:     msg.Hash,
		State:    problem.Distributed,
	}

	n.stopFlag.Store(false)
	n.TransitionChildToSolving()
	n.log.Info("starting to solve", "start", part.Start, "end", part.End)

	go n.runSearch(part)
}

// runSearch drives the searcher and reports the outcome to the leader.
// A stop-flag abort reports nothing; StopSolving already moved the state.
func (n *Node) runSearch(part problem.Part) {
	solution, found := n.searcher.Search(part, &n.stopFlag)

	switch {
	case found:
		n.log.Info("solution found", "solution", solution)
		n.sendResultUntilAcked(func(to string) *protocol.Message {
			return protocol.NewSolutionFound(n.address, to, solution)
		})
	case n.stopFlag.Load():
		n.log.Info("search stopped", "start", part.Start, "end", part.End)
		return
	default:
		n.log.Info("range exhausted, no solution", "start", part.Start, "end", part.End)
		n.sendResultUntilAcked(func(to string) *protocol.Message {
			return protocol.NewSolutionNotFound(n.address, to)
		})
	}

	n.TransitionChildToConnected()
}

// sendResultUntilAcked re-sends a solver result every retry interval until
// any reply arrives. The recipient is re-read each attempt so a result
// survives a leader failover and flows to the promoted backup.
func (n *Node) sendResultUntilAcked(build func(to string) *protocol.Message) {
	interval := config.Load().ResultRetryInterval

	err := retry.Do(context.Background(), func(context.Context) error {
		if !n.IsChild() {
			return retry.Abort(fmt.Errorf("no longer a child"))
		}
		_, err := n.send(build(n.LeaderAddress()))
		return err
	}, retry.WithDelay(interval), retry.WithUnlimitedAttempts())
	if err != nil {
		n.log.Warn("gave up delivering solver result", "error", err)
	}
}

// handleSolutionFound ends the round: print the preimage, return to
// WaitingForProblem, and wave every child off its range.
func (n *Node) handleSolutionFound(msg *protocol.Message) {
	if !n.IsLeader() {
		n.log.Warn("received SolutionFound but not a leader, ignoring", "from", msg.From)
		return
	}

	fmt.Println("----- SOLUTION -----")
	fmt.Printf("Solution: %s (found by %s)\n", msg.Solution, msg.From)
	fmt.Println("--------------------")

	n.stopRound()
}

// stopRound transitions the leader back to WaitingForProblem and
// fire-and-forgets StopSolving to every child.
func (n *Node) stopRound() {
	n.TransitionLeaderToWaiting()
	n.setAllChildrenWaiting()

	for _, addr := range n.childAddresses() {
		go func(to string) {
			n.log.Info("sending StopSolving", "child", to)
			if _, err := n.send(protocol.NewStopSolving(n.address, to)); err != nil {
				n.log.Debug("StopSolving not delivered", "child", to, "error", err)
			}
		}(addr)
	}
}

// handleSolutionNotFound folds a child's exhausted range back into the
// map. Stale reports (friend gone, or no longer solving) are no-ops.
func (n *Node) handleSolutionNotFound(msg *protocol.Message) {
	if !n.IsLeader() {
		n.log.Warn("received SolutionNotFound but not a leader, ignoring", "from", msg.From)
		return
	}

	var taken *problem.Part
	n.mutateFriend(msg.From, func(f *Friend) {
		taken = f.TakeSolvingPart()
	})
	if taken == nil {
		n.log.Warn("SolutionNotFound without a matching in-flight part", "from", msg.From)
		return
	}

	// friends lock released above; now touch state.
	taken.State = problem.SearchedAndNotFound
	n.overlayPart(*taken)
	n.log.Info("range searched and not found", "child", msg.From,
		"start", taken.Start, "end", taken.End)

	n.sendBackupData()
}

// handleStopSolving aborts the local search, if one is running.
func (n *Node) handleStopSolving() {
	switch {
	case n.IsChildConnected():
		n.log.Info("StopSolving while already waiting, ignoring")
	case n.IsChildSolving():
		n.log.Info("stopping search on leader's request")
		n.stopFlag.Store(true)
		n.TransitionChildToConnected()
	default:
		n.log.Warn("StopSolving but not a child, ignoring")
	}
}

// handleBackupData stores the leader's replicated snapshot.
func (n *Node) handleBackupData(msg *protocol.Message) {
	if !n.IsChild() {
		n.log.Warn("received BackupData but not a child, ignoring", "from", msg.From)
		return
	}

	snapshot, err := DecodeSnapshot(msg.Data)
	if err != nil {
		n.log.Warn("failed to decode backup snapshot", "error", err)
		return
	}
	n.acceptSnapshot(snapshot)
}

// handleIAmANewLeader repoints this child at the promoted backup.
func (n *Node) handleIAmANewLeader(msg *protocol.Message) {
	if !n.IsChild() {
		n.log.Warn("received IAmANewLeader but not a child, ignoring", "from", msg.From)
		return
	}

	n.log.Info("leader changed", "leader", msg.From)
	n.SetLeaderAddress(msg.From)
	n.mutateFriend(msg.From, func(f *Friend) { f.SetAsLeader() })
}
