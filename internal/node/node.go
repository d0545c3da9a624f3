// Package node implements the peer control plane: the role state machine,
// the friends table, message dispatch, work partitioning and distribution,
// the liveness watchers, and leader failover via a replicated snapshot.
//
// Locking discipline: friendsMu and stateMu are never held across network
// I/O or together. Handlers copy what they need under one lock, release it,
// do the work, then re-acquire to commit.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
	"github.com/mvolf/hashswarm/internal/transport"
)

var (
	errNotCommunicating = errors.New("node: communication is paused")
	errSendToSelf       = errors.New("node: refusing to send to self")
	errNotAFriend       = errors.New("node: recipient is not a friend")
)

// Node is one peer process. All fields are per-instance; a peer owns its
// friends table and state outright.
type Node struct {
	log      *slog.Logger
	address  string
	power    uint32
	searcher problem.Searcher

	friendsMu sync.Mutex
	friends   []Friend

	stateMu sync.Mutex
	state   state

	commMu        sync.Mutex
	communicating bool

	// stopFlag aborts the local solver; checked every enumeration step.
	stopFlag atomic.Bool

	// hasBackup is meaningful only while Leader.
	backupMu  sync.Mutex
	hasBackup bool

	// snapshot is meaningful only while Child; guarded separately so
	// backup acceptance never contends with the state machine.
	snapshotMu     sync.Mutex
	snapshot       *LeaderSnapshot
	backupWatching bool
}

// Options configures a new node.
type Options struct {
	Log      *slog.Logger
	Address  string
	Friends  []string
	Power    uint32
	Searcher problem.Searcher
}

func New(opts Options) *Node {
	n := &Node{
		log:           opts.Log.With("src", "node", "addr", opts.Address),
		address:       opts.Address,
		power:         opts.Power,
		searcher:      opts.Searcher,
		communicating: true,
	}
	for _, addr := range opts.Friends {
		n.friends = append(n.friends, NewFriend(addr))
	}
	return n
}

func (n *Node) Address() string { return n.address }
func (n *Node) Power() uint32   { return n.power }

// ========== communicating flag ==========

func (n *Node) IsCommunicating() bool {
	n.commMu.Lock()
	defer n.commMu.Unlock()
	return n.communicating
}

// ToggleCommunicating flips the pause flag and returns the new value.
func (n *Node) ToggleCommunicating() bool {
	n.commMu.Lock()
	defer n.commMu.Unlock()
	n.communicating = !n.communicating
	return n.communicating
}

// ========== friends table ==========

func (n *Node) IsFriend(address string) bool {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for _, f := range n.friends {
		if f.Address == address {
			return true
		}
	}
	return false
}

// AddFriend registers a new Sibling; duplicates are logged and ignored.
func (n *Node) AddFriend(address string) {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for _, f := range n.friends {
		if f.Address == address {
			n.log.Debug("friend already known", "friend", address)
			return
		}
	}
	n.friends = append(n.friends, NewFriend(address))
}

func (n *Node) RemoveFriend(address string) {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	kept := n.friends[:0]
	for _, f := range n.friends {
		if f.Address != address {
			kept = append(kept, f)
		}
	}
	n.friends = kept
}

// Friends returns a copy of the table.
func (n *Node) Friends() []Friend {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	return append([]Friend(nil), n.friends...)
}

// FriendAddresses returns every known address.
func (n *Node) FriendAddresses() []string {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	addrs := make([]string, 0, len(n.friends))
	for _, f := range n.friends {
		addrs = append(addrs, f.Address)
	}
	return addrs
}

// mutateFriend runs fn on the friend with the given address under the
// friends lock. Returns false when the friend is unknown.
func (n *Node) mutateFriend(address string, fn func(*Friend)) bool {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for i := range n.friends {
		if n.friends[i].Address == address {
			fn(&n.friends[i])
			return true
		}
	}
	return false
}

// TransitionFriendToChild records a peer's reported power; the friend
// becomes a waiting child.
func (n *Node) TransitionFriendToChild(address string, power uint32) bool {
	return n.mutateFriend(address, func(f *Friend) {
		f.TransitionToChild(power)
	})
}

// SetFriendSolving marks a child friend as searching the given part.
func (n *Node) SetFriendSolving(address string, part problem.Part) {
	found := false
	n.mutateFriend(address, func(f *Friend) {
		found = f.SetSolving(part)
	})
	if !found {
		n.log.Warn("cannot mark friend solving", "friend", address)
	}
}

// childAddresses returns the addresses of all Child-typed friends.
func (n *Node) childAddresses() []string {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	var addrs []string
	for _, f := range n.friends {
		if f.Role == RoleChildFriend {
			addrs = append(addrs, f.Address)
		}
	}
	return addrs
}

// childFriends returns copies of all Child-typed friends.
func (n *Node) childFriends() []Friend {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	var children []Friend
	for _, f := range n.friends {
		if f.Role == RoleChildFriend {
			children = append(children, f)
		}
	}
	return children
}

// totalChildPower sums the measured power of all child friends.
func (n *Node) totalChildPower() uint32 {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	var total uint32
	for _, f := range n.friends {
		if f.Role == RoleChildFriend {
			total += f.Power
		}
	}
	return total
}

// setAllChildrenWaiting flips every child friend back to waiting, dropping
// any part association.
func (n *Node) setAllChildrenWaiting() {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for i := range n.friends {
		if n.friends[i].Role == RoleChildFriend {
			n.friends[i].Work = ChildWaiting
			n.friends[i].Part = nil
		}
	}
}

// ========== role state ==========

func (n *Node) IsIdle() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Idle
}

func (n *Node) IsLeader() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Leader
}

func (n *Node) IsLeaderWaiting() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Leader && !n.state.leaderSolving
}

func (n *Node) IsLeaderSolving() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Leader && n.state.leaderSolving
}

func (n *Node) IsChild() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Child
}

func (n *Node) IsChildConnected() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Child && !n.state.childSolving
}

func (n *Node) IsChildSolving() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.role == Child && n.state.childSolving
}

// LeaderAddress returns the child's current leader, "" otherwise.
func (n *Node) LeaderAddress() string {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Child {
		return ""
	}
	return n.state.leaderAddress
}

// SetLeaderAddress repoints a child at a new leader (failover).
func (n *Node) SetLeaderAddress(address string) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Child {
		n.log.Warn("ignoring new leader announcement, not a child", "leader", address)
		return
	}
	n.state.leaderAddress = address
}

// TransitionToLeader moves Idle → Leader{WaitingForProblem}.
func (n *Node) TransitionToLeader() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Idle {
		n.log.Warn("illegal transition to leader", "state", n.state.String())
		return false
	}
	n.state = state{role: Leader}
	return true
}

// TransitionToChild moves Idle → Child{Connected}.
func (n *Node) TransitionToChild(leaderAddress string) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Idle {
		n.log.Warn("illegal transition to child", "state", n.state.String())
		return false
	}
	n.state = state{role: Child, leaderAddress: leaderAddress}
	return true
}

// TransitionChildToSolving moves Child{Connected} → Child{Solving}.
func (n *Node) TransitionChildToSolving() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Child || n.state.childSolving {
		n.log.Warn("illegal transition to child solving", "state", n.state.String())
		return false
	}
	n.state.childSolving = true
	return true
}

// TransitionChildToConnected moves Child{Solving} → Child{Connected}.
func (n *Node) TransitionChildToConnected() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Child {
		n.log.Warn("illegal transition to child connected", "state", n.state.String())
		return false
	}
	n.state.childSolving = false
	return true
}

// TransitionLeaderToSolving moves Leader{WaitingForProblem} →
// Leader{Solving} with an empty parts list; SetParts fills it in once
// distribution settles.
func (n *Node) TransitionLeaderToSolving() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Leader || n.state.leaderSolving {
		n.log.Warn("illegal transition to leader solving", "state", n.state.String())
		return false
	}
	n.state.leaderSolving = true
	n.state.parts = nil
	return true
}

// TransitionLeaderToWaiting moves Leader{Solving} →
// Leader{WaitingForProblem}, dropping the parts.
func (n *Node) TransitionLeaderToWaiting() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Leader {
		n.log.Warn("illegal transition to leader waiting", "state", n.state.String())
		return false
	}
	n.state.leaderSolving = false
	n.state.parts = nil
	return true
}

// Parts returns a copy of the leader's current parts.
func (n *Node) Parts() []problem.Part {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return append([]problem.Part(nil), n.state.parts...)
}

// SetParts replaces the leader's parts wholesale.
func (n *Node) SetParts(parts []problem.Part) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Leader || !n.state.leaderSolving {
		n.log.Warn("cannot set parts", "state", n.state.String())
		return
	}
	n.state.parts = parts
}

// overlayPart applies one part update onto the leader's parts.
func (n *Node) overlayPart(updated problem.Part) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state.role != Leader || !n.state.leaderSolving {
		return
	}
	problem.UpdateStateOfParts(&n.state.parts, updated)
}

// markPartState finds the part with the given bounds and sets its state.
func (n *Node) markPartState(start, end string, st problem.PartState) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	for i := range n.state.parts {
		if n.state.parts[i].Start == start && n.state.parts[i].End == end {
			n.state.parts[i].State = st
			return
		}
	}
}

// ========== sending ==========

// send pushes one message through the transport after the three guards:
// communication not paused, recipient is not us, recipient is a friend.
func (n *Node) send(msg *protocol.Message) (*protocol.Message, error) {
	if !n.IsCommunicating() {
		return nil, errNotCommunicating
	}
	if msg.To == n.address {
		return nil, errSendToSelf
	}
	if !n.IsFriend(msg.To) {
		return nil, fmt.Errorf("%w: %s", errNotAFriend, msg.To)
	}
	return transport.Exchange(msg)
}

// ========== info ==========

// Info renders the operator-facing state dump as one block.
func (n *Node) Info() string {
	var b strings.Builder
	b.WriteString("=== Node Information ===\n")
	fmt.Fprintf(&b, "Address: %s\n", n.address)
	fmt.Fprintf(&b, "Power: %d k-hashes/s\n", n.power)

	n.stateMu.Lock()
	fmt.Fprintf(&b, "State: %s\n", n.state)
	n.stateMu.Unlock()

	fmt.Fprintf(&b, "Communicating: %t\n", n.IsCommunicating())
	b.WriteString("Friends:\n")
	for _, f := range n.Friends() {
		fmt.Fprintf(&b, " - %s\n", f)
	}
	b.WriteString("========================")
	return b.String()
}
