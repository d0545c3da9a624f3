package node

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// LeaderSnapshot is the replicated copy of a leader's role state and child
// roster that the backup child promotes from. Timestamps are nanoseconds;
// newer snapshots replace older ones, never the reverse.
type LeaderSnapshot struct {
	Timestamp uint64
	Solving   bool
	Parts     []problem.Part
	Children  []Friend
}

// Wire shape mirrors the tagged-union JSON of the friends table:
// leader_state is "WaitingForProblem" or {"Solving":{"parts":[...]}}.

type snapshotSolvingJSON struct {
	Parts []problem.Part `json:"parts"`
}

type snapshotJSON struct {
	Timestamp   uint64          `json:"timestamp"`
	LeaderState json.RawMessage `json:"leader_state"`
	Children    []Friend        `json:"children"`
}

// Encode serialises the snapshot. The output must stay free of '|' so it
// survives the pipe-delimited frame; JSON never emits one outside string
// values, and addresses, digests and alphabets do not contain it.
func (s *LeaderSnapshot) Encode() (string, error) {
	var leaderState any = "WaitingForProblem"
	if s.Solving {
		leaderState = map[string]snapshotSolvingJSON{
			"Solving": {Parts: s.Parts},
		}
	}
	rawState, err := json.Marshal(leaderState)
	if err != nil {
		return "", err
	}

	children := s.Children
	if children == nil {
		children = []Friend{}
	}
	out, err := json.Marshal(snapshotJSON{
		Timestamp:   s.Timestamp,
		LeaderState: rawState,
		Children:    children,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeSnapshot parses a snapshot received in a BACKUP_DATA frame.
func DecodeSnapshot(data string) (*LeaderSnapshot, error) {
	var raw snapshotJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("node: malformed snapshot: %w", err)
	}

	s := &LeaderSnapshot{Timestamp: raw.Timestamp, Children: raw.Children}

	var tag string
	if err := json.Unmarshal(raw.LeaderState, &tag); err == nil {
		if tag != "WaitingForProblem" {
			return nil, fmt.Errorf("node: unknown leader state %q", tag)
		}
		return s, nil
	}

	var solving struct {
		Solving *snapshotSolvingJSON `json:"Solving"`
	}
	if err := json.Unmarshal(raw.LeaderState, &solving); err != nil || solving.Solving == nil {
		return nil, fmt.Errorf("node: malformed leader state %s", raw.LeaderState)
	}
	s.Solving = true
	s.Parts = solving.Solving.Parts
	return s, nil
}

// ========== leader side ==========

// ensureBackupSelected marks the given child as backup when none exists
// yet. First reporter wins; at most one friend ever carries the flag.
func (n *Node) ensureBackupSelected(address string) {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()

	for _, f := range n.friends {
		if f.IsBackup {
			return
		}
	}
	for i := range n.friends {
		if n.friends[i].Address == address && n.friends[i].Role == RoleChildFriend {
			n.friends[i].IsBackup = true
			n.setHasBackup(true)
			n.log.Info("backup selected", "backup", address)
			return
		}
	}
}

// backupAddress returns the current backup's address, "" when none.
func (n *Node) backupAddress() string {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for _, f := range n.friends {
		if f.IsBackup {
			return f.Address
		}
	}
	return ""
}

// selectFirstChildAsBackup promotes the first remaining child friend to
// backup after the previous one was lost. Returns its address, "" when no
// child is left.
func (n *Node) selectFirstChildAsBackup() string {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	for i := range n.friends {
		if n.friends[i].Role == RoleChildFriend {
			n.friends[i].IsBackup = true
			n.setHasBackup(true)
			return n.friends[i].Address
		}
	}
	n.setHasBackup(false)
	return ""
}

func (n *Node) setHasBackup(v bool) {
	n.backupMu.Lock()
	defer n.backupMu.Unlock()
	n.hasBackup = v
}

func (n *Node) hasBackupFlag() bool {
	n.backupMu.Lock()
	defer n.backupMu.Unlock()
	return n.hasBackup
}

// buildSnapshot captures the leader's current role state and child roster.
func (n *Node) buildSnapshot() *LeaderSnapshot {
	n.stateMu.Lock()
	solving := n.state.leaderSolving
	parts := append([]problem.Part(nil), n.state.parts...)
	n.stateMu.Unlock()

	return &LeaderSnapshot{
		Timestamp: uint64(time.Now().UnixNano()),
		Solving:   solving,
		Parts:     parts,
		Children:  n.childFriends(),
	}
}

// sendBackupData replicates the leader's state to the backup child. When
// delivery fails the dead backup is dropped, the first remaining child
// takes over, and the send is retried against it.
func (n *Node) sendBackupData() {
	if !n.IsLeader() {
		return
	}

	for {
		backup := n.backupAddress()
		if backup == "" {
			// The backup flag may outlive the backup friend when a
			// watcher drops it; re-select before giving up.
			if !n.hasBackupFlag() {
				return
			}
			backup = n.selectFirstChildAsBackup()
			if backup == "" {
				return
			}
			n.log.Info("backup selected", "backup", backup)
		}

		data, err := n.buildSnapshot().Encode()
		if err != nil {
			n.log.Error("failed to encode snapshot", "error", err)
			return
		}

		if _, err := n.send(protocol.NewBackupData(n.address, backup, data)); err == nil {
			n.log.Debug("backup data sent", "backup", backup)
			return
		}

		n.log.Warn("failed to send backup data, selecting a new backup", "backup", backup)
		n.mutateFriend(backup, func(f *Friend) { f.IsBackup = false })
		n.RemoveFriend(backup)
		if next := n.selectFirstChildAsBackup(); next != "" {
			n.log.Info("backup selected", "backup", next)
		}
	}
}

// ========== child side ==========

// acceptSnapshot stores a received snapshot if it is fresher than the one
// already held. The first acceptance starts the backup watcher.
func (n *Node) acceptSnapshot(snapshot *LeaderSnapshot) {
	n.snapshotMu.Lock()
	defer n.snapshotMu.Unlock()

	if n.snapshot != nil && snapshot.Timestamp <= n.snapshot.Timestamp {
		n.log.Debug("ignoring stale snapshot",
			"have", n.snapshot.Timestamp, "got", snapshot.Timestamp)
		return
	}

	n.snapshot = snapshot
	n.log.Info("backup snapshot accepted", "timestamp", snapshot.Timestamp)

	if !n.backupWatching {
		n.backupWatching = true
		go n.runBackupWatcher()
	}
}

// hasSnapshot reports whether this child currently carries backup duty.
func (n *Node) hasSnapshot() bool {
	n.snapshotMu.Lock()
	defer n.snapshotMu.Unlock()
	return n.snapshot != nil
}

// takeSnapshot removes and returns the held snapshot, releasing the
// watcher slot for a future backup stint.
func (n *Node) takeSnapshot() *LeaderSnapshot {
	n.snapshotMu.Lock()
	defer n.snapshotMu.Unlock()
	s := n.snapshot
	n.snapshot = nil
	n.backupWatching = false
	return s
}

// runBackupWatcher pings the leader each interval while this child holds a
// snapshot, and promotes on the first missed reply. Started on the first
// snapshot acceptance; exits only through promotion.
func (n *Node) runBackupWatcher() {
	log := n.log.With("src", "backup-watcher")
	log.Info("backup duty assumed, monitoring leader")

	ticker := time.NewTicker(config.Load().BackupWatchInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !n.IsChild() || !n.hasSnapshot() {
			continue
		}

		leader := n.LeaderAddress()
		if _, err := n.send(protocol.NewPing(n.address, leader)); err == nil {
			continue
		}

		log.Warn("leader unresponsive, promoting self", "leader", leader)
		n.RemoveFriend(leader)
		n.promoteFromBackup()
		return
	}
}

// promoteFromBackup turns the backup child into the leader using the held
// snapshot: abort the local solver, adopt the snapshot's role state and
// roster, reset this node's own abandoned range, announce the takeover,
// and re-establish a backup. The watcher restarts when the snapshot was
// mid-solve; the redistributor intentionally does not.
func (n *Node) promoteFromBackup() {
	snapshot := n.takeSnapshot()
	if snapshot == nil {
		n.log.Warn("promotion without a snapshot, ignoring")
		return
	}

	n.stopFlag.Store(true)

	// The promotee's own in-flight range has no searcher anymore; it goes
	// back into the pool so the cover stays gapless.
	var myPart *problem.Part
	for _, child := range snapshot.Children {
		if child.Address != n.address {
			continue
		}
		if child.Work == ChildSolving && child.Part != nil {
			p := *child.Part
			p.State = problem.NotDistributed
			myPart = &p
		}
		break
	}

	n.stateMu.Lock()
	n.state = state{
		role:          Leader,
		leaderSolving: snapshot.Solving,
		parts:         append([]problem.Part(nil), snapshot.Parts...),
	}
	if snapshot.Solving && myPart != nil {
		problem.UpdateStateOfParts(&n.state.parts, *myPart)
	}
	solving := n.state.leaderSolving
	n.stateMu.Unlock()
	n.setHasBackup(false)

	n.adoptSnapshotChildren(snapshot.Children)

	responders := n.announceLeadership()
	if len(responders) > 0 {
		first := responders[0]
		n.mutateFriend(first, func(f *Friend) { f.IsBackup = true })
		n.setHasBackup(true)
		n.log.Info("backup selected", "backup", first)
		n.sendBackupData()
	}

	n.log.Info("promoted to leader from backup", "solving", solving)
	if solving {
		go n.runWatcher()
	}
}

// adoptSnapshotChildren merges the snapshot's roster into the friends
// table, skipping this node and clearing backup flags. Roles are adopted
// verbatim so previously-solving children keep their part association.
func (n *Node) adoptSnapshotChildren(children []Friend) {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()

	for _, child := range children {
		if child.Address == n.address {
			continue
		}
		child.IsBackup = false

		replaced := false
		for i := range n.friends {
			if n.friends[i].Address == child.Address {
				n.friends[i] = child
				replaced = true
				break
			}
		}
		if !replaced {
			n.friends = append(n.friends, child)
		}
	}
}

// announceLeadership tells every child about the takeover in parallel and
// returns the ones that acknowledged, in roster order. Non-responders are
// removed.
func (n *Node) announceLeadership() []string {
	children := n.childAddresses()
	acked := make([]bool, len(children))

	var g errgroup.Group
	for i, addr := range children {
		g.Go(func() error {
			reply, err := n.send(protocol.NewIAmANewLeader(n.address, addr))
			if err == nil && reply.Kind == protocol.Ack {
				acked[i] = true
				return nil
			}
			n.log.Warn("child did not acknowledge new leader, dropping", "child", addr)
			n.RemoveFriend(addr)
			return nil
		})
	}
	_ = g.Wait()

	var responders []string
	for i, addr := range children {
		if acked[i] {
			responders = append(responders, addr)
		}
	}
	return responders
}
