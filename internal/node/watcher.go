package node

import (
	"time"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
)

// runWatcher pings every solving child each interval while the leader is
// solving. An unresponsive child is dropped and its range reclaimed for
// redistribution. The loop re-reads role state each tick and exits on its
// own when the round ends.
func (n *Node) runWatcher() {
	log := n.log.With("src", "watcher")
	log.Info("started monitoring children")

	ticker := time.NewTicker(config.Load().WatchInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !n.IsLeaderSolving() {
			log.Info("leader no longer solving, stopping")
			return
		}

		solving := n.solvingChildAddresses()
		if len(solving) == 0 {
			continue
		}
		log.Debug("checking solving children", "count", len(solving))

		for _, addr := range solving {
			if _, err := n.send(protocol.NewPing(n.address, addr)); err == nil {
				continue
			}

			log.Warn("child unresponsive, reclaiming its range", "child", addr)
			n.reclaimChildPart(addr)
			n.RemoveFriend(addr)
			n.sendBackupData()
		}
	}
}

// solvingChildAddresses snapshots the addresses of children mid-search.
func (n *Node) solvingChildAddresses() []string {
	n.friendsMu.Lock()
	defer n.friendsMu.Unlock()
	var addrs []string
	for _, f := range n.friends {
		if f.Role == RoleChildFriend && f.Work == ChildSolving {
			addrs = append(addrs, f.Address)
		}
	}
	return addrs
}

// reclaimChildPart takes the part a child was solving and folds it back
// into the map as NotDistributed. The friends lock is released before the
// state lock is taken.
func (n *Node) reclaimChildPart(address string) {
	var taken *problem.Part
	n.mutateFriend(address, func(f *Friend) {
		taken = f.TakeSolvingPart()
	})
	if taken == nil {
		return
	}

	taken.State = problem.NotDistributed
	n.overlayPart(*taken)
	n.log.Info("range back in the pool", "start", taken.Start, "end", taken.End)
}
