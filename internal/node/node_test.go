package node

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shaOfA = "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"

// fakeSearcher resolves instantly: it "finds" the configured solution when
// the assigned range contains it, otherwise reports exhaustion.
type fakeSearcher struct {
	solution string
}

func (s *fakeSearcher) Search(part problem.Part, stop *atomic.Bool) (string, bool) {
	if stop.Load() {
		return "", false
	}
	idx := problem.StrToIndex(s.solution, part.Alphabet)
	if idx >= problem.StrToIndex(part.Start, part.Alphabet) &&
		idx <= problem.StrToIndex(part.End, part.Alphabet) {
		return s.solution, true
	}
	return "", false
}

func newTestNode(t *testing.T, address string, friends ...string) *Node {
	t.Helper()
	return New(Options{
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Address:  address,
		Friends:  friends,
		Power:    2,
		Searcher: &fakeSearcher{solution: "a"},
	})
}

func TestTransitions(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")

	assert.True(t, n.IsIdle())
	assert.True(t, n.TransitionToLeader())
	assert.True(t, n.IsLeaderWaiting())

	assert.False(t, n.TransitionToLeader(), "leader cannot become leader again")
	assert.False(t, n.TransitionToChild("x:1"), "leader cannot become child")

	assert.True(t, n.TransitionLeaderToSolving())
	assert.True(t, n.IsLeaderSolving())
	assert.False(t, n.TransitionLeaderToSolving())

	assert.True(t, n.TransitionLeaderToWaiting())
	assert.True(t, n.IsLeaderWaiting())
}

func TestChildTransitions(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")

	assert.True(t, n.TransitionToChild("127.0.0.1:9000"))
	assert.True(t, n.IsChildConnected())
	assert.Equal(t, "127.0.0.1:9000", n.LeaderAddress())

	assert.True(t, n.TransitionChildToSolving())
	assert.True(t, n.IsChildSolving())
	assert.False(t, n.TransitionChildToSolving())

	assert.True(t, n.TransitionChildToConnected())
	assert.True(t, n.IsChildConnected())
}

func TestFriendTableOps(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "127.0.0.1:9002")

	assert.True(t, n.IsFriend("127.0.0.1:9002"))
	assert.False(t, n.IsFriend("127.0.0.1:9003"))

	n.AddFriend("127.0.0.1:9003")
	n.AddFriend("127.0.0.1:9003") // duplicate is ignored
	assert.Len(t, n.Friends(), 2)

	n.RemoveFriend("127.0.0.1:9002")
	assert.False(t, n.IsFriend("127.0.0.1:9002"))
	assert.Len(t, n.Friends(), 1)
}

func TestTransitionFriendToChildOverwritesPower(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "127.0.0.1:9002")

	require.True(t, n.TransitionFriendToChild("127.0.0.1:9002", 4))
	require.True(t, n.TransitionFriendToChild("127.0.0.1:9002", 9), "stale power result simply overwrites")

	friends := n.Friends()
	require.Len(t, friends, 1)
	assert.Equal(t, uint32(9), friends[0].Power)

	assert.False(t, n.TransitionFriendToChild("unknown:1", 3))
}

func TestBackupSelectionIsUnique(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003")
	n.TransitionToLeader()
	n.TransitionFriendToChild("127.0.0.1:9002", 3)
	n.TransitionFriendToChild("127.0.0.1:9003", 5)

	n.ensureBackupSelected("127.0.0.1:9002")
	n.ensureBackupSelected("127.0.0.1:9003") // second selection is a no-op

	backups := 0
	for _, f := range n.Friends() {
		if f.IsBackup {
			backups++
			assert.Equal(t, "127.0.0.1:9002", f.Address)
		}
	}
	assert.Equal(t, 1, backups)
}

func TestSelectFirstChildAsBackupSkipsSiblings(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003")
	n.TransitionToLeader()
	n.TransitionFriendToChild("127.0.0.1:9003", 5)

	assert.Equal(t, "127.0.0.1:9003", n.selectFirstChildAsBackup())
}

func TestMergePartsByChildStrength(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "c1:1", "c2:2")
	n.TransitionToLeader()
	n.TransitionFriendToChild("c1:1", 2)
	n.TransitionFriendToChild("c2:2", 1)

	prob := problem.New("ab", "a", "bb", shaOfA)
	parts := prob.DivideIntoNAndKeepPercentage(3, 25)
	require.Len(t, parts, 4) // three even parts plus the retained share

	grouped := n.mergePartsByChildStrength(parts)

	// c1 (power 2) takes the first two parts merged, c2 (power 1) the
	// third, and the retained share trails.
	require.Len(t, grouped, 3)
	assert.Equal(t, "aa", grouped[0].Start)
	assert.Equal(t, "ab", grouped[0].End)
	assert.Equal(t, "ba", grouped[1].Start)
	assert.Equal(t, "ba", grouped[1].End)
	assert.Equal(t, "bb", grouped[2].Start)
}

func TestMergePartsByChildStrengthSkipsZeroPower(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "c1:1", "c2:2")
	n.TransitionToLeader()
	n.TransitionFriendToChild("c1:1", 0)
	n.TransitionFriendToChild("c2:2", 2)

	prob := problem.New("ab", "a", "bb", shaOfA)
	parts := prob.DivideIntoNAndKeepPercentage(2, 25)
	require.Len(t, parts, 3)

	grouped := n.mergePartsByChildStrength(parts)

	// The zero-power child consumes nothing; c2 takes both leading parts.
	require.Len(t, grouped, 2)
	assert.Equal(t, "aa", grouped[0].Start)
	assert.Equal(t, "ba", grouped[0].End)
}

func TestHandleSolutionNotFoundReclaimsPart(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "c1:1")
	n.TransitionToLeader()
	n.TransitionFriendToChild("c1:1", 2)
	n.TransitionLeaderToSolving()

	part := problem.Part{Start: "aa", End: "bb", Alphabet: "ab", Hash: shaOfA, State: problem.Distributed}
	n.SetParts([]problem.Part{part})
	n.SetFriendSolving("c1:1", part)

	msg := protocol.NewSolutionNotFound("c1:1", n.Address())
	n.handleMessage(msg)

	parts := n.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, problem.SearchedAndNotFound, parts[0].State)

	friends := n.Friends()
	require.Len(t, friends, 1)
	assert.Equal(t, ChildWaiting, friends[0].Work)

	// A duplicate delivery no longer matches an in-flight part: no-op.
	n.handleMessage(msg)
	assert.Len(t, n.Parts(), 1)
}

func TestHandleStopSolvingSetsFlagAndTransitions(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")
	n.TransitionToChild("l:1")
	n.TransitionChildToSolving()

	n.handleMessage(protocol.NewStopSolving("l:1", n.Address()))

	assert.True(t, n.IsChildConnected())
	assert.True(t, n.stopFlag.Load())
}

func TestHandleStopSolvingWhileConnectedIsNoop(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")
	n.TransitionToChild("l:1")

	n.handleMessage(protocol.NewStopSolving("l:1", n.Address()))

	assert.True(t, n.IsChildConnected())
	assert.False(t, n.stopFlag.Load())
}

func TestTakeLargestUnsearched(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")
	n.TransitionToLeader()
	n.TransitionLeaderToSolving()
	n.SetParts([]problem.Part{
		{Start: "aaa", End: "aac", Alphabet: "abc", Hash: shaOfA, State: problem.Distributed},
		{Start: "aba", End: "acc", Alphabet: "abc", Hash: shaOfA, State: problem.NotDistributed}, // 6 combos
		{Start: "baa", End: "bab", Alphabet: "abc", Hash: shaOfA, State: problem.NotDistributed}, // 2 combos
	})

	head, ok := n.takeLargestUnsearched(4)
	require.True(t, ok)
	assert.Equal(t, "aba", head.Start)
	assert.Equal(t, problem.Distributed, head.State)
	assert.Equal(t, 4, head.TotalCombinations())

	// The map still covers everything: head, its tail, and the others.
	total := 0
	for _, p := range n.Parts() {
		total += p.TotalCombinations()
	}
	assert.Equal(t, 3+6+2, total)
}

func TestTakeLargestUnsearchedNoneAvailable(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")
	n.TransitionToLeader()
	n.TransitionLeaderToSolving()
	n.SetParts([]problem.Part{
		{Start: "aa", End: "bb", Alphabet: "ab", Hash: shaOfA, State: problem.Distributed},
	})

	_, ok := n.takeLargestUnsearched(10)
	assert.False(t, ok)
}

func TestAllPartsSearched(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001")
	n.TransitionToLeader()
	n.TransitionLeaderToSolving()

	assert.False(t, n.allPartsSearched(), "empty parts never count as exhausted")

	n.SetParts([]problem.Part{
		{Start: "aa", End: "ab", Alphabet: "ab", Hash: shaOfA, State: problem.SearchedAndNotFound},
		{Start: "ba", End: "bb", Alphabet: "ab", Hash: shaOfA, State: problem.Distributed},
	})
	assert.False(t, n.allPartsSearched())

	n.SetParts([]problem.Part{
		{Start: "aa", End: "bb", Alphabet: "ab", Hash: shaOfA, State: problem.SearchedAndNotFound},
	})
	assert.True(t, n.allPartsSearched())
}

func TestSendGuards(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:9001", "127.0.0.1:9002")

	_, err := n.send(protocol.NewPing(n.Address(), n.Address()))
	assert.ErrorIs(t, err, errSendToSelf)

	_, err = n.send(protocol.NewPing(n.Address(), "127.0.0.1:9999"))
	assert.ErrorIs(t, err, errNotAFriend)

	n.ToggleCommunicating()
	_, err = n.send(protocol.NewPing(n.Address(), "127.0.0.1:9002"))
	assert.ErrorIs(t, err, errNotCommunicating)
}
