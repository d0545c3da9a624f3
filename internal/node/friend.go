package node

import (
	"encoding/json"
	"fmt"

	"github.com/mvolf/hashswarm/internal/problem"
)

// FriendRole discriminates what a known peer is to this node. Only a leader
// holds Child-typed friends; only a child holds a Leader-typed friend;
// everyone else is a Sibling.
type FriendRole uint8

const (
	RoleSibling FriendRole = iota
	RoleLeaderFriend
	RoleChildFriend
)

// ChildWork is the leader's view of what one child is doing.
type ChildWork uint8

const (
	ChildWaiting ChildWork = iota
	ChildSolving
)

// Friend is one entry in the friends table. Power, Work and Part are
// meaningful only while Role is RoleChildFriend.
type Friend struct {
	Address  string
	Role     FriendRole
	Power    uint32
	Work     ChildWork
	Part     *problem.Part
	IsBackup bool
}

// NewFriend returns a fresh Sibling entry for an address.
func NewFriend(address string) Friend {
	return Friend{Address: address, Role: RoleSibling}
}

func (f *Friend) TransitionToChild(power uint32) {
	f.Role = RoleChildFriend
	f.Power = power
	f.Work = ChildWaiting
	f.Part = nil
}

func (f *Friend) SetAsLeader() {
	f.Role = RoleLeaderFriend
	f.Power = 0
	f.Work = ChildWaiting
	f.Part = nil
}

// SetSolving records the part a child is now searching.
func (f *Friend) SetSolving(part problem.Part) bool {
	if f.Role != RoleChildFriend {
		return false
	}
	f.Work = ChildSolving
	p := part
	f.Part = &p
	return true
}

// TakeSolvingPart returns the child's in-flight part and flips it back to
// waiting. Returns nil when the friend is not a solving child.
func (f *Friend) TakeSolvingPart() *problem.Part {
	if f.Role != RoleChildFriend || f.Work != ChildSolving || f.Part == nil {
		return nil
	}
	part := *f.Part
	f.Work = ChildWaiting
	f.Part = nil
	return &part
}

func (f Friend) String() string {
	switch f.Role {
	case RoleLeaderFriend:
		return fmt.Sprintf("%s (leader)", f.Address)
	case RoleChildFriend:
		s := fmt.Sprintf("%s (child, power %d", f.Address, f.Power)
		if f.Work == ChildSolving && f.Part != nil {
			s += fmt.Sprintf(", solving [%s - %s]", f.Part.Start, f.Part.End)
		} else {
			s += ", waiting"
		}
		if f.IsBackup {
			s += ", backup"
		}
		return s + ")"
	default:
		return fmt.Sprintf("%s (sibling)", f.Address)
	}
}

// The snapshot JSON uses externally-tagged unions: friend_type is either
// the bare string "Sibling"/"Leader" or {"Child":{"power":..,"state":..}},
// and a child's state is "WaitingForProblemParts" or {"Solving":{"part":..}}.

type childSolvingJSON struct {
	Part problem.Part `json:"part"`
}

type childJSON struct {
	Power uint32          `json:"power"`
	State json.RawMessage `json:"state"`
}

type friendJSON struct {
	Address    string          `json:"address"`
	FriendType json.RawMessage `json:"friend_type"`
	IsBackup   bool            `json:"is_backup"`
}

func (f Friend) MarshalJSON() ([]byte, error) {
	var friendType any

	switch f.Role {
	case RoleSibling:
		friendType = "Sibling"
	case RoleLeaderFriend:
		friendType = "Leader"
	case RoleChildFriend:
		var state any = "WaitingForProblemParts"
		if f.Work == ChildSolving && f.Part != nil {
			state = map[string]childSolvingJSON{"Solving": {Part: *f.Part}}
		}
		friendType = map[string]any{
			"Child": map[string]any{"power": f.Power, "state": state},
		}
	}

	rawType, err := json.Marshal(friendType)
	if err != nil {
		return nil, err
	}
	return json.Marshal(friendJSON{
		Address:    f.Address,
		FriendType: rawType,
		IsBackup:   f.IsBackup,
	})
}

func (f *Friend) UnmarshalJSON(data []byte) error {
	var raw friendJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = Friend{Address: raw.Address, IsBackup: raw.IsBackup}

	var tag string
	if err := json.Unmarshal(raw.FriendType, &tag); err == nil {
		switch tag {
		case "Sibling":
			f.Role = RoleSibling
			return nil
		case "Leader":
			f.Role = RoleLeaderFriend
			return nil
		default:
			return fmt.Errorf("node: unknown friend_type %q", tag)
		}
	}

	var tagged struct {
		Child *childJSON `json:"Child"`
	}
	if err := json.Unmarshal(raw.FriendType, &tagged); err != nil || tagged.Child == nil {
		return fmt.Errorf("node: malformed friend_type %s", raw.FriendType)
	}

	f.Role = RoleChildFriend
	f.Power = tagged.Child.Power

	var stateTag string
	if err := json.Unmarshal(tagged.Child.State, &stateTag); err == nil {
		if stateTag != "WaitingForProblemParts" {
			return fmt.Errorf("node: unknown child state %q", stateTag)
		}
		f.Work = ChildWaiting
		return nil
	}

	var solving struct {
		Solving *childSolvingJSON `json:"Solving"`
	}
	if err := json.Unmarshal(tagged.Child.State, &solving); err != nil || solving.Solving == nil {
		return fmt.Errorf("node: malformed child state %s", tagged.Child.State)
	}
	f.Work = ChildSolving
	part := solving.Solving.Part
	f.Part = &part
	return nil
}
