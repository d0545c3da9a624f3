package node

import (
	"fmt"
	"strings"

	"github.com/mvolf/hashswarm/internal/problem"
)

// Role is the node's own position in the swarm.
type Role uint8

const (
	Idle Role = iota
	Leader
	Child
)

func (r Role) String() string {
	switch r {
	case Leader:
		return "Leader"
	case Child:
		return "Child"
	default:
		return "Idle"
	}
}

// state is the node's role plus role-specific data, guarded by Node.stateMu.
// It is changed only by Node methods that hold stateMu (the transitions plus
// the parts and leader-address setters); other readers get copies.
type state struct {
	role Role

	// Leader
	leaderSolving bool
	parts         []problem.Part

	// Child
	leaderAddress string
	childSolving  bool
}

func (s state) String() string {
	switch s.role {
	case Leader:
		if !s.leaderSolving {
			return "Leader{WaitingForProblem}"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Leader{Solving, %d parts", len(s.parts))
		for _, p := range s.parts {
			fmt.Fprintf(&b, "\n    %s", p)
		}
		b.WriteString("}")
		return b.String()
	case Child:
		if s.childSolving {
			return fmt.Sprintf("Child{Solving, leader %s}", s.leaderAddress)
		}
		return fmt.Sprintf("Child{Connected, leader %s}", s.leaderAddress)
	default:
		return "Idle"
	}
}
