package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "10.0.0.1:9001"
	addrB = "10.0.0.2:9002"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		wire string
	}{
		{
			name: "ping",
			msg:  NewPing(addrA, addrB),
			wire: "PING|10.0.0.1:9001|10.0.0.2:9002",
		},
		{
			name: "ack",
			msg:  NewAck(addrA, addrB),
			wire: "ACK|10.0.0.1:9001|10.0.0.2:9002",
		},
		{
			name: "calculate power",
			msg:  NewCalculatePower(addrA, addrB, addrA),
			wire: "CALCULATE_POWER|10.0.0.1:9001|10.0.0.2:9002|10.0.0.1:9001",
		},
		{
			name: "calculate power result",
			msg:  NewCalculatePowerResult(addrB, addrA, 1500),
			wire: "CALCULATE_POWER_RESULT|10.0.0.2:9002|10.0.0.1:9001|1500",
		},
		{
			name: "solve problem",
			msg:  NewSolveProblem(addrA, addrB, "aa", "zz", "az", "deadbeef"),
			wire: "SOLVE_PROBLEM|10.0.0.1:9001|10.0.0.2:9002|aa|zz|az|deadbeef",
		},
		{
			name: "solution found",
			msg:  NewSolutionFound(addrB, addrA, "secret"),
			wire: "SOLUTION_FOUND|10.0.0.2:9002|10.0.0.1:9001|secret",
		},
		{
			name: "solution not found",
			msg:  NewSolutionNotFound(addrB, addrA),
			wire: "SOLUTION_NOT_FOUND|10.0.0.2:9002|10.0.0.1:9001",
		},
		{
			name: "stop solving",
			msg:  NewStopSolving(addrA, addrB),
			wire: "STOP_SOLVING|10.0.0.1:9001|10.0.0.2:9002",
		},
		{
			name: "backup data",
			msg:  NewBackupData(addrA, addrB, `{"timestamp":1}`),
			wire: `BACKUP_DATA|10.0.0.1:9001|10.0.0.2:9002|{"timestamp":1}`,
		},
		{
			name: "i am a new leader",
			msg:  NewIAmANewLeader(addrB, addrA),
			wire: "I_AM_A_NEW_LEADER|10.0.0.2:9002|10.0.0.1:9001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.msg.Encode())

			decoded, err := Decode(tt.wire)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		wire string
		err  error
	}{
		{name: "empty", wire: "", err: ErrBadFieldCount},
		{name: "unknown type", wire: "HELLO|a:1|b:2", err: ErrUnknownKind},
		{name: "ping with extra field", wire: "PING|a:1|b:2|x", err: ErrBadFieldCount},
		{name: "missing to", wire: "PING|a:1", err: ErrBadFieldCount},
		{name: "calculate power without leader", wire: "CALCULATE_POWER|a:1|b:2", err: ErrBadFieldCount},
		{name: "power result non numeric", wire: "CALCULATE_POWER_RESULT|a:1|b:2|fast", err: ErrBadPower},
		{name: "power result negative", wire: "CALCULATE_POWER_RESULT|a:1|b:2|-3", err: ErrBadPower},
		{name: "solve problem short", wire: "SOLVE_PROBLEM|a:1|b:2|aa|zz|az", err: ErrBadFieldCount},
		{name: "solve problem long", wire: "SOLVE_PROBLEM|a:1|b:2|aa|zz|az|h|extra", err: ErrBadFieldCount},
		{name: "solution found without solution", wire: "SOLUTION_FOUND|a:1|b:2", err: ErrBadFieldCount},
		{name: "backup data with pipe in json", wire: `BACKUP_DATA|a:1|b:2|{"x":"a|b"}`, err: ErrBadFieldCount},
		{name: "stop solving with extra", wire: "STOP_SOLVING|a:1|b:2|now", err: ErrBadFieldCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.wire)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "PING", Ping.String())
	assert.Equal(t, "Unknown(99)", Kind(99).String())
}
