// File: openflow/action.go
// Author: momentics <momentics@gmail.com>
//
// Action vocabulary executed by the pipeline's action executor (spec
// §4.6). Actions are data here; pipeline.ActionExecutor interprets them
// against a live packet.

package openflow

// ActionType enumerates the actions a bucket or instruction's action list
// may carry.
type ActionType uint16

const (
	ActionOutput ActionType = iota
	ActionGroup
	ActionSetField
	ActionSetQueue
	ActionPushVLAN
	ActionPopVLAN
	ActionPushMPLS
	ActionPopMPLS
	ActionCopyTTLIn
	ActionCopyTTLOut
	ActionDecNwTTL
	ActionSetNwTTL
	ActionDecMPLSTTL
	ActionSetMPLSTTL
)

// Reserved meta-ports (spec §3).
const (
	PortFlood      uint32 = 0xFFFFFFFB
	PortAll        uint32 = 0xFFFFFFFC
	PortController uint32 = 0xFFFFFFFD
	PortInPort     uint32 = 0xFFFFFFF8
)

// Action is one executable directive. Only the fields relevant to Type are
// meaningful; this mirrors the teacher's tagged-enum-over-struct idiom
// used for PortKind.
type Action struct {
	Type ActionType

	// ActionOutput / ActionSetQueue
	Port  uint32
	Queue uint32

	// ActionGroup
	GroupID uint32

	// ActionSetField
	Field FieldValue

	// ActionPushVLAN / ActionPushMPLS
	EtherType uint16

	// TTL ops
	TTL uint8
}

// InstructionType (spec §4.5 canonical execution order).
type InstructionType int

const (
	InstructionMeter InstructionType = iota
	InstructionApplyActions
	InstructionClearActions
	InstructionWriteActions
	InstructionWriteMetadata
	InstructionGotoTable
)

// CanonicalOrder is the fixed instruction execution order mandated by
// spec §4.5: METER -> APPLY_ACTIONS -> CLEAR_ACTIONS -> WRITE_ACTIONS ->
// WRITE_METADATA -> GOTO_TABLE.
var CanonicalOrder = [...]InstructionType{
	InstructionMeter,
	InstructionApplyActions,
	InstructionClearActions,
	InstructionWriteActions,
	InstructionWriteMetadata,
	InstructionGotoTable,
}

// InstructionSet holds at most one instruction of each type (spec §3).
type InstructionSet struct {
	MeterID int32 // -1 == absent

	HasApplyActions bool
	ApplyActions    []Action

	HasClearActions bool

	HasWriteActions bool
	WriteActions    []Action

	HasWriteMetadata bool
	Metadata         uint64
	MetadataMask     uint64

	HasGotoTable bool
	GotoTableID  int
}

// NewInstructionSet returns a zero-value set with MeterID marked absent.
func NewInstructionSet() InstructionSet {
	return InstructionSet{MeterID: -1}
}
