// File: openflow/error.go
// Author: momentics <momentics@gmail.com>
//
// Admin-plane error taxonomy (spec §7). These are distinct from the
// datapath sentinels in api.Error -- they describe OpenFlow control-plane
// rejections (bad flow-mod, bad group-mod) rather than I/O failures, and
// carry the same Code/Message/Context shape the teacher uses for data
// results that cross package boundaries.

package openflow

import "fmt"

// ErrorCode enumerates OpenFlow control-plane error conditions.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeFlowModOverlap
	ErrCodeFlowModBadTable
	ErrCodeFlowModBadCommand
	ErrCodeUnknownGroup
	ErrCodeGroupExists
	ErrCodeGroupLoop
	ErrCodeInvalidGroupType
	ErrCodeInvalidBucket
	ErrCodeBadInstruction
	ErrCodeBadAction
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeFlowModOverlap:
		return "flow_mod_overlap"
	case ErrCodeFlowModBadTable:
		return "flow_mod_bad_table"
	case ErrCodeFlowModBadCommand:
		return "flow_mod_bad_command"
	case ErrCodeUnknownGroup:
		return "unknown_group"
	case ErrCodeGroupExists:
		return "group_exists"
	case ErrCodeGroupLoop:
		return "group_loop"
	case ErrCodeInvalidGroupType:
		return "invalid_group_type"
	case ErrCodeInvalidBucket:
		return "invalid_bucket"
	case ErrCodeBadInstruction:
		return "bad_instruction"
	case ErrCodeBadAction:
		return "bad_action"
	default:
		return "unknown"
	}
}

// Error is a structured control-plane error, returned to a
// ControllerChannel as an OFPT_ERROR-equivalent.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (context: %+v)", e.Code, e.Message, e.Context)
}

// NewError constructs a control-plane Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext attaches diagnostic context and returns e for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
