package game

import "fmt"

// ErrorCode identifies a rejection category carried on the wire in
// error{code,message} frames.
type ErrorCode string

const (
	CodeRoomFull           ErrorCode = "RoomFull"
	CodeGameAlreadyStarted ErrorCode = "GameAlreadyStarted"
	CodeInvalidState       ErrorCode = "InvalidState"
	CodeInvalidAction      ErrorCode = "InvalidAction"
	CodePlayerNotFound     ErrorCode = "PlayerNotFound"
	CodeNotYourTurn        ErrorCode = "NotYourTurn"
	CodeAlreadyVoted       ErrorCode = "AlreadyVoted"
	CodeInvalidVote        ErrorCode = "InvalidVote"
	CodePermissionDenied   ErrorCode = "PermissionDenied"
	CodeRoomDeleted        ErrorCode = "RoomDeleted"
	CodeTimeout            ErrorCode = "Timeout"
	CodeInternalError      ErrorCode = "InternalError"
)

// Error is a non-fatal rejection: the state is left unchanged and only
// the requesting connection is told.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf maps any error to a wire code, falling back to InternalError.
func CodeOf(err error) ErrorCode {
	if ge, ok := err.(*Error); ok {
		return ge.Code
	}
	return CodeInternalError
}
