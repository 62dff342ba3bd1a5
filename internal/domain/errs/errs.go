package errs

import "errors"

// Error - отказ с кодом, который безопасно отдавать устройству.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с обернутыми отказами.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

const (
	CodeConnectionNotFound = "connection-not-found"
	CodeChannelNotFound    = "channel-not-found"
	CodeChannelNotSelected = "channel-not-selected"
	CodeNotChannelMember   = "not-channel-member"
	CodeNotWorkspaceMember = "not-workspace-member"
	CodeForbidden          = "forbidden"
	CodeUserNotConnected   = "user-not-connected"
	CodeInviteNotFound     = "invite-not-found"
	CodeInvalidRequest     = "invalid-request"
	CodeInternal           = "internal-error"
)

var (
	ErrConnectionNotFound = New(CodeConnectionNotFound, "connection not found")
	ErrChannelNotFound    = New(CodeChannelNotFound, "channel not found")
	ErrChannelNotSelected = New(CodeChannelNotSelected, "channel is not selected")
	ErrNotChannelMember   = New(CodeNotChannelMember, "user is not a member of the channel")
	ErrNotWorkspaceMember = New(CodeNotWorkspaceMember, "user is not a member of the workspace")
	ErrForbidden          = New(CodeForbidden, "action is not permitted")
	ErrUserNotConnected   = New(CodeUserNotConnected, "user is not connected")
	ErrInviteNotFound     = New(CodeInviteNotFound, "invite not found")
	ErrInternal           = New(CodeInternal, "internal error")
)

func InvalidRequest(message string) *Error {
	return New(CodeInvalidRequest, message)
}

// Public приводит любую ошибку к отказу с кодом. Неизвестные ошибки скрываются.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return ErrInternal
}

func CodeOf(err error) string {
	return Public(err).Code
}
