package service

import "errors"

// 错误码随 error 事件原样下发给发起请求的连接，客户端据此分支处理。
const (
	CodeInvalidInput  = "invalid_input"
	CodeBannedContent = "banned_content"
	CodeNotFound      = "not_found"
	CodeDuplicateRoom = "duplicate_room"
	CodeConflict      = "conflict"
	CodeInternal      = "internal_error"
)

// Error 携带稳定错误码和可直接展示的消息，只影响发起请求的连接。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalidInput(msg string) *Error  { return &Error{Code: CodeInvalidInput, Message: msg} }
func bannedContent(msg string) *Error { return &Error{Code: CodeBannedContent, Message: msg} }
func notFound(msg string) *Error      { return &Error{Code: CodeNotFound, Message: msg} }
func duplicateRoom(msg string) *Error { return &Error{Code: CodeDuplicateRoom, Message: msg} }

// ErrorCode 提取稳定错误码；未知错误一律归为 internal_error，不泄露内部细节。
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ErrorMessage 提取可下发的消息文本。
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
