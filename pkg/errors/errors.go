// Package errors 提供對戰引擎的應用程式錯誤處理
//
// 錯誤分類（對應連線關閉碼）：
//   - UNAUTHENTICATED → 4001：上游未提供玩家身分
//   - NOT_FOUND       → 4004：對戰不存在
//   - NOT_PARTICIPANT → 4003：玩家不是這場對戰的參與者
//
// 其他錯誤碼只用於日誌與 HTTP 回應，永遠不會把內部錯誤原文送到客戶端。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeUnauthenticated 未認證
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeNotParticipant 不是對戰參與者
	ErrCodeNotParticipant = "NOT_PARTICIPANT"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeAlreadyExists 資源已存在
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// WebSocket 關閉碼（4000-4999 為應用層保留區段）
const (
	CloseUnauthenticated = 4001
	CloseNotParticipant  = 4003
	CloseNotFound        = 4004
	CloseInternal        = 4500
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對，讓 errors.Is(err, ErrMatchNotFound) 對包裝過的錯誤也成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本（預定義錯誤是共享的，不能原地修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrUnauthenticated 缺少玩家身分
	ErrUnauthenticated = New(ErrCodeUnauthenticated, "player identity missing")

	// ErrMatchNotFound 對戰不存在
	ErrMatchNotFound = New(ErrCodeNotFound, "match not found")

	// ErrNotParticipant 不是參與者
	ErrNotParticipant = New(ErrCodeNotParticipant, "player is not a participant of this match")

	// ErrMatchExists 對戰已存在
	ErrMatchExists = New(ErrCodeAlreadyExists, "match already exists")

	// ErrInvalidSeed 對戰設定無效
	ErrInvalidSeed = New(ErrCodeInvalidInput, "invalid match seed")

	// ErrStoreUnavailable 儲存層不可用
	ErrStoreUnavailable = New(ErrCodeUnavailable, "result store unavailable")
)

// codeOf 取出錯誤碼，非 AppError 視為內部錯誤
func codeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return err != nil && codeOf(err) == ErrCodeNotFound
}

// IsNotParticipant 檢查是否為非參與者錯誤
func IsNotParticipant(err error) bool {
	return err != nil && codeOf(err) == ErrCodeNotParticipant
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return err != nil && codeOf(err) == ErrCodeInvalidInput
}

// IsAlreadyExists 檢查是否為已存在錯誤
func IsAlreadyExists(err error) bool {
	return err != nil && codeOf(err) == ErrCodeAlreadyExists
}

// CloseCode 把錯誤映射為 WebSocket 關閉碼
func CloseCode(err error) int {
	switch codeOf(err) {
	case ErrCodeUnauthenticated:
		return CloseUnauthenticated
	case ErrCodeNotFound:
		return CloseNotFound
	case ErrCodeNotParticipant:
		return CloseNotParticipant
	default:
		return CloseInternal
	}
}
