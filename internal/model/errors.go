// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはクライアントにそのまま返すため、内部エラーの詳細を含めてはならない。
type APIError struct {
	Code    string // エラーコード
	Message string // ユーザー向けエラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeWrongType           = "WRONG_TYPE"
	ErrCodeDuplicate           = "DUPLICATE"
	ErrCodeExchangeFailed      = "EXCHANGE_FAILED"
	ErrCodeDocumentNotFound    = "DOCUMENT_NOT_FOUND"
	ErrCodeDocumentForbidden   = "DOCUMENT_FORBIDDEN"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeIntegrity           = "INTEGRITY_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewAuthRequiredError は認証が必要な場合のエラーを生成する。
func NewAuthRequiredError(message string) *APIError {
	return &APIError{Code: ErrCodeAuthRequired, Message: message}
}

// NewEssayNotFoundError はエッセイ未検出エラーを生成する。
// 他ユーザーが所有するエッセイへのアクセスも同じエラーで応答し、存在を漏らさない。
func NewEssayNotFoundError() *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: "Essay not found"}
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{Code: ErrCodeInvalidInput, Message: message}
}

// NewInvalidURLError はGoogleドキュメントURLの解析失敗エラーを生成する。
func NewInvalidURLError() *APIError {
	return &APIError{Code: ErrCodeInvalidURL, Message: "Invalid Google Docs URL"}
}

// NewWrongTypeError はGoogleドキュメント以外のファイルが指定された場合のエラーを生成する。
func NewWrongTypeError() *APIError {
	return &APIError{Code: ErrCodeWrongType, Message: "URL must be a Google Docs document"}
}

// NewDuplicateEssayError は登録済みのドキュメントを再登録しようとした場合のエラーを生成する。
func NewDuplicateEssayError() *APIError {
	return &APIError{Code: ErrCodeDuplicate, Message: "Essay already exists in your collection"}
}

// NewExchangeFailedError は認可コード交換の失敗エラーを生成する。
func NewExchangeFailedError() *APIError {
	return &APIError{Code: ErrCodeExchangeFailed, Message: "Token exchange failed"}
}

// NewDocumentNotFoundError はGoogle側でドキュメントが見つからない場合のエラーを生成する。
func NewDocumentNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeDocumentNotFound,
		Message: "Document not found. Please check the URL and ensure you have access to the document.",
	}
}

// NewDocumentForbiddenError はGoogle側でアクセスが拒否された場合のエラーを生成する。
func NewDocumentForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeDocumentForbidden,
		Message: "Access denied. Please ensure the document is shared with you or you are the owner.",
	}
}

// NewUpstreamUnavailableError はドキュメントプロバイダの分類できないエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: "Failed to access Google document. Please try again.",
	}
}

// NewIntegrityError は保存済み認証情報の復号失敗エラーを生成する。
func NewIntegrityError() *APIError {
	return &APIError{Code: ErrCodeIntegrity, Message: "Stored credential could not be read. Please sign in again."}
}
