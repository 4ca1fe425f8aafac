// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はGoogleのIDトークンから検証済みのユーザー識別情報を表す。
// ログインごとに再導出され、セッション中は変更されない。
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// SealedToken はAES-GCMで暗号化されたリフレッシュトークン。
// 各フィールドは16進文字列で保持する。
type SealedToken struct {
	Ciphertext string `json:"encrypted" firestore:"encrypted"`
	IV         string `json:"iv" firestore:"iv"`
	AuthTag    string `json:"authTag" firestore:"authTag"`
}

// StoredCredential はユーザーごとに永続化される暗号化済みリフレッシュトークン。
type StoredCredential struct {
	UserID                string
	EncryptedRefreshToken SealedToken
	LastLogin             time.Time
	UpdatedAt             time.Time
}
