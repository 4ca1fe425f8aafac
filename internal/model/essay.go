package model

import "time"

// ApplicationStatus はエッセイの応募ステータス。
type ApplicationStatus string

const (
	ApplicationStatusDraft      ApplicationStatus = "draft"
	ApplicationStatusSubmitted  ApplicationStatus = "submitted"
	ApplicationStatusAccepted   ApplicationStatus = "accepted"
	ApplicationStatusRejected   ApplicationStatus = "rejected"
	ApplicationStatusWaitlisted ApplicationStatus = "waitlisted"
	ApplicationStatusNotUsed    ApplicationStatus = "not-used"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusDraft, ApplicationStatusSubmitted, ApplicationStatusAccepted,
		ApplicationStatusRejected, ApplicationStatusWaitlisted, ApplicationStatusNotUsed:
		return true
	}
	return false
}

// AddedVia はエッセイの登録経路。
type AddedVia string

const (
	AddedViaURL        AddedVia = "url"
	AddedViaFilePicker AddedVia = "file-picker"
)

// Essay はカタログに登録されたGoogleドキュメントのメタデータ。
// 本文は保持しない。(UserID, GoogleDocID) の組で一意。
type Essay struct {
	ID                string            `json:"id"`
	GoogleDocID       string            `json:"googleDocId"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Tags              []string          `json:"tags"`
	CreatedDate       string            `json:"createdDate"`
	LastModified      string            `json:"lastModified"`
	LastSynced        time.Time         `json:"lastSynced"`
	UserID            string            `json:"userId"`
	DateAdded         time.Time         `json:"dateAdded"`
	ApplicationFor    string            `json:"applicationFor"`
	ApplicationStatus ApplicationStatus `json:"applicationStatus"`
	Notes             string            `json:"notes"`
	Theme             string            `json:"theme,omitempty"`
	CharacterCount    int               `json:"characterCount"`
	WordCount         int               `json:"wordCount"`
	AddedVia          AddedVia          `json:"addedVia,omitempty"`
}

// EssayMeta はドキュメントプロバイダから取得したエンリッチメント情報。
// エッセイ単位のキャッシュに保存される。
type EssayMeta struct {
	Title          string `json:"title"`
	CreatedDate    string `json:"createdDate"`
	LastModified   string `json:"lastModified"`
	CharacterCount int    `json:"characterCount"`
	WordCount      int    `json:"wordCount"`
}

// Apply はメタ情報をエッセイにマージする。
func (m EssayMeta) Apply(e *Essay) {
	e.Title = m.Title
	e.CreatedDate = m.CreatedDate
	e.LastModified = m.LastModified
	e.CharacterCount = m.CharacterCount
	e.WordCount = m.WordCount
}

// EssayUpdate はエッセイの部分更新。nilのフィールドは変更しない。
type EssayUpdate struct {
	ApplicationFor    *string
	ApplicationStatus *ApplicationStatus
	Notes             *string
	Theme             *string
	LastModified      *string
}

// Empty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u EssayUpdate) Empty() bool {
	return u.ApplicationFor == nil && u.ApplicationStatus == nil &&
		u.Notes == nil && u.Theme == nil && u.LastModified == nil
}

// Position はキャンバス上のエッセイカードの位置。
type Position struct {
	X      float64 `json:"x" firestore:"x"`
	Y      float64 `json:"y" firestore:"y"`
	ZIndex int     `json:"zIndex" firestore:"zIndex"`
}

// Positions はエッセイIDから位置へのマップ。ユーザーごとに1ドキュメントとして保存する。
type Positions map[string]Position
