// Package cache はRedisを用いたベストエフォートのキャッシュ層を提供する。
// キャッシュは常に派生データであり、正とするデータはリポジトリ側にある。
package cache

import "strings"

const keyPrefix = "essaybinder"

// キャッシュの名前空間
const (
	NamespaceEssays    = "essays"
	NamespaceEssayMeta = "essay-meta"
	// NamespaceEssaysGen は一覧キャッシュの世代カウンタ。変更操作のたびに進める。
	NamespaceEssaysGen = "essays-gen"
)

// Key は "essaybinder:<namespace>:<userID>[:<identifier>]" 形式のキーを組み立てる。
func Key(namespace, userID string, identifier ...string) string {
	parts := append([]string{keyPrefix, namespace, userID}, identifier...)
	return strings.Join(parts, ":")
}

// UserPattern は指定名前空間・ユーザー配下の全キーにマッチするパターンを返す。
func UserPattern(namespace, userID string) string {
	return Key(namespace, userID) + ":*"
}

// namespaceOf はキーから名前空間を取り出す。メトリクスのラベルに使う。
func namespaceOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != keyPrefix {
		return "unknown"
	}
	return parts[1]
}
