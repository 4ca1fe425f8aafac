package docs

import (
	"strings"
	"unicode/utf16"

	gdocs "google.golang.org/api/docs/v1"
)

// Stats はドキュメント本文の統計。
type Stats struct {
	CharacterCount int `json:"characterCount"`
	WordCount      int `json:"wordCount"`
}

// ComputeStats は本文の段落内テキストランを走査して統計を計算する。
// 文字数は各ランの内容（空白・改行を含む）のUTF-16コード単位数の合計で、
// Docs APIのインデックスと同じ単位になる。サロゲートペアの絵文字は2と数える。
// 単語数は各ランを空白で区切ったトークン数の合計。
func ComputeStats(doc *gdocs.Document) Stats {
	var s Stats
	if doc == nil || doc.Body == nil {
		return s
	}
	for _, el := range doc.Body.Content {
		if el == nil || el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe == nil || pe.TextRun == nil {
				continue
			}
			text := pe.TextRun.Content
			s.CharacterCount += utf16Len(text)
			s.WordCount += len(strings.Fields(text))
		}
	}
	return s
}

// utf16Len は文字列をUTF-16で表したときのコード単位数を返す。
func utf16Len(text string) int {
	n := 0
	for _, r := range text {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
