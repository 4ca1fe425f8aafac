package essay

import "regexp"

var (
	docURLPattern = regexp.MustCompile(`^(?:(?:https?://)?docs\.google\.com)?/?document(?:/u/\d+)?/d/([A-Za-z0-9_-]+)(?:[/?#].*)?$`)
	bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ParseDocID はGoogleドキュメントのURLまたはIDからドキュメントIDを取り出す。
// 受け付ける形式:
//   - https://docs.google.com/document/d/<id>[/edit...]
//   - docs.google.com/document/d/<id> / /document/d/<id>
//   - <id>
func ParseDocID(input string) (string, bool) {
	if m := docURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if bareIDPattern.MatchString(input) {
		return input, true
	}
	return "", false
}
