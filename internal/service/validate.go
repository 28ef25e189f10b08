package service

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRunRe   = regexp.MustCompile(`\s{10,}`)
	symbolRunRe  = regexp.MustCompile(`[!@#$%^&*()]{5,}`)
	mentionRe    = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)
	reservedName = []string{"system", "admin", "bot", "시스템", "관리자"}
)

// Validator 集中管理输入校验规则，阈值和禁用词来自启动配置。
type Validator struct {
	maxMessage  int
	maxUsername int
	maxRoomName int
	banned      []string
}

func NewValidator(maxMessage, maxUsername, maxRoomName int, banned []string) *Validator {
	return &Validator{
		maxMessage:  maxMessage,
		maxUsername: maxUsername,
		maxRoomName: maxRoomName,
		banned:      banned,
	}
}

// bannedWord 返回文本里命中的第一个禁用词，大小写不敏感的子串匹配。
func (v *Validator) bannedWord(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range v.banned {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return w, true
		}
	}
	return "", false
}

func (v *Validator) checkText(text string, max int, field string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalidInput(fmt.Sprintf("%s must not be empty", field))
	}
	if len([]rune(trimmed)) > max {
		return invalidInput(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	if w, ok := v.bannedWord(trimmed); ok {
		return bannedContent(fmt.Sprintf("%s contains a banned word: %q", field, w))
	}
	return nil
}

// Username 校验昵称：非空、限长、禁用词、保留名。
func (v *Validator) Username(name string) error {
	if err := v.checkText(name, v.maxUsername, "username"); err != nil {
		return err
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, r := range reservedName {
		if lower == r {
			return invalidInput("username is reserved")
		}
	}
	return nil
}

// RoomName 校验房间名：非空、限长、禁用词、特殊字符黑名单。
func (v *Validator) RoomName(name string) error {
	if err := v.checkText(name, v.maxRoomName, "room name"); err != nil {
		return err
	}
	if strings.ContainsAny(name, `<>&"'/`) {
		return invalidInput("room name contains a forbidden character")
	}
	return nil
}

// MessageBody 校验消息正文：非空、限长、禁用词，外加刷屏模式检查。
func (v *Validator) MessageBody(body string) error {
	if err := v.checkText(body, v.maxMessage, "message"); err != nil {
		return err
	}
	if spaceRunRe.MatchString(body) {
		return invalidInput("message contains excessive whitespace")
	}
	if symbolRunRe.MatchString(body) {
		return invalidInput("message contains excessive symbols")
	}
	return nil
}

// Sanitize 去掉 HTML 标签并裁剪首尾空白，存入日志前调用。
func Sanitize(text string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(text, ""))
}

// ExtractMentions 提取 @昵称 形式的提及，去重，保持出现顺序。
func ExtractMentions(body string) []string {
	matches := mentionRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
