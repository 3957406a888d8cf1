package persona

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Unknown 表示视觉模型无法判断的属性。
const Unknown = "unknown"

// BriefMaxLen 聊天旁一行角色简介的最大长度。
const BriefMaxLen = 160

// Analysis 视觉模型从用户照片中推断出的属性。
type Analysis struct {
	DominantEmotion string `json:"dominantEmotion"`
	Gender          string `json:"gender"`
}

// UnknownAnalysis 图片分析失败时的回退值。
func UnknownAnalysis() Analysis {
	return Analysis{DominantEmotion: Unknown, Gender: Unknown}
}

// EmotionKnown 是否识别出了情绪。
func (a Analysis) EmotionKnown() bool {
	return a.DominantEmotion != "" && a.DominantEmotion != Unknown
}

// GenderKnown 是否识别出了性别。
func (a Analysis) GenderKnown() bool {
	return a.Gender != "" && a.Gender != Unknown
}

// Spec 角色生成的输入，即用户属性取反后的结果。
type Spec struct {
	Name    string `json:"name"`
	Gender  string `json:"gender"`
	Emotion string `json:"emotion"`
}

// Summary 生成用户确认角色前看到的那句话。
func (s Spec) Summary() string {
	return "The chatbot character will be a **" + s.Gender + "** with a **" + s.Emotion + "** demeanor."
}

// Profile 生成好的角色，创建后不再修改。
type Profile struct {
	Name         string    `json:"name"`
	Gender       string    `json:"gender"`
	Emotion      string    `json:"emotion"`
	ProfileText  string    `json:"profileText"`
	SystemPrompt string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Brief 取简介的第一行非空文字，压平换行并截断到 maxLen 个字符。
func Brief(profileText string, maxLen int) string {
	if strings.TrimSpace(profileText) == "" {
		return ""
	}

	brief := strings.TrimSpace(profileText)
	for _, line := range strings.Split(profileText, "\n") {
		if candidate := strings.TrimSpace(line); candidate != "" {
			brief = candidate
			break
		}
	}

	brief = strings.ReplaceAll(brief, "\n", " ")
	if maxLen > 0 && utf8.RuneCountInString(brief) > maxLen {
		runes := []rune(brief)
		brief = strings.TrimRightFunc(string(runes[:maxLen-1]), func(r rune) bool {
			return r == ' ' || r == '\t'
		}) + "…"
	}
	return brief
}
