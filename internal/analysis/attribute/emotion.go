package attribute

import "strings"

// Label 表示视觉模型可以识别的情绪标签。
type Label string

const (
	Angry    Label = "angry"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Fear     Label = "fear"
	Disgust  Label = "disgust"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
	Contempt Label = "contempt"
)

// DefaultOppositeEmotion 是对照表里找不到情绪时的默认值。
const DefaultOppositeEmotion = "neutral"

var knownEmotions = []Label{Angry, Happy, Sad, Fear, Disgust, Surprise, Neutral, Contempt}

var oppositeEmotion = map[Label]string{
	Angry:    "calm",
	Happy:    "sad",
	Sad:      "happy",
	Fear:     "confident",
	Disgust:  "admiration",
	Surprise: "boredom",
	Neutral:  "emotional",
	Contempt: "respectful",
}

// Emotions 按选择器顺序列出可识别的情绪。
func Emotions() []string {
	out := make([]string, len(knownEmotions))
	for i, label := range knownEmotions {
		out[i] = string(label)
	}
	return out
}

// ParseEmotion 规范化 raw 并返回是否为已知标签。
func ParseEmotion(raw string) (Label, bool) {
	label := Label(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := oppositeEmotion[label]
	return label, ok
}

// IsEmotion 判断 raw 是否为可识别的情绪。
func IsEmotion(raw string) bool {
	_, ok := ParseEmotion(raw)
	return ok
}

// OppositeEmotion 把识别到的情绪映射成角色应有的相反情绪。
// 不区分大小写；无法识别时返回 DefaultOppositeEmotion。
func OppositeEmotion(raw string) string {
	label, ok := ParseEmotion(raw)
	if !ok {
		return DefaultOppositeEmotion
	}
	return oppositeEmotion[label]
}

// EmotionTable 返回情绪对照表的副本。
func EmotionTable() map[string]string {
	out := make(map[string]string, len(oppositeEmotion))
	for k, v := range oppositeEmotion {
		out[string(k)] = v
	}
	return out
}
