package attribute

const (
	Man   = "Man"
	Woman = "Woman"
	Other = "Other"
)

var knownGenders = []string{Man, Woman, Other}

var oppositeGender = map[string]string{
	Man:   Woman,
	Woman: Man,
	Other: Other,
}

// Genders 按选择器顺序列出可选性别。
func Genders() []string {
	return append([]string(nil), knownGenders...)
}

// IsGender 判断 g 是否严格等于 Man、Woman 或 Other 之一。
func IsGender(g string) bool {
	_, ok := oppositeGender[g]
	return ok
}

// OppositeGender 返回相反的性别。Other 的反面仍是 Other，无法识别的输入也映射为 Other。
func OppositeGender(g string) string {
	if opposite, ok := oppositeGender[g]; ok {
		return opposite
	}
	return Other
}

// GenderTable 返回性别对照表的副本。
func GenderTable() map[string]string {
	out := make(map[string]string, len(oppositeGender))
	for k, v := range oppositeGender {
		out[k] = v
	}
	return out
}
