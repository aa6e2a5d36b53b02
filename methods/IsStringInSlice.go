package methods

import (
	"regexp"
	"strings"
)

func IsStringInSlice(s string, slice []string) bool {
	set := make(map[string]bool)
	for _, v := range slice {
		set[v] = true
	}
	return set[s]
}

// SanitizeName 过滤文件名中的特殊字符，保留中文、英文、数字、下划线和连字符
func SanitizeName(str string) string {
	// 定义正则表达式，匹配中文、英文和数字
	reg := regexp.MustCompile(`[^\p{Han}\p{Latin}\p{N}_-]`)

	// 使用正则表达式替换掉非中文、英文和数字的字符
	result := reg.ReplaceAllString(str, "")

	// 去除字符串中的空格
	result = strings.ReplaceAll(result, " ", "")

	return result
}
