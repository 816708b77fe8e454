package common

import "unicode/utf8"

// RemoveDuplicates 按 keyFunc 去重，保留每个键首次出现的元素和原有顺序
func RemoveDuplicates[T any, K comparable](items []T, keyFunc func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	var out []T
	for _, item := range items {
		k := keyFunc(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// TruncateRunes 按字符截断，避免切断多字节字符
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
