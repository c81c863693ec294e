// Package urlutil 导航前的 URL 规整
package urlutil

import (
	"regexp"
	"strings"
)

var (
	malformedScheme = regexp.MustCompile(`(?i)^(https?)(:+/*|/+)`)
	repeatedScheme  = regexp.MustCompile(`(?i)^https?://(https?(:|/))`)
	hasScheme       = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// EnsureURLProtocol 修正重复或错误的协议前缀,缺少协议时补上 https://
//
//	"https://https://app.example.com" -> "https://app.example.com"
//	"http:://app.example.com"         -> "http://app.example.com"
//	"app.example.com"                 -> "https://app.example.com"
func EnsureURLProtocol(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}

	for {
		u = fixScheme(u)
		next := repeatedScheme.ReplaceAllString(u, "$1")
		if next == u {
			break
		}
		u = next
	}

	if !hasScheme.MatchString(u) {
		u = "https://" + strings.TrimLeft(u, "/")
	}
	return u
}

func fixScheme(u string) string {
	m := malformedScheme.FindStringSubmatchIndex(u)
	if m == nil {
		return u
	}
	scheme := strings.ToLower(u[m[2]:m[3]])
	return scheme + "://" + u[m[1]:]
}
