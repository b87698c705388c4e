package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// 支持的语言
const (
	LocaleZH = "zh-CN"
	LocaleEN = "en-US"
)

const defaultLocale = LocaleZH

// ResolveLocale 解析请求语言，优先级：lang 查询参数 > Accept-Language 头
func ResolveLocale(c *gin.Context) string {
	if c == nil {
		return defaultLocale
	}
	if raw := c.Query("lang"); raw != "" {
		if locale, ok := normalizeLocale(raw); ok {
			return locale
		}
	}
	header := c.GetHeader("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if locale, ok := normalizeLocale(tag); ok {
			return locale
		}
	}
	return defaultLocale
}

// Normalize 规范化语言标签，无法识别时回退默认语言
func Normalize(raw string) string {
	if locale, ok := normalizeLocale(raw); ok {
		return locale
	}
	return defaultLocale
}

// T 返回指定语言的文案，键不存在时原样返回键
func T(locale, key string) string {
	if msg, ok := lookup(locale, key); ok {
		return msg
	}
	return key
}

// Sprintf 返回带占位符参数的文案
func Sprintf(locale, key string, args ...interface{}) string {
	if msg, ok := lookup(locale, key); ok {
		return fmt.Sprintf(msg, args...)
	}
	return key
}

func lookup(locale, key string) (string, bool) {
	if table, ok := messages[locale]; ok {
		if msg, ok := table[key]; ok {
			return msg, true
		}
	}
	if locale != defaultLocale {
		if msg, ok := messages[defaultLocale][key]; ok {
			return msg, true
		}
	}
	return "", false
}

func normalizeLocale(raw string) (string, bool) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case tag == "":
		return "", false
	case strings.HasPrefix(tag, "zh"):
		return LocaleZH, true
	case strings.HasPrefix(tag, "en"):
		return LocaleEN, true
	}
	return "", false
}
