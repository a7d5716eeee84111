// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import (
	"log/slog"
	"strings"
)

// Err возвращает атрибут "error" с текстом ошибки.
//
// Пример:
//
//	log.Error("failed to issue token", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Token возвращает атрибут "token" с замаскированным значением.
// Открытый токен никогда не пишется в лог, остаются только первые два символа.
func Token(token string) slog.Attr {
	const visible = 2
	if len(token) <= visible {
		return slog.String("token", strings.Repeat("*", len(token)))
	}
	return slog.String("token", token[:visible]+strings.Repeat("*", len(token)-visible))
}
