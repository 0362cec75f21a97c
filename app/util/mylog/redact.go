package mylog

import (
	"context"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

const redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"password":      true,
	"refresh_token": true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"client_secret": true,
}

// Redactor scrubs known secret values and secret-looking attributes from log records.
type Redactor struct {
	secrets []string
}

func NewRedactor(secrets ...string) *Redactor {
	filtered := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			filtered = append(filtered, s)
		}
	}

	return &Redactor{secrets: filtered}
}

// Middleware redacts record attributes and attributes bound with Logger.With.
func (r *Redactor) Middleware() slogmulti.Middleware {
	return slogmulti.NewInlineMiddleware(
		func(ctx context.Context, level slog.Level, next func(context.Context, slog.Level) bool) bool {
			return next(ctx, level)
		},
		func(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
			return next(ctx, r.Record(record))
		},
		func(attrs []slog.Attr, next func([]slog.Attr) slog.Handler) slog.Handler {
			return next(r.Attrs(attrs))
		},
		func(name string, next func(string) slog.Handler) slog.Handler {
			return next(name)
		},
	)
}

func (r *Redactor) Attrs(attrs []slog.Attr) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		result = append(result, r.Attr(attr))
	}

	return result
}

func (r *Redactor) Record(record slog.Record) slog.Record {
	result := slog.NewRecord(record.Time, record.Level, r.String(record.Message), record.PC)

	record.Attrs(func(attr slog.Attr) bool {
		result.AddAttrs(r.Attr(attr))
		return true
	})

	return result
}

func (r *Redactor) Attr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()

	if isSecretKey(attr.Key) && value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, redacted)
	}

	switch value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, r.String(value.String()))
	case slog.KindGroup:
		group := value.Group()
		attrs := make([]any, 0, len(group))
		for _, a := range group {
			attrs = append(attrs, r.Attr(a))
		}
		return slog.Group(attr.Key, attrs...)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(attr.Key, r.String(err.Error()))
		}
	}

	return slog.Attr{Key: attr.Key, Value: value}
}

func (r *Redactor) String(s string) string {
	for _, secret := range r.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}

	return s
}

func isSecretKey(key string) bool {
	return secretKeys[strings.ToLower(strings.TrimSpace(key))]
}
