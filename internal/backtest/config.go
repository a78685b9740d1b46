package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// LogLevel is the engine's own log threshold, independent of the host logger.
type LogLevel string

const (
	LogDebug   LogLevel = "DBG"
	LogInfo    LogLevel = "INF"
	LogWarning LogLevel = "WRN"
	LogError   LogLevel = "ERR"
)

func ParseLogLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case LogDebug, LogInfo, LogWarning, LogError:
		return l, nil
	default:
		return "", fmt.Errorf("invalid log level %q, expected DBG, INF, WRN or ERR", s)
	}
}

func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarning:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type RiskEngineConfig struct {
	// Bypass skips all pre-trade checks.
	Bypass bool
}

// CacheConfig bounds how much market data the engine keeps per series.
type CacheConfig struct {
	TickCapacity int
	BarCapacity  int
}

type EngineConfig struct {
	TraderID   string
	RiskEngine RiskEngineConfig
	Cache      CacheConfig
	LogLevel   LogLevel
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TraderID: "BACKTESTER-001",
		Cache: CacheConfig{
			TickCapacity: 10_000,
			BarCapacity:  10_000,
		},
		LogLevel: LogInfo,
	}
}

func (c EngineConfig) Validate() error {
	if strings.TrimSpace(c.TraderID) == "" {
		return errors.New("trader id is required")
	}
	if c.Cache.TickCapacity <= 0 || c.Cache.BarCapacity <= 0 {
		return errors.New("cache capacities must be > 0")
	}
	if _, err := ParseLogLevel(string(c.LogLevel)); err != nil {
		return err
	}
	return nil
}

// levelHandler drops records below the engine's configured level.
type levelHandler struct {
	level slog.Level
	slog.Handler
}

func (h levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level && h.Handler.Enabled(ctx, l)
}

func (h levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelHandler{level: h.level, Handler: h.Handler.WithAttrs(attrs)}
}

func (h levelHandler) WithGroup(name string) slog.Handler {
	return levelHandler{level: h.level, Handler: h.Handler.WithGroup(name)}
}
