// Package rlog provides the leveled logging used across reverb:
// independent named loggers sharing one package-level level filter, built
// on zap.
package rlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	loggers = map[string]*zap.SugaredLogger{}
	level   = zap.NewAtomicLevelAt(zapcore.WarnLevel)
)

// SetLevel changes the minimum level for every logger created through this
// package. It may be called before or after loggers are obtained.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Named returns the logger registered under name, creating it on first use.
// Every named logger shares the package-level atomic level, matching the
// teacher's single `-level` flag governing every registered logger.
func Named(name string) *zap.SugaredLogger {
	mu.RLock()
	l, ok := loggers[name]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[name]; ok {
		return l
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)
	base := zap.New(core).Named(name)
	l = base.Sugar()
	loggers[name] = l
	return l
}

// Server returns the logger used by server-side components.
func Server() *zap.SugaredLogger { return Named("server") }

// Client returns the logger used by client-side components.
func Client() *zap.SugaredLogger { return Named("client") }
