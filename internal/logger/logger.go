package logger

import (
	"go.uber.org/zap"
)

// New builds a JSON production logger, or a console logger in development.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Must is New that panics, for use in main.
func Must(environment string) *zap.Logger {
	l, err := New(environment)
	if err != nil {
		panic(err)
	}
	return l
}
