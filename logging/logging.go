package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development mode uses the console encoder
// and debug level.
func New(development bool) (*zap.SugaredLogger, error) {
	var z *zap.Logger
	var err error
	if development {
		cfg := zap.NewDevelopmentConfig()
		z, err = cfg.Build()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return z.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
