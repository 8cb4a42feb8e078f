package logger

import (
	"go.uber.org/zap"
)

// New builds the process-wide logger. Production JSON config; callers
// pass the sugared logger down explicitly instead of using zap globals.
func New() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
