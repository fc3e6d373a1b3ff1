package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Debug switches to the human-readable
// development encoder; production output is JSON lines.
func New(debug bool, stage string) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	if stage != "" {
		log = log.With(zap.String("stage", stage))
	}
	return log, nil
}
