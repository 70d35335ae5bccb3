package utils

import "go.uber.org/zap"

// NewLogger builds the rxmatch service logger. Debug mode uses the
// human-readable development encoder at debug level; otherwise JSON at info
// level. Both carry a service field so mixed log streams stay attributable.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.InitialFields = map[string]interface{}{"service": "rxmatch"}
	return cfg.Build()
}
