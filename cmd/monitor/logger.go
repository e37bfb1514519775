package main

import (
	"github.com/lismorewater/flowmon/internal/config"
	"github.com/lismorewater/flowmon/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
