// Package autoload configures the global logger from the LOG_* environment
// on import.
package autoload

import (
	configx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/config"
	logx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
