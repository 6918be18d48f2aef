// Package autoload initializes the global logger from LOG_* variables when imported.
package autoload

import (
	configx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/config"
	logx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
