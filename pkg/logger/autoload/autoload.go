// Package autoload initialises the global logger from LOG_* environment
// variables on import. It reads the environment only; .env files are applied
// later by the command that loads configuration.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/tanpawarit/theo-ai/pkg/logger"
)

func init() {
	conf := *logx.DefaultConfig
	_ = envconfig.Process("LOG", &conf)
	logx.Init(conf)
}
