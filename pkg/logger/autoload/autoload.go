// Package autoload configures the global logger from the environment as a
// blank-import side effect.
package autoload

import (
	configx "github.com/omniflowhq/omniflow/pkg/config"
	logx "github.com/omniflowhq/omniflow/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
