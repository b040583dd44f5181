package commands

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/dkurenkov/veles/core/commands"

var (
	logger = otelslog.NewLogger(scopeName)
)
