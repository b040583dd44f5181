package client

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/dkurenkov/veles/client"

var logger = otelslog.NewLogger(scopeName)
