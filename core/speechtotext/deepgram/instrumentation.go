package deepgram

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/dkurenkov/veles/core/speechtotext/deepgram"

var (
	logger = otelslog.NewLogger(scopeName)
)
