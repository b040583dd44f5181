package portaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/dkurenkov/veles/core/audio/portaudio"

var (
	logger = otelslog.NewLogger(scopeName)
)
