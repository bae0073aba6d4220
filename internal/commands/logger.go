package commands

import (
	"io"
	"os"

	"github.com/inconshreveable/log15"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the root logger. Records at LOG_LEVEL and above go to w
// in logfmt; when LOG_FILE is set they are also appended to that file, which
// is rotated at 100 MB.
func NewLogger(w io.Writer) log15.Logger {
	if w == nil {
		w = os.Stderr
	}
	raw := os.Getenv("LOG_LEVEL")
	lvl, err := log15.LvlFromString(raw)
	if err != nil {
		lvl = log15.LvlInfo
	}

	handler := log15.StreamHandler(w, log15.LogfmtFormat())
	if path := os.Getenv("LOG_FILE"); path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 3,
			Compress:   true,
			LocalTime:  true,
		}
		handler = log15.MultiHandler(handler, log15.StreamHandler(file, log15.LogfmtFormat()))
	}

	logger := log15.New()
	logger.SetHandler(log15.LvlFilterHandler(lvl, handler))
	if raw != "" && err != nil {
		logger.Warn("unknown LOG_LEVEL, using info", "value", raw)
	}
	return logger
}
