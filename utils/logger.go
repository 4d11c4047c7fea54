package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var consoleWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

var Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

// InitLogger additionally mirrors every log line to a rotating file when
// logFile is set.
func InitLogger(logFile string) {
	var out io.Writer = consoleWriter
	if logFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxBackups: 3,
			MaxSize:    1,    // megabytes
			MaxAge:     1,    // days
			Compress:   true, // disabled by default
		}
		out = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
}
