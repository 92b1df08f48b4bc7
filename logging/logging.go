package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Setup.
type Options struct {
	Debug   bool
	LogFile string // rotated copy of stdout, disabled when empty
	Service string
}

// New builds a JSON logger writing to stdout and, when configured, a
// rotating file.
func New(opts Options) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "timestamp",
			log.FieldKeyMsg:  "message",
		},
	})
	if opts.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	var out io.Writer = os.Stdout
	if opts.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	logger.SetOutput(out)
	if opts.Service != "" {
		logger.AddHook(serviceHook(opts.Service))
	}
	return logger
}

type serviceHook string

func (serviceHook) Levels() []log.Level { return log.AllLevels }

func (h serviceHook) Fire(e *log.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = string(h)
	}
	return nil
}
