package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is shared by every package of the front end.
var Logger = logrus.New()
var once sync.Once

type Options struct {
	SystemName string
	File       string // empty keeps stderr only
	Level      string
}

// LineFormatter writes one line per entry with a fresh event id.
type LineFormatter struct {
	SystemName string
}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	b.WriteString(entry.Time.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString(fmt.Sprintf(" source=%s level=%s event=%s msg=%q",
		f.SystemName, strings.ToUpper(entry.Level.String()), uuid.NewString(), entry.Message))

	for k, v := range entry.Data {
		b.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}

	if entry.HasCaller() {
		b.WriteString(fmt.Sprintf(" at=%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line))
	}

	b.WriteByte('\n')

	return b.Bytes(), nil
}

// Init configures Logger once. Later calls are no-ops.
func Init(opts Options) {
	once.Do(func() {
		var out io.Writer = os.Stderr
		if opts.File != "" {
			if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
				logrus.Fatalf("failed to create log directory: %v", err)
			}
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}

		Logger.SetOutput(out)
		Logger.SetFormatter(&LineFormatter{SystemName: opts.SystemName})
		Logger.SetReportCaller(true)

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		Logger.SetLevel(level)

		Logger.Infof("logger initialized for %s (file=%q, level=%s)", opts.SystemName, opts.File, level)
	})
}
