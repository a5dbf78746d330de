package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const logFileName = "sessionbroker.log"

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the process logger, creating a console logger when
// InitLogger has not run yet
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	logger := globalLogger
	loggerMutex.RUnlock()
	if logger != nil {
		return logger
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return globalLogger
}

// InitLogger builds the logger from config.Logging and installs it as the
// process logger. Unknown outputs are ignored.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	for _, output := range config.Logging.Output {
		switch output {
		case "stdout", "console":
			logger = logger.WithConsoleWriter(consoleWriter())
		case "file":
			dir := LogDir()
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
				continue
			}
			logger = logger.WithFileWriter(fileWriter(filepath.Join(dir, logFileName)))
		}
	}

	logger = logger.WithLevelFromString(config.Logging.Level)

	loggerMutex.Lock()
	globalLogger = logger
	loggerMutex.Unlock()

	return logger
}

// LogDir is the logs directory next to the executable, or ./logs when the
// executable path is unknown
func LogDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "logs"
	}
	return filepath.Join(filepath.Dir(execPath), "logs")
}

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		TextOutput: true,
	}
}

func fileWriter(path string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		TimeFormat: "15:04:05",
		MaxSize:    100 * 1024 * 1024,
		MaxBackups: 3,
		TextOutput: true,
	}
}
