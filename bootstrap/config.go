package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"foundry/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the application logger. The console format uses colored levels for humans;
// the json format is meant for log collectors.
func InitLogger(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var encoder zapcore.Encoder
	switch format {
	case "", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q: must be console or json", format)
	}

	// stdout belongs to command output such as foundry config.
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// loadConfiguration reads the configuration and parameter files. Configuration files are
// always required. A conventional parameters file that does not exist is skipped; explicitly
// listed ones are required.
func loadConfiguration(paths resolvedPaths, env string) (*config.Store, config.Parameters, error) {
	store, err := config.Load(paths.config.paths, env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	paramFiles := paths.parameters.paths
	if !paths.parameters.explicit {
		paramFiles = existing(paramFiles)
	}
	params, err := config.LoadParameters(paramFiles, env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	return store, params, nil
}

func existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		out = append(out, p)
	}
	return out
}
