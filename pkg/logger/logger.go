package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日誌配置
type Config struct {
	Level      string `yaml:"level"`        // debug, info, warn, error
	File       string `yaml:"file"`         // 空字串時只輸出到 stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`  // 單檔大小上限
	MaxBackups int    `yaml:"max_backups"`  // 保留的舊檔數
	MaxAgeDays int    `yaml:"max_age_days"` // 舊檔保留天數
}

// New 建立 zap Logger
// stderr 使用 console 格式，檔案 (lumberjack 輪替) 使用 JSON 格式
//
// 回傳值:
//
//	*zap.Logger: 結構化 logger
//	func(): 關閉檔案並 flush，程式結束前呼叫
//	error: level 無法解析
func New(cfg Config) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,  // megabytes
			MaxBackups: cfg.MaxBackups, // files
			MaxAge:     cfg.MaxAgeDays, // days
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() {
		_ = l.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return l, closeFn, nil
}
