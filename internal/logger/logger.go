package logger

import (
	"os"
	"strings"

	"hybrid-grid-bot-go/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var base *zap.Logger

// InitLogger 初始化全局zap日志记录器，可重复调用以应用新配置
func InitLogger(cfg models.LogConfig) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		// 文件输出不带颜色，交给lumberjack切割
		fileEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	colored := encoderConfig
	colored.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if output == "console" || output == "both" || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(colored), zapcore.AddSync(os.Stdout), level))
	}

	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// L 返回全局logger，供需要 *zap.Logger 的组件使用
func L() *zap.Logger {
	if base == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return base
}

// S 返回全局的sugared logger实例
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync 刷新缓冲的日志
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
