package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 日志接口。*Context 方法附带连接相关的上下文字段。
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)

	DebugContext(ctx context.Context, msg string, fields ...zap.Field)
	InfoContext(ctx context.Context, msg string, fields ...zap.Field)
	WarnContext(ctx context.Context, msg string, fields ...zap.Field)
	ErrorContext(ctx context.Context, msg string, fields ...zap.Field)

	With(fields ...zap.Field) Logger
	WithContext(ctx context.Context) Logger
	Sync() error
	SetLevel(level Level)
	Level() Level
}

type logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// New 按配置创建 Logger，nil 等同零值配置
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	sink, err := openSinks(cfg)
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(zapcore.Level(cfg.Level))
	var core zapcore.Core = zapcore.NewCore(newEncoder(cfg.Format), sink, level)
	if len(cfg.Hooks) > 0 {
		core = &hookedCore{Core: core, hooks: cfg.Hooks}
	}
	// 采样包在 hook 外层，被丢弃的条目不会进入 admin-logs
	if s := cfg.Sampling; s != nil {
		core = zapcore.NewSamplerWithOptions(core, time.Second, s.Initial, s.Thereafter)
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	z := zap.New(core, opts...)
	if cfg.Name != "" {
		z = z.Named(cfg.Name)
	}
	return &logger{zap: z, level: level}, nil
}

// NewWithOptions 以 Option 构建配置后调用 New
func NewWithOptions(opts ...Option) (Logger, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Nop 丢弃全部输出
func Nop() Logger {
	return &logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func newEncoder(format Format) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == ConsoleFormat {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openSinks(cfg *Config) (zapcore.WriteSyncer, error) {
	var sinks []zapcore.WriteSyncer
	if cfg.Console {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	if cfg.File != "" {
		ws, _, err := zap.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", cfg.File, err)
		}
		sinks = append(sinks, ws)
	}
	if r := cfg.Rotate; r != nil {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   r.Filename,
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
			LocalTime:  true,
		}))
	}
	if len(sinks) == 0 {
		return nil, errors.New("logger: no output configured")
	}
	return zapcore.NewMultiWriteSyncer(sinks...), nil
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// *Context 方法先做级别检查，被过滤的条目不提取上下文字段

func (l *logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(withContextFields(ctx, fields)...)
	}
}

func (l *logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(withContextFields(ctx, fields)...)
	}
}

func (l *logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(withContextFields(ctx, fields)...)
	}
}

func (l *logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(withContextFields(ctx, fields)...)
	}
}

func withContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	return append(fieldsFromContext(ctx, true), fields...)
}

func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{zap: l.zap.With(fields...), level: l.level}
}

// WithContext 把上下文字段固定到子 Logger 上，不含 span_id
func (l *logger) WithContext(ctx context.Context) Logger {
	return l.With(fieldsFromContext(ctx, false)...)
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}

// SetLevel 调整级别，子 Logger 共享同一个级别
func (l *logger) SetLevel(level Level) {
	l.level.SetLevel(zapcore.Level(level))
}

func (l *logger) Level() Level {
	return Level(l.level.Level())
}

func spanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}
