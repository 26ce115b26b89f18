package kafka

import (
	"net"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KgoZapLogger forwards franz-go client logs to zap.
type KgoZapLogger struct {
	logger *zap.SugaredLogger
	level  kgo.LogLevel
}

func newKgoZapLogger(logger *zap.Logger) KgoZapLogger {
	level := kgo.LogLevelInfo
	if logger.Core().Enabled(zapcore.DebugLevel) {
		level = kgo.LogLevelDebug
	}
	return KgoZapLogger{
		logger: logger.Named("kgo").Sugar(),
		level:  level,
	}
}

// Level implements kgo.Logger.
func (k KgoZapLogger) Level() kgo.LogLevel {
	return k.level
}

// Log implements kgo.Logger.
func (k KgoZapLogger) Log(level kgo.LogLevel, msg string, keyvals ...interface{}) {
	switch level {
	case kgo.LogLevelDebug:
		k.logger.Debugw(msg, keyvals...)
	case kgo.LogLevelInfo:
		k.logger.Infow(msg, keyvals...)
	case kgo.LogLevelWarn:
		k.logger.Warnw(msg, keyvals...)
	case kgo.LogLevelError:
		k.logger.Errorw(msg, keyvals...)
	}
}

// clientHooks logs broker connection state changes.
type clientHooks struct {
	logger *zap.Logger
}

func newClientHooks(logger *zap.Logger) *clientHooks {
	return &clientHooks{logger: logger.With(zap.String("source", "kafka_client_hooks"))}
}

func (c clientHooks) OnBrokerConnect(meta kgo.BrokerMetadata, dialDur time.Duration, _ net.Conn, err error) {
	if err != nil {
		c.logger.Debug("kafka connection failed", zap.String("broker_host", meta.Host), zap.Error(err))
		return
	}
	c.logger.Debug("kafka connection succeeded",
		zap.String("host", meta.Host),
		zap.Duration("dial_duration", dialDur))
}

func (c clientHooks) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	c.logger.Debug("kafka broker disconnected",
		zap.String("host", meta.Host))
}
