// Package logger emits structured events named by a snake_case action, with
// optional user id and details, on top of zap.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	zl *zap.Logger
}

var globalLogger *Logger

// New returns a JSON logger writing every level to output. Tests use it to
// capture or discard events.
func New(output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "action"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(output), zapcore.DebugLevel)
	return &Logger{zl: zap.New(core)}
}

// Init installs the global logger: zap's production JSON config when env is
// "production", the colored development console otherwise.
func Init(env, level string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := cfg.Build(zap.AddCallerSkip(3))
	if err != nil {
		globalLogger = New(os.Stdout)
		return
	}
	globalLogger = &Logger{zl: zl}
}

func SetGlobal(l *Logger) {
	globalLogger = l
}

// Sync flushes buffered entries of the global logger.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.zl.Sync()
	}
}

func (l *Logger) write(lvl zapcore.Level, action string, userID *string, details map[string]interface{}, err error) {
	ce := l.zl.Check(lvl, action)
	if ce == nil {
		return
	}
	var fields []zap.Field
	if userID != nil {
		fields = append(fields, zap.String("user_id", *userID))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	if err != nil {
		fields = append(fields, zap.String("error", err.Error()))
	}
	ce.Write(fields...)
}

func emit(lvl zapcore.Level, action string, userID *string, details map[string]interface{}, err error) {
	if globalLogger != nil {
		globalLogger.write(lvl, action, userID, details, err)
	}
}

func Info(action string, details map[string]interface{}) {
	emit(zapcore.InfoLevel, action, nil, details, nil)
}

func InfoWithUser(userID string, action string, details map[string]interface{}) {
	emit(zapcore.InfoLevel, action, &userID, details, nil)
}

func Warn(action string, details map[string]interface{}) {
	emit(zapcore.WarnLevel, action, nil, details, nil)
}

func WarnWithUser(userID string, action string, details map[string]interface{}) {
	emit(zapcore.WarnLevel, action, &userID, details, nil)
}

func Error(action string, err error, details map[string]interface{}) {
	emit(zapcore.ErrorLevel, action, nil, details, err)
}

func ErrorWithUser(userID string, action string, err error, details map[string]interface{}) {
	emit(zapcore.ErrorLevel, action, &userID, details, err)
}

// GetUserIDFromContext returns the user id the session middleware stored in
// Locals, if any.
func GetUserIDFromContext(c *fiber.Ctx) *string {
	if id, ok := c.Locals("userID").(string); ok {
		return &id
	}
	return nil
}

const (
	maxSummarizedBody = 1024
	maxSummaryLength  = 200
	redacted          = "[REDACTED]"
)

// Keys are compared lowercased.
var sensitiveKeys = map[string]struct{}{
	"password":        {},
	"oldpassword":     {},
	"newpassword":     {},
	"secret":          {},
	"token":           {},
	"csrftoken":       {},
	"twofactorsecret": {},
}

func redact(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, value := range node {
			if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
				node[key] = redacted
				continue
			}
			node[key] = redact(value)
		}
	case []interface{}:
		for i := range node {
			node[i] = redact(node[i])
		}
	}
	return v
}

// GetRequestBodySummary describes the request body for the access log. JSON
// bodies are included with credentials and codes masked at any depth.
func GetRequestBodySummary(c *fiber.Ctx) string {
	body := c.Body()
	switch {
	case len(body) == 0:
		return "empty"
	case len(body) > maxSummarizedBody:
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Sprintf("binary (%d bytes)", len(body))
	}
	masked, err := json.Marshal(redact(doc))
	if err != nil {
		return fmt.Sprintf("binary (%d bytes)", len(body))
	}
	if len(masked) > maxSummaryLength {
		return string(masked[:maxSummaryLength]) + "..."
	}
	return string(masked)
}

func GetResponseSizeSummary(c *fiber.Ctx) string {
	n := len(c.Response().Body())
	switch {
	case n == 0:
		return "empty"
	case n > maxSummarizedBody:
		return fmt.Sprintf("large (%d bytes)", n)
	default:
		return fmt.Sprintf("small (%d bytes)", n)
	}
}

func GenerateRequestID() string {
	return uuid.New().String()
}
