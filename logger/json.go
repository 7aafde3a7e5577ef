package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Metadata keys that the JSON logger lifts out of the metadata map into
// top-level fields of every entry.
const (
	KeyCacheID = "cache_id"
	KeyPrefix  = "prefix"
	KeyOp      = "op"
)

// Entry is one line of JSON log output.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	CacheID   string                 `json:"cache_id,omitempty"`
	Prefix    string                 `json:"prefix,omitempty"`
	Op        string                 `json:"op,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// jsonLogger writes one Entry per line. Clones share the writer lock so lines
// from derived loggers never interleave.
type jsonLogger struct {
	prefixes     []string
	metadata     map[string]interface{}
	out          io.Writer
	mu           *sync.Mutex
	sink         Sink
	logLevel     LogLevel
	sinkLogLevel LogLevel
	child        Logger
	now          func() time.Time
}

var _ SinkLogger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	clone := *c
	clone.prefixes = slices.Clone(c.prefixes)
	clone.metadata = metadata
	return &clone
}

func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

// WithPrefix adds prefix to the entry component. Surrounding brackets are dropped.
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	name := strings.Trim(prefix, "[]")
	if name != "" && !slices.Contains(clone.prefixes, name) {
		clone.prefixes = append(clone.prefixes, name)
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *jsonLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	if clone.child != nil {
		clone.child = clone.child.With(metadata)
	}
	return clone
}

func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.sink = sink
	c.sinkLogLevel = level
	if child, ok := c.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

func (c *jsonLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

func (c *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	return (c.out != nil && level >= c.logLevel) || (c.sink != nil && level >= c.sinkLogLevel)
}

func (c *jsonLogger) entry(level LogLevel, msg string, args []interface{}) Entry {
	e := Entry{
		Time:      c.now().UTC(),
		Level:     consoleStyles[level].name,
		Component: strings.Join(c.prefixes, " "),
		Message:   msg,
	}
	if len(args) > 0 {
		e.Message = fmt.Sprintf(msg, args...)
	}
	e.Message = ansiColorStripper.ReplaceAllString(e.Message, "")
	for k, v := range c.metadata {
		s, isString := v.(string)
		switch {
		case k == KeyCacheID && isString:
			e.CacheID = s
		case k == KeyPrefix && isString:
			e.Prefix = s
		case k == KeyOp && isString:
			e.Op = s
		default:
			if e.Fields == nil {
				e.Fields = make(map[string]interface{})
			}
			e.Fields[k] = v
		}
	}
	return e
}

func (c *jsonLogger) Log(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	buf, err := json.Marshal(c.entry(level, msg, args))
	if err != nil {
		log.Printf("json.Marshal: %v", err)
		return
	}
	buf = append(buf, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil && level >= c.logLevel {
		c.out.Write(buf)
	}
	if c.sink != nil && level >= c.sinkLogLevel {
		if _, err := c.sink.Write(buf); err != nil {
			log.Printf("sink.Write: %v", err)
		}
	}
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) {
	c.Log(LevelTrace, msg, args...)
	if c.child != nil {
		c.child.Trace(msg, args...)
	}
}

func (c *jsonLogger) Debug(msg string, args ...interface{}) {
	c.Log(LevelDebug, msg, args...)
	if c.child != nil {
		c.child.Debug(msg, args...)
	}
}

func (c *jsonLogger) Info(msg string, args ...interface{}) {
	c.Log(LevelInfo, msg, args...)
	if c.child != nil {
		c.child.Info(msg, args...)
	}
}

func (c *jsonLogger) Warn(msg string, args ...interface{}) {
	c.Log(LevelWarn, msg, args...)
	if c.child != nil {
		c.child.Warn(msg, args...)
	}
}

func (c *jsonLogger) Error(msg string, args ...interface{}) {
	c.Log(LevelError, msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
}

func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.Log(LevelError, msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
	os.Exit(1)
}

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewJSONLogger returns a Logger that writes JSON lines to stderr.
func NewJSONLogger(levels ...LogLevel) SinkLogger {
	return NewJSONLoggerTo(os.Stderr, levels...)
}

// NewJSONLoggerTo returns a Logger that writes JSON lines to out. Without an
// explicit level it uses MEMENTO_LOG_LEVEL.
func NewJSONLoggerTo(out io.Writer, levels ...LogLevel) SinkLogger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{
		out:          out,
		mu:           &sync.Mutex{},
		logLevel:     level,
		sinkLogLevel: LevelNone,
		now:          time.Now,
	}
}
