// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package logger wraps zap the way lindb's own pkg/logger does: a small set
// of named, cached loggers sharing one rotating output.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newStderr() *os.File {
	return os.Stderr
}

var (
	mu      sync.Mutex
	loggers = make(map[string]*zap.SugaredLogger)
	sink    zapcore.WriteSyncer = zapcore.AddSync(zapcore.Lock(zapcore.AddSync(newStderr())))
	level                       = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// InitLoggers configures the shared rotating file sink used by every
// module-level logger. Call once at process start; safe to skip in tests,
// in which case loggers fall back to stderr.
func InitLoggers(path string, lvl zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(lvl)
	if path == "" {
		sink = zapcore.AddSync(zapcore.Lock(zapcore.AddSync(newStderr())))
		return
	}
	sink = zapcore.AddSync(zapcore.Lock(zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})))
	loggers = make(map[string]*zap.SugaredLogger)
}

// GetLogger returns the cached logger for module/name, creating it on
// first use.
func GetLogger(module, name string) *zap.SugaredLogger {
	key := module + "/" + name
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[key]; ok {
		return l
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), sink, level)
	l := zap.New(core, zap.AddCaller()).Sugar().With("module", module, "component", name)
	loggers[key] = l
	return l
}
