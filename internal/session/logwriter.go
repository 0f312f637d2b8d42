// Copyright 2026 The Oracle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"bufio"
	"os"
	"sync"
)

// fileLogWriter appends model output to a log file. Writes are buffered;
// Close flushes. Safe for one writer goroutine plus Close from another.
type fileLogWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

func (l *fileLogWriter) WriteChunk(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		l.w = bufio.NewWriter(l.f)
	}
	_, err := l.w.WriteString(s)
	return err
}

func (l *fileLogWriter) WriteLine(s string) error {
	if err := l.WriteChunk(s); err != nil {
		return err
	}
	return l.WriteChunk("\n")
}

func (l *fileLogWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			l.f.Close()
			return err
		}
	}
	return l.f.Close()
}

func (l *fileLogWriter) Locator() string {
	return l.path
}
