package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Tests need to see recent log messages. Keep a small ring of them.
const max_memory_logs = 1000

var (
	memory_mu   sync.Mutex
	memory_logs []string
)

type memoryLogHook struct{}

func (self *memoryLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (self *memoryLogHook) Fire(entry *logrus.Entry) error {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	memory_logs = append(memory_logs, fmt.Sprintf(
		"%s %s", strings.ToUpper(entry.Level.String()),
		clearTag(entry.Message)))

	if len(memory_logs) > max_memory_logs {
		memory_logs = memory_logs[len(memory_logs)-max_memory_logs:]
	}

	return nil
}

func GetMemoryLogs() []string {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	return append([]string{}, memory_logs...)
}

func ClearMemoryLogs() {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	memory_logs = nil
}
