package logging_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/fleetstore/config"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/vtesting"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

func TestMemoryLogsCaptureMessages(t *testing.T) {
	logging.ClearMemoryLogs()
	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))

	marker := fmt.Sprintf("marker_%d", time.Now().UnixNano())
	logger := logging.GetLogger(config_obj, &logging.FrontendComponent)
	logger.Info("Indexed collection %v", marker)

	assert.True(t, vtesting.ContainsString(marker, logging.GetMemoryLogs()))
	vtesting.MemoryLogsContain(t, "INFO Indexed collection "+marker)
}

func TestColorMarkupIsStrippedFromMemoryLogs(t *testing.T) {
	logging.ClearMemoryLogs()
	old_color := logging.NoColor
	logging.NoColor = true
	defer func() { logging.NoColor = old_color }()

	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))

	marker := fmt.Sprintf("service_%d", time.Now().UnixNano())
	logger := logging.GetLogger(config_obj, &logging.FrontendComponent)
	logger.Info("<green>Starting</> %v", marker)

	logs := logging.GetMemoryLogs()
	assert.True(t, vtesting.ContainsString("Starting "+marker, logs))
	assert.False(t, vtesting.ContainsString("<green>", logs))
}

// Suppression gates the terminal formatter only. Background services
// report failures through the memory log, which tests rely on, so it
// must keep recording.
func TestSuppressLoggingOnlySilencesTheTerminal(t *testing.T) {
	logging.ClearMemoryLogs()
	old_suppress := logging.SuppressLogging
	logging.SuppressLogging = true
	defer func() { logging.SuppressLogging = old_suppress }()

	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))

	marker := fmt.Sprintf("suppressed_%d", time.Now().UnixNano())
	logging.GetLogger(config_obj, &logging.ToolComponent).
		Info("Deleted %v", marker)

	assert.True(t, vtesting.ContainsString(marker, logging.GetMemoryLogs()))
}

func TestAddLogFileDuplicatesMessages(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))

	logfile := filepath.Join(t.TempDir(), "fleetstore.log")
	require.NoError(t, logging.AddLogFile(logfile))

	marker := fmt.Sprintf("appended_%d", time.Now().UnixNano())
	logging.GetLogger(config_obj, &logging.ToolComponent).
		Info("Appended %v rows", marker)

	data := vtesting.ReadFile(t, logfile)
	assert.Contains(t, string(data), marker)
}

func TestComponentsShareOneLogUnlessSplit(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))

	a := logging.GetLogger(config_obj, &logging.FrontendComponent)
	b := logging.GetLogger(config_obj, &logging.ToolComponent)
	assert.Same(t, a, b)

	config_obj.Logging = &config_proto.LoggingConfig{
		SeparateLogsPerComponent: true,
	}
	require.NoError(t, logging.InitLogging(config_obj))

	a = logging.GetLogger(config_obj, &logging.FrontendComponent)
	b = logging.GetLogger(config_obj, &logging.ToolComponent)
	assert.NotSame(t, a, b)
}

func TestPrelogsAreFlushedIntoTheRealLog(t *testing.T) {
	logging.ClearMemoryLogs()

	marker := fmt.Sprintf("prelog_%d", time.Now().UnixNano())
	logging.Prelog("Loading config from %v", marker)
	assert.False(t, vtesting.ContainsString(marker, logging.GetMemoryLogs()))

	config_obj := config.GetDefaultConfig()
	require.NoError(t, logging.InitLogging(config_obj))
	assert.True(t, vtesting.ContainsString(marker, logging.GetMemoryLogs()))
}
