package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/Velocidex/file-rotatelogs"
	"github.com/mattn/go-isatty"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

var (
	SuppressLogging = false
	NoColor         = false

	GenericComponent  = "fleetstore"
	FrontendComponent = "frontend"
	ToolComponent     = "tool"

	mu      sync.Mutex
	Manager *LogManager

	// Early messages logged before the config is loaded. They are
	// replayed into the real logger by FlushPrelogs().
	prelogs []string

	tag_regex         = regexp.MustCompile("<([a-z]+)>")
	closing_tag_regex = regexp.MustCompile("</>")

	color_map = map[string]string{
		"green":  "\033[32m",
		"red":    "\033[31m",
		"yellow": "\033[33m",
		"cyan":   "\033[36m",
	}
)

func Prelog(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	prelogs = append(prelogs, fmt.Sprintf(format, v...))
}

func FlushPrelogs(config_obj *config_proto.Config) {
	logger := GetLogger(config_obj, &GenericComponent)

	mu.Lock()
	local_prelogs := prelogs
	prelogs = nil
	mu.Unlock()

	for _, message := range local_prelogs {
		logger.Info("%s", message)
	}
}

type LogContext struct {
	*logrus.Logger
}

func (self *LogContext) Debug(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Debug(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Info(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Info(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Warn(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Warn(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Error(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Error(fmt.Sprintf(format, v...))
	}
}

type LogManager struct {
	mu       sync.Mutex
	contexts map[*string]*LogContext
}

// Get the cached logger for the component, building it on first use.
func (self *LogManager) GetLogger(
	config_obj *config_proto.Config,
	component *string) *LogContext {
	if config_obj == nil {
		config_obj = &config_proto.Config{}
	}

	// All components share one log unless the config splits them.
	if config_obj.Logging == nil ||
		!config_obj.Logging.SeparateLogsPerComponent {
		component = &GenericComponent
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	ctx, pres := self.contexts[component]
	if !pres {
		new_ctx, err := self.makeNewComponent(config_obj, component)
		if err != nil {
			panic(err)
		}
		self.contexts[component] = new_ctx
		return new_ctx
	}
	return ctx
}

func (self *LogManager) makeNewComponent(
	config_obj *config_proto.Config,
	component *string) (*LogContext, error) {

	Log := logrus.New()
	Log.Out = ioutil.Discard
	Log.Level = logrus.DebugLevel

	if config_obj.Logging != nil &&
		config_obj.Logging.OutputDirectory != "" {
		base_directory := config_obj.Logging.OutputDirectory
		err := os.MkdirAll(base_directory, 0700)
		if err != nil {
			return nil, fmt.Errorf(
				"Unable to create logging directory %v: %w",
				base_directory, err)
		}

		base_filename := filepath.Join(base_directory, *component)
		pathMap := lfshook.WriterMap{
			logrus.DebugLevel: getRotator(config_obj, base_filename+"_debug.log"),
			logrus.InfoLevel:  getRotator(config_obj, base_filename+"_info.log"),
			logrus.WarnLevel:  getRotator(config_obj, base_filename+"_info.log"),
			logrus.ErrorLevel: getRotator(config_obj, base_filename+"_error.log"),
		}

		hook := lfshook.NewHook(pathMap, &logrus.JSONFormatter{
			DisableHTMLEscape: true,
		})
		Log.Hooks.Add(hook)
	}

	stderr_map := lfshook.WriterMap{
		logrus.PanicLevel: os.Stderr,
		logrus.FatalLevel: os.Stderr,
		logrus.ErrorLevel: os.Stderr,
		logrus.WarnLevel:  os.Stderr,
		logrus.InfoLevel:  os.Stderr,
	}

	if config_obj.Logging != nil && config_obj.Logging.Debug {
		stderr_map[logrus.DebugLevel] = os.Stderr
	}

	Log.Hooks.Add(lfshook.NewHook(stderr_map, &Formatter{}))
	Log.Hooks.Add(&memoryLogHook{})

	return &LogContext{Log}, nil
}

func getRotator(
	config_obj *config_proto.Config, base_path string) io.Writer {

	max_age := int64(86400 * 365)
	rotation := int64(86400 * 7)
	if config_obj.Logging != nil {
		if config_obj.Logging.MaxAge > 0 {
			max_age = config_obj.Logging.MaxAge
		}
		if config_obj.Logging.RotationTime > 0 {
			rotation = config_obj.Logging.RotationTime
		}
	}

	result, err := rotatelogs.New(
		base_path+".%Y-%m-%d.%H%M",
		rotatelogs.WithLinkName(base_path),
		rotatelogs.WithMaxAge(time.Duration(max_age)*time.Second),
		rotatelogs.WithRotationTime(time.Duration(rotation)*time.Second),
	)
	if err != nil {
		panic(err)
	}

	return result
}

func InitLogging(config_obj *config_proto.Config) error {
	mu.Lock()
	Manager = &LogManager{
		contexts: make(map[*string]*LogContext),
	}
	mu.Unlock()

	// Pre-build the well known components so a bad logging config
	// fails here rather than deep inside a worker.
	for _, component := range []*string{
		&GenericComponent, &FrontendComponent, &ToolComponent} {
		Manager.GetLogger(config_obj, component)
	}

	FlushPrelogs(config_obj)

	return nil
}

func GetLogger(
	config_obj *config_proto.Config, component *string) *LogContext {
	mu.Lock()
	manager := Manager
	mu.Unlock()

	if manager == nil {
		err := InitLogging(config_obj)
		if err != nil {
			panic(err)
		}

		mu.Lock()
		manager = Manager
		mu.Unlock()
	}

	return manager.GetLogger(config_obj, component)
}

// Discard all cached loggers. The next GetLogger() rebuilds them from
// whatever config it is given.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	Manager = nil
}

// Duplicate all log messages into the file, in addition to the
// per-component destinations.
func AddLogFile(filename string) error {
	fd, err := os.OpenFile(filename,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}

	writer_map := lfshook.WriterMap{
		logrus.ErrorLevel: fd,
		logrus.WarnLevel:  fd,
		logrus.InfoLevel:  fd,
		logrus.DebugLevel: fd,
	}

	hook := lfshook.NewHook(writer_map, &logrus.JSONFormatter{
		DisableHTMLEscape: true,
	})

	mu.Lock()
	manager := Manager
	mu.Unlock()

	if manager == nil {
		return nil
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()

	for _, log_ctx := range manager.contexts {
		log_ctx.Hooks.Add(hook)
	}
	return nil
}

// A human readable formatter for the terminal. The log methods accept
// markup like <green>...</> which is rendered as ANSI color on a tty
// and stripped everywhere else.
type Formatter struct{}

func (self *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	if SuppressLogging {
		return nil, nil
	}

	b := &bytes.Buffer{}

	fmt.Fprintf(b, "[%s] %v %s ",
		strings.ToUpper(entry.Level.String()),
		entry.Time.Format(time.RFC3339),
		clearTag(entry.Message))

	for k, v := range entry.Data {
		fmt.Fprintf(b, "%s=%v ", k, v)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func clearTag(message string) string {
	if useColor() {
		message = tag_regex.ReplaceAllStringFunc(
			message, func(tag string) string {
				matches := tag_regex.FindStringSubmatch(tag)
				code, pres := color_map[matches[1]]
				if pres {
					return code
				}
				return ""
			})
		return closing_tag_regex.ReplaceAllString(message, "\033[0m")
	}

	message = tag_regex.ReplaceAllString(message, "")
	return closing_tag_regex.ReplaceAllString(message, "")
}

func useColor() bool {
	return !NoColor && isatty.IsTerminal(os.Stderr.Fd())
}
