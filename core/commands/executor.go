package commands

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Executor performs the local actions the assistant can request. Every method
// returns a human-readable status string and never propagates an error past
// its own boundary; failures become part of the status.
type Executor interface {
	OpenURL(url string) string
	OpenPath(path string) string
	RunApp(name string) string
}

// SystemExecutor opens URLs, paths and applications with the host OS tools.
type SystemExecutor struct {
	// goos overrides runtime.GOOS in tests.
	goos string
	run  func(name string, args ...string) error
}

var _ Executor = (*SystemExecutor)(nil)

func NewSystemExecutor() *SystemExecutor {
	return &SystemExecutor{
		goos: runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
}

func (e *SystemExecutor) OpenURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	var err error
	switch e.goos {
	case "darwin":
		err = e.run("open", url)
	case "windows":
		err = e.run("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		err = e.run("xdg-open", url)
	}
	if err != nil {
		logger.Warn("failed to open url", "url", url, "error", err)
		return fmt.Sprintf("Не удалось открыть ссылку %s", url)
	}
	return fmt.Sprintf("Открываю %s", url)
}

func (e *SystemExecutor) OpenPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warn("path does not exist", "path", path, "error", err)
		return fmt.Sprintf("Путь %s не найден", path)
	}

	var err error
	switch e.goos {
	case "darwin":
		err = e.run("open", path)
	case "windows":
		err = e.run("explorer", path)
	default:
		err = e.run("xdg-open", path)
	}
	if err != nil {
		logger.Warn("failed to open path", "path", path, "error", err)
		return fmt.Sprintf("Не удалось открыть %s", path)
	}
	return fmt.Sprintf("Открываю %s", path)
}

func (e *SystemExecutor) RunApp(name string) string {
	var err error
	switch e.goos {
	case "darwin":
		err = e.run("open", "-a", name)
	case "windows":
		err = e.run("cmd", "/c", "start", "", name)
	default:
		err = e.run(strings.ToLower(name))
	}
	if err != nil {
		logger.Warn("failed to run app", "app", name, "error", err)
		return fmt.Sprintf("Не удалось запустить %s", name)
	}
	return fmt.Sprintf("Запускаю %s", name)
}

// IsFailure reports whether a status string describes a failed action. The
// executor never returns errors, so failures are visible only through the
// status text.
func IsFailure(status string) bool {
	return strings.HasPrefix(status, "Не удалось") ||
		strings.HasPrefix(status, "Неизвестное") ||
		strings.Contains(status, "не найден")
}

// Execute dispatches an extracted invocation to the matching action. Unknown
// actions are reported, not executed.
func Execute(executor Executor, invocation Invocation) string {
	switch invocation.Name {
	case ActionOpenURL:
		return executor.OpenURL(invocation.Arguments["url"])
	case ActionOpenPath:
		return executor.OpenPath(invocation.Arguments["path"])
	case ActionRunApp:
		return executor.RunApp(invocation.Arguments["app_name"])
	default:
		logger.Warn("skipping unknown action", "action", invocation.Name)
		return fmt.Sprintf("Неизвестное действие %s", invocation.Name)
	}
}
