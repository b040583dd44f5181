package commands

import (
	"errors"
	"strings"
	"testing"
)

func fakeExecutor(goos string, runErr error) (*SystemExecutor, *[][]string) {
	var runs [][]string
	executor := &SystemExecutor{
		goos: goos,
		run: func(name string, args ...string) error {
			runs = append(runs, append([]string{name}, args...))
			return runErr
		},
	}
	return executor, &runs
}

func TestOpenURLAddsSchemeAndUsesPlatformOpener(t *testing.T) {
	executor, runs := fakeExecutor("linux", nil)

	status := executor.OpenURL("youtube.com")

	if len(*runs) != 1 {
		t.Fatalf("expected 1 command run, got %d", len(*runs))
	}
	if got := (*runs)[0]; got[0] != "xdg-open" || got[1] != "https://youtube.com" {
		t.Fatalf("unexpected command: %v", got)
	}
	if !strings.Contains(status, "https://youtube.com") {
		t.Fatalf("expected status to mention the url, got %q", status)
	}
}

func TestOpenURLFailureBecomesStatusString(t *testing.T) {
	executor, _ := fakeExecutor("linux", errors.New("no browser"))

	status := executor.OpenURL("https://example.com")

	if !strings.Contains(status, "Не удалось") {
		t.Fatalf("expected a failure status, got %q", status)
	}
}

func TestOpenPathMissingPathReported(t *testing.T) {
	executor, runs := fakeExecutor("linux", nil)

	status := executor.OpenPath("/definitely/not/there")

	if len(*runs) != 0 {
		t.Fatalf("expected no command run for a missing path, got %v", *runs)
	}
	if !strings.Contains(status, "не найден") {
		t.Fatalf("expected a not-found status, got %q", status)
	}
}

func TestOpenPathExpandsHome(t *testing.T) {
	executor, runs := fakeExecutor("darwin", nil)
	t.Setenv("HOME", t.TempDir())

	status := executor.OpenPath("~")

	if len(*runs) != 1 {
		t.Fatalf("expected 1 command run, got %d (%q)", len(*runs), status)
	}
	if got := (*runs)[0]; got[0] != "open" || strings.HasPrefix(got[1], "~") {
		t.Fatalf("expected expanded path passed to open, got %v", got)
	}
}

func TestRunAppPerPlatform(t *testing.T) {
	executor, runs := fakeExecutor("darwin", nil)
	executor.RunApp("Telegram")
	if got := (*runs)[0]; got[0] != "open" || got[1] != "-a" || got[2] != "Telegram" {
		t.Fatalf("unexpected darwin command: %v", got)
	}

	executor, runs = fakeExecutor("windows", nil)
	executor.RunApp("Telegram")
	if got := (*runs)[0]; got[0] != "cmd" {
		t.Fatalf("unexpected windows command: %v", got)
	}

	executor, runs = fakeExecutor("linux", nil)
	executor.RunApp("Telegram")
	if got := (*runs)[0]; got[0] != "telegram" {
		t.Fatalf("unexpected linux command: %v", got)
	}
}

func TestExecuteDispatchesKnownActions(t *testing.T) {
	executor, runs := fakeExecutor("linux", nil)

	Execute(executor, Invocation{Name: ActionOpenURL, Arguments: map[string]string{"url": "https://example.com"}})
	if len(*runs) != 1 {
		t.Fatalf("expected dispatch to run a command, got %d", len(*runs))
	}

	status := Execute(executor, Invocation{Name: "erase_disk"})
	if len(*runs) != 1 {
		t.Fatalf("expected unknown action not to run anything, got %d", len(*runs))
	}
	if !strings.Contains(status, "Неизвестное") {
		t.Fatalf("expected unknown-action status, got %q", status)
	}
}
