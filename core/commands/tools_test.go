package commands

import (
	"testing"

	"github.com/dkurenkov/veles/core/llms"
)

func TestToolsExecuteThroughExecutor(t *testing.T) {
	executor, runs := fakeExecutor("linux", nil)
	tools := Tools(executor)

	tool, ok := llms.FindTool(tools, ActionOpenURL)
	if !ok {
		t.Fatal("expected open_url tool to be defined")
	}

	status, err := tool.Execute(`{"url":"https://example.com"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status == "" {
		t.Fatal("expected a status string")
	}
	if len(*runs) != 1 {
		t.Fatalf("expected the executor to be invoked once, got %d", len(*runs))
	}
}

func TestToolsCoverAllActions(t *testing.T) {
	tools := Tools(NewSystemExecutor())
	for _, name := range []string{ActionOpenURL, ActionOpenPath, ActionRunApp} {
		if _, ok := llms.FindTool(tools, name); !ok {
			t.Fatalf("expected tool %q to be defined", name)
		}
	}
}
