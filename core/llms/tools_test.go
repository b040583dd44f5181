package llms

import "testing"

func TestNewToolExecuteDecodesArguments(t *testing.T) {
	tool := NewTool("open_url", "Opens a URL",
		map[string]ParameterBase{
			"url": {Type: "string", Description: "The URL to open"},
		},
		func(parameters struct {
			URL string `json:"url"`
		}) (string, error) {
			return "Opened URL: " + parameters.URL, nil
		})

	status, err := tool.Execute(`{"url": "https://youtube.com"}`)
	if err != nil {
		t.Fatalf("expected execute to succeed, got %v", err)
	}
	if status != "Opened URL: https://youtube.com" {
		t.Fatalf("expected status with URL, got %q", status)
	}
}

func TestNewToolExecuteReportsMalformedArguments(t *testing.T) {
	tool := NewTool("run_app", "Launches an app",
		map[string]ParameterBase{
			"app_name": {Type: "string"},
		},
		func(parameters struct {
			AppName string `json:"app_name"`
		}) (string, error) {
			return "Launched application: " + parameters.AppName, nil
		})

	if _, err := tool.Execute(`{"app_name": `); err == nil {
		t.Fatalf("expected execute with malformed arguments to fail")
	}
}

func TestFindTool(t *testing.T) {
	tools := []Tool{
		NewTool("open_url", "", nil, func(struct{}) (string, error) { return "", nil }),
		NewTool("run_app", "", nil, func(struct{}) (string, error) { return "", nil }),
	}

	tool, ok := FindTool(tools, "run_app")
	if !ok {
		t.Fatalf("expected to find run_app")
	}
	if tool.Function.Name != "run_app" {
		t.Fatalf("expected run_app, got %q", tool.Function.Name)
	}

	if _, ok := FindTool(tools, "format_disk"); ok {
		t.Fatalf("expected unknown tool lookup to fail")
	}
}
