package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		ToolParseDrawing,
		ToolExtract,
		ToolExportInventory,
		ToolHistory,
		ToolHealth,
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"]; !ok {
				t.Error("InputSchema missing 'properties' field")
			}
		})
	}
}

func TestToolDefinitions_RequiredFilePath(t *testing.T) {
	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for _, name := range []string{ToolParseDrawing, ToolExtract, ToolExportInventory} {
		t.Run(name, func(t *testing.T) {
			required, ok := toolMap[name].InputSchema["required"].([]string)
			if !ok {
				t.Fatal("'required' should be a string slice")
			}
			if len(required) != 1 || required[0] != "file_path" {
				t.Errorf("required: got %v, want [file_path]", required)
			}
		})
	}
}

func TestToolDefinitions_JSONSerializable(t *testing.T) {
	data, err := json.Marshal(GetToolDefinitions())
	if err != nil {
		t.Fatalf("Failed to marshal tools: %v", err)
	}
	var decoded []Tool
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal tools: %v", err)
	}
}

func TestValidateArguments(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr bool
	}{
		{"parse ok", ToolParseDrawing, `{"file_path":"/a.dxf","model_choice":"qwen-plus","max_entities":10}`, false},
		{"parse missing path", ToolParseDrawing, `{"model_choice":"qwen-plus"}`, true},
		{"parse empty path", ToolParseDrawing, `{"file_path":""}`, true},
		{"parse path not string", ToolParseDrawing, `{"file_path":42}`, true},
		{"parse zero cap", ToolParseDrawing, `{"file_path":"/a.dxf","max_entities":0}`, true},
		{"parse fractional cap", ToolParseDrawing, `{"file_path":"/a.dxf","max_entities":1.5}`, true},
		{"parse unknown key", ToolParseDrawing, `{"file_path":"/a.dxf","path":"/b.dxf"}`, true},
		{"extract ok", ToolExtract, `{"file_path":"s3://bucket/plan.dwg"}`, false},
		{"history no args", ToolHistory, ``, false},
		{"history null args", ToolHistory, `null`, false},
		{"history limit too big", ToolHistory, `{"limit":5000}`, true},
		{"health", ToolHealth, `{}`, false},
		{"unknown tool", "cad_delete_everything", `{}`, true},
		{"not json", ToolExtract, `{"file_path":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.validateArguments(tt.tool, json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateArguments: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
