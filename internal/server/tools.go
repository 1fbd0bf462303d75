package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Tool names.
const (
	ToolParseDrawing    = "cad_parse_drawing"
	ToolExtract         = "cad_extract"
	ToolExportInventory = "cad_export_inventory"
	ToolHistory         = "cad_history"
	ToolHealth          = "cad_health"
)

func filePathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"minLength":   1,
		"description": "Path to a .dxf or .dwg drawing, or an s3://bucket/key object",
	}
}

func maxEntitiesProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"minimum":     1,
		"description": "Scan at most this many modelspace entities. Defaults to the server's configured cap (3000)",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: ToolParseDrawing,
			Description: "Analyze a CAD drawing for security devices. Returns the response document: filename, time, " +
				"a base64 PNG layout preview, metadata, the summarization service's analysis and the raw extraction result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": filePathProperty(),
					"model_choice": map[string]interface{}{
						"type":        "string",
						"description": "Summarization model, e.g. qwen-turbo or qwen-plus. Defaults to the configured model",
					},
					"max_entities": maxEntitiesProperty(),
				},
				"required":             []string{"file_path"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolExtract,
			Description: "Extract security devices, matching text annotations and candidate wiring from a drawing without rendering or summarizing.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path":    filePathProperty(),
					"max_entities": maxEntitiesProperty(),
				},
				"required":             []string{"file_path"},
				"additionalProperties": false,
			},
		},
		{
			Name: ToolExportInventory,
			Description: "Extract a drawing and return a device inventory workbook (XLSX with Devices, Annotations and Wiring sheets). " +
				"The workbook is returned base64-encoded, or written to output_path when given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path":    filePathProperty(),
					"max_entities": maxEntitiesProperty(),
					"output_path": map[string]interface{}{
						"type":        "string",
						"minLength":   1,
						"description": "Optional path to write the .xlsx file to instead of returning its bytes",
					},
				},
				"required":             []string{"file_path"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolHistory,
			Description: "List recently analyzed drawings, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"maximum":     1000,
						"description": "Maximum number of records. Default 50",
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolHealth,
			Description: "Liveness check. Returns {\"status\": \"healthy\"}.",
			InputSchema: map[string]interface{}{
				"type":                 "object",
				"properties":           map[string]interface{}{},
				"additionalProperties": false,
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

// compileSchemas compiles each tool's input schema once.
func compileSchemas(tools []Tool) (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	for _, t := range tools {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", t.Name, err)
		}
		if err := compiler.AddResource(t.Name+".json", bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", t.Name, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(tools))
	for _, t := range tools {
		schema, err := compiler.Compile(t.Name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t.Name, err)
		}
		out[t.Name] = schema
	}
	return out, nil
}

// validateArguments checks args against the tool's input schema. Missing
// arguments are validated as an empty object.
func (s *Server) validateArguments(name string, args json.RawMessage) error {
	schema, ok := s.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if len(bytes.TrimSpace(args)) == 0 || string(bytes.TrimSpace(args)) == "null" {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}
