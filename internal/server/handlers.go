package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/export"
	"github.com/ironsheep/cad-analyzer-mcp/internal/pipeline"
	"github.com/ironsheep/cad-analyzer-mcp/internal/source"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "cad_parse_drawing").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tool call's error.
type ToolErrorData struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Arguments that do not match the tool's schema return -32602. Tool
// execution errors return -32000 with a ToolErrorData payload.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if err := s.validateArguments(params.Name, params.Arguments); err != nil {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, CodeToolFailed, "Tool execution failed", ToolErrorData{
			Category: common.CategoryOf(err),
			Detail:   common.Detail(err),
		})
	}

	text, err := marshalJSON(result)
	if err != nil {
		s.logger.Error("failed to encode tool result", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, CodeToolFailed, "Tool execution failed", ToolErrorData{
			Category: common.CategoryServerError,
			Detail:   "Failed to encode result: " + err.Error(),
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
// Arguments have already been validated against the tool's schema.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case ToolParseDrawing:
		return s.handleParseDrawing(ctx, args)
	case ToolExtract:
		return s.handleExtract(ctx, args)
	case ToolExportInventory:
		return s.handleExportInventory(ctx, args)
	case ToolHistory:
		return s.handleHistory(ctx, args)
	case ToolHealth:
		return map[string]string{"status": "healthy"}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// marshalJSON converts a value to a pretty-printed JSON string. CJK text
// and symbols are left unescaped.
func marshalJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(args)) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return common.NewAppError("INVALID_INPUT", err.Error(), common.ErrInvalidInput)
	}
	return nil
}

type parseDrawingArgs struct {
	FilePath    string `json:"file_path"`
	ModelChoice string `json:"model_choice"`
	MaxEntities int    `json:"max_entities"`
}

func (s *Server) handleParseDrawing(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a parseDrawingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Process(ctx, pipeline.Request{
		FilePath:    a.FilePath,
		ModelChoice: a.ModelChoice,
		MaxEntities: a.MaxEntities,
	})
}

type extractArgs struct {
	FilePath    string `json:"file_path"`
	MaxEntities int    `json:"max_entities"`
}

func (s *Server) handleExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a extractArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Extract(ctx, a.FilePath, a.MaxEntities)
}

type exportInventoryArgs struct {
	FilePath    string `json:"file_path"`
	MaxEntities int    `json:"max_entities"`
	OutputPath  string `json:"output_path"`
}

// InventoryResult describes an exported workbook.
type InventoryResult struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int    `json:"size_bytes"`
	OutputPath  string `json:"output_path,omitempty"`
	DataBase64  string `json:"data_base64,omitempty"`
	Devices     int    `json:"devices"`
	Annotations int    `json:"annotations"`
	Wiring      int    `json:"wiring"`
}

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportInventory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a exportInventoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	res, err := s.svc.ExtractForExport(ctx, a.FilePath, a.MaxEntities)
	if err != nil {
		return nil, err
	}
	data, err := export.InventoryXLSX(res)
	if err != nil {
		return nil, common.NewAppError("EXPORT_ERROR", "Failed to build inventory: "+err.Error(), err)
	}

	base := source.Base(a.FilePath)
	out := InventoryResult{
		Filename:    strings.TrimSuffix(base, filepath.Ext(base)) + "-inventory.xlsx",
		MimeType:    xlsxMimeType,
		SizeBytes:   len(data),
		Devices:     len(res.SecurityDevices),
		Annotations: len(res.TextAnnotations),
		Wiring:      len(res.Wiring),
	}
	if a.OutputPath != "" {
		if err := os.WriteFile(a.OutputPath, data, 0o644); err != nil {
			return nil, common.NewAppError("EXPORT_ERROR", "Failed to write "+a.OutputPath+": "+err.Error(), err)
		}
		out.OutputPath = a.OutputPath
		return out, nil
	}
	out.DataBase64 = base64.StdEncoding.EncodeToString(data)
	return out, nil
}

type historyArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a historyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	recs, err := s.svc.History(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"records": recs}, nil
}
