// Package server implements the MCP (Model Context Protocol) server for CAD
// security-device analysis.
//
// This package provides a JSON-RPC 2.0 server that exposes the drawing
// analysis pipeline through the MCP protocol, so assistants can inspect
// security layouts in DXF and DWG drawings.
//
// # Protocol
//
// Requests arrive on stdin as newline-delimited JSON-RPC 2.0 messages and
// responses are written to stdout, one per line. Logs go to stderr.
//
// Methods: initialize, notifications/initialized, tools/list, tools/call
// and ping.
//
// # Available Tools
//
//   - cad_parse_drawing: Full analysis (preview image, summary, raw result)
//   - cad_extract: Extraction result only
//   - cad_export_inventory: XLSX device inventory
//   - cad_history: Recently analyzed drawings
//   - cad_health: Liveness
//
// # Error Handling
//
// Arguments are validated against each tool's input schema before the tool
// runs; mismatches return -32602. Tool failures return -32000 with data
// {"category": "not_found" | "bad_request" | "server_error", "detail": "..."}.
//
// # Usage
//
//	srv, err := server.New(orchestrator, server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx, os.Stdin, os.Stdout)
package server
