// Package pipeline sequences a drawing request: resolve the input, convert
// DWG to DXF when needed, read and extract, render the preview, summarize,
// and assemble the response document. Every temporary file a request
// creates is removed before the request returns, on success or failure.
package pipeline
