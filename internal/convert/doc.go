// Package convert turns DWG drawings into DXF by running an external
// converter (ODA File Converter or LibreDWG's dwg2dxf). Output goes to a
// private temporary directory that the caller removes through the returned
// cleanup function.
package convert
