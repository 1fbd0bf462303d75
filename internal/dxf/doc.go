// Package dxf reads ASCII DXF drawings into typed modelspace entities.
//
// The reader is deliberately narrow: it understands the HEADER variables
// that affect text decoding and units ($ACADVER, $DWGCODEPAGE, $INSUNITS),
// the LAYER table, and the ENTITIES section. BLOCKS, OBJECTS and the other
// sections are skipped.
//
// # Entities
//
// Entity is a sealed sum type. Every modelspace record becomes exactly one of
// BlockReference, AttributeDefinition, Text, MText, Line, Polyline or Other.
// ATTRIB and VERTEX records are attached to the INSERT or POLYLINE that owns
// them and are not counted separately. Records with group 67 set to 1 belong
// to paperspace and are dropped.
//
// # Lazy decoding
//
// Parse tokenizes the file once and keeps each entity's raw group list.
// Document.Entities decodes records on demand, in file order, up to a cap.
// A record that fails to decode is reported as an *EntityError and the
// sequence continues with the next record.
//
// # Text
//
// Files older than AC1021 store strings in the code page named by
// $DWGCODEPAGE; those strings are converted to UTF-8. \U+XXXX escapes are
// decoded for every version. Text.Plain and MText.Plain return display text
// with control and formatting codes removed.
package dxf
