// Package extract turns a drawing's entity sequence into a structured
// security inventory.
//
// The Engine makes one forward pass. Block references and attribute
// definitions whose names match a security keyword become SecurityDevices.
// Matching TEXT and MTEXT content becomes a TextAnnotation, and also a
// labeled WiringSegment when it names a cable. Every LINE and polyline
// becomes a geometric WiringSegment, with no proximity test against devices.
//
// Output lists follow drawing order. Metadata.TotalEntities is the
// untruncated modelspace count, so callers can tell when the scan cap was
// hit. Entities that cannot be decoded or normalized are counted in
// Metadata.SkippedEntities and logged; they never abort the pass.
package extract
