// Package render draws a square PNG preview of an extraction result.
//
// Devices are plotted as filled markers labeled with their block names and
// geometric wiring as connected polylines, on a grid with a legend. Both
// axes share one scale and the drawing's Y axis points up. Labeled wiring
// has no geometry and is not drawn.
//
// Labels use the built-in 7x13 bitmap face unless Options.FontPath names a
// TrueType or OpenType font; CJK block names need such a font to show.
//
// Render returns encoded bytes and touches no files.
package render
