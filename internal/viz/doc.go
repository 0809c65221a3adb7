// Package viz renders tracer fields in the terminal.
//
// [Model] is a Bubble Tea program that integrates an assembled model and
// draws the vertical profile of one tracer on a Braille [Canvas]. [Profile]
// and [Series] produce static asciigraph plots for saved runs, and
// [ParamTable] renders a parameters value with lipgloss.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial state
//	Tab   - Next tracer
//	↑/↓   - More/fewer steps per frame
//	[ ]   - Time travel through recent frames
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
