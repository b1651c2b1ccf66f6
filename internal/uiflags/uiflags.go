// Package uiflags holds the small block of user-toggleable display state
// (freeze, realtime mode, auxiliary-process filter, units, auto-hide, trim,
// which collectors are visible, quit) that the main loop's key-handling
// step writes and every displayer read step reads. It's a single-writer
// struct by convention, not by synchronization: only the main loop
// goroutine ever mutates it, between a tick's key-poll and its output
// step, so no locking is needed.
package uiflags

// Flags is the live UI state for one running session, matching the global
// UI flag set named in spec §5: freeze, filter_aux, display_units,
// autohide_fields, notrim, realtime.
type Flags struct {
	// Paused ("freeze") stops sampling/rendering from advancing, leaving
	// the last frame on screen, toggled by 'f'.
	Paused bool
	// Realtime disables the inter-tick sleep, sampling as fast as the
	// collectors allow, toggled by 'r'.
	Realtime bool
	// FilterAux hides auxiliary Postgres processes (anything not of type
	// backend or autovacuum) from the Postgres panel, toggled by 's'. The
	// rows are still collected; only display is affected.
	FilterAux bool
	// DisplayUnits is toggled by 'u'. No displayer reads it: numeric
	// columns are always shown as raw numbers.
	DisplayUnits bool
	// AutohideFields is toggled by 'a'. No displayer reads it: columns are
	// dropped only for width, never for being all-ok.
	AutohideFields bool
	// Notrim is toggled by 't'. No displayer reads it: long cells are
	// always truncated to their column's MaxWidth.
	Notrim bool
	// ShowHelp overlays the key-binding help block instead of the normal
	// panels, toggled by 'h'.
	ShowHelp bool
	// Quit is set once the user presses 'q'; the main loop checks it once
	// per tick and exits cleanly, matching spec §5's cancellation rule.
	Quit bool
	// HiddenCollectors is the set of collector Ident()s currently toggled
	// off from display (but still sampled, so toggling back on shows
	// up-to-date data immediately).
	HiddenCollectors map[string]bool
}

// New returns a Flags with its defaults: nothing paused, nothing hidden.
func New() *Flags {
	return &Flags{HiddenCollectors: map[string]bool{}}
}

// Toggle flips whether ident is hidden.
func (f *Flags) Toggle(ident string) {
	f.HiddenCollectors[ident] = !f.HiddenCollectors[ident]
}

// Visible reports whether ident should currently be rendered.
func (f *Flags) Visible(ident string) bool {
	return !f.HiddenCollectors[ident]
}
