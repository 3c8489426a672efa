package availability

// State of the load gate.
type State int

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// Gate blocks resolution until template, settings, exceptions and slots are loaded.
// It only moves from Loading to Ready.
type Gate struct {
	TemplateLoaded   bool
	SettingsLoaded   bool
	ExceptionsLoaded bool
	SlotsLoaded      bool

	TemplateEntries     int
	SlotDurationMinutes int

	state State
}

// Ready reports whether every load condition holds.
func (g *Gate) Ready() bool {
	return g.TemplateLoaded &&
		g.SettingsLoaded &&
		g.ExceptionsLoaded &&
		g.SlotsLoaded &&
		g.TemplateEntries > 0 &&
		g.SlotDurationMinutes > 0
}

// State returns the current gate state.
func (g *Gate) State() State {
	return g.state
}

// advance opens the gate when all conditions hold and reports whether it opened on this call.
func (g *Gate) advance() bool {
	if g.state == StateLoading && g.Ready() {
		g.state = StateReady
		return true
	}
	return false
}
