package app

import "fmt"

// Phase is a fixed slot within a tick. Phases run in declaration order.
type Phase int

const (
	First Phase = iota
	PreUpdate
	Update
	PostUpdate
	Last

	phaseCount
)

var phaseNames = [phaseCount]string{"First", "PreUpdate", "Update", "PostUpdate", "Last"}

func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// System is a unit of work run once per tick.
type System interface {
	Run(w *World)
}

// SystemFunc adapts a function to System.
type SystemFunc func(w *World)

// Run calls f(w).
func (f SystemFunc) Run(w *World) {
	f(w)
}

type namedSystem struct {
	name string
	System
}

// Named attaches a name to a system for logging.
func Named(name string, s System) System {
	return namedSystem{name: name, System: s}
}

// SystemName returns the name given to Named, or the dynamic type of s.
func SystemName(s System) string {
	if n, ok := s.(namedSystem); ok {
		return n.name
	}
	return fmt.Sprintf("%T", s)
}

// Schedule holds systems per phase.
type Schedule struct {
	phases [phaseCount][]System
}

// NewSchedule creates an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add appends a system to a phase. Nil systems are ignored.
func (s *Schedule) Add(phase Phase, system System) {
	if phase < 0 || phase >= phaseCount {
		panic(fmt.Sprintf("app: invalid phase %d", int(phase)))
	}
	if system == nil {
		return
	}
	s.phases[phase] = append(s.phases[phase], system)
}

// Run executes every phase in order, and every system of a phase in the order
// it was added.
func (s *Schedule) Run(w *World) {
	for _, systems := range s.phases {
		for _, system := range systems {
			system.Run(w)
		}
	}
}

// Systems returns a copy of the systems registered for a phase.
func (s *Schedule) Systems(phase Phase) []System {
	if phase < 0 || phase >= phaseCount {
		return nil
	}
	systems := make([]System, 0, len(s.phases[phase]))
	return append(systems, s.phases[phase]...)
}
