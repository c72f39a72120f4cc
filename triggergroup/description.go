package triggergroup

import (
	"fmt"
	"strings"
)

// Description returns a human-readable summary of the group composition,
// for example "3 instruments: primary scope1; secondaries scope2, scope3".
func (g *Group) Description() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.instrumentCount()
	if n == 0 {
		return "no instruments"
	}

	var b strings.Builder
	if n == 1 {
		b.WriteString("1 instrument: ")
	} else {
		fmt.Fprintf(&b, "%d instruments: ", n)
	}

	if g.primary != nil {
		fmt.Fprintf(&b, "primary %s", g.primary.Name())
	} else {
		b.WriteString("no primary")
	}

	if len(g.secondaries) > 0 {
		names := make([]string, len(g.secondaries))
		for i, s := range g.secondaries {
			names[i] = s.Name()
		}
		if len(names) == 1 {
			fmt.Fprintf(&b, "; secondary %s", names[0])
		} else {
			fmt.Fprintf(&b, "; secondaries %s", strings.Join(names, ", "))
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (g *Group) String() string {
	return fmt.Sprintf("trigger group %s (%s)", g.config.ID, g.Description())
}
