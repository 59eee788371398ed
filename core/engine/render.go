package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/core/topology"
)

// Render writes a fixed-width view of st: one row of eight modules per subset
// showing the holding connector ("--" idle, "xx" dead) followed by the relays
// of that subset, then the mux row.
func Render(w io.Writer, st *state.SystemState) error {
	var b strings.Builder
	for s := 1; s <= topology.SubsetCount; s++ {
		fmt.Fprintf(&b, "S%d |", s)
		begin := topology.SubsetBegin(s)
		for m := begin; m < begin+topology.SubsetSize; m++ {
			b.WriteString(" " + moduleCell(st.Module(m)))
		}
		b.WriteString(" |")
		for _, r := range topology.RelaysOfSubset(s) {
			fmt.Fprintf(&b, " %d:%s", r.ID, onOff(st.RelayOn(r.ID)))
		}
		b.WriteByte('\n')
	}
	b.WriteString("MUX")
	for _, mux := range topology.Muxes() {
		fmt.Fprintf(&b, " %d:%s", mux.ID, onOff(st.MuxOn(mux.ID)))
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func moduleCell(m *model.Module) string {
	switch {
	case m == nil:
		return "??"
	case !m.Alive:
		return "xx"
	case !m.Active:
		return "--"
	default:
		return fmt.Sprintf("%02d", m.Connector)
	}
}

func onOff(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
