package kernel

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Dump writes a human-readable summary of the model: loop stack, variables,
// constants, and access tables.
func (m *Model) Dump(w io.Writer) {
	m.dumpLoopStack(w)
	m.dumpVariables(w)
	m.dumpConstants(w)
	m.dumpAccesses(w, "data sources", m.Sources)
	m.dumpAccesses(w, "data destinations", m.Destinations)
}

func (m *Model) dumpLoopStack(w io.Writer) {
	fmt.Fprintln(w, "loop stack:")

	tw := tabwriter.NewWriter(w, 4, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  idx\tstart\tbound\tstep")
	for _, dim := range m.LoopStack {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%+d\n",
			dim.Index, dim.Start, dim.Bound, dim.Step)
	}
	tw.Flush()
}

func (m *Model) dumpVariables(w io.Writer) {
	fmt.Fprintln(w, "variables:")

	tw := tabwriter.NewWriter(w, 4, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  name\ttype\tshape")
	for _, name := range sortedKeys(m.Variables) {
		v := m.Variables[name]
		shape := "scalar"
		if !v.IsScalar() {
			dims := make([]string, len(v.Shape))
			for i, d := range v.Shape {
				dims[i] = fmt.Sprintf("%d", d)
			}
			shape = "[" + strings.Join(dims, "][") + "]"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", name, v.Type, shape)
	}
	tw.Flush()
}

func (m *Model) dumpConstants(w io.Writer) {
	fmt.Fprintln(w, "constants:")
	for _, name := range sortedKeys(m.Constants) {
		fmt.Fprintf(w, "  %s = %d\n", name, m.Constants[name])
	}
}

func (m *Model) dumpAccesses(
	w io.Writer,
	title string,
	table map[string][]Access,
) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, name := range sortedKeys(table) {
		parts := make([]string, len(table[name]))
		for i, a := range table[name] {
			parts[i] = a.String()
		}
		fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(parts, ", "))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
