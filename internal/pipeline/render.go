package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/protomerlab/protomer/internal/config"
)

// fanner is implemented by fan-out steps regardless of item type.
type fanner interface {
	FanInfo() (parallelism int, legs []string)
}

// Render prints the graph for the plan command: steps in topological
// order with dependencies, guards and resource classes, fan-out regions
// expanded one level, then the declarative resource specs the platform
// would provision. Nothing here executes.
func Render(g *Graph, specs map[string]config.ResourceSpec) string {
	var b strings.Builder

	names := g.Names()
	fmt.Fprintf(&b, "steps (%d):\n", len(names))
	for i, name := range names {
		fmt.Fprintf(&b, "  %2d. %s", i+1, name)
		if deps := g.Deps(name); len(deps) > 0 {
			fmt.Fprintf(&b, "  after: %s", strings.Join(deps, ", "))
		}
		if g.Guarded(name) {
			b.WriteString("  [conditional]")
		}
		if class := g.ResourceClass(name); class != "" {
			fmt.Fprintf(&b, "  class: %s", class)
		}
		b.WriteByte('\n')

		if f, ok := g.nodes[name].step.(fanner); ok {
			p, legs := f.FanInfo()
			fmt.Fprintf(&b, "      fan-out (max %d parallel): %s\n", p, strings.Join(legs, ", "))
		}
	}

	if len(specs) > 0 {
		b.WriteString("\nresource classes:\n")
		classes := make([]string, 0, len(specs))
		for c := range specs {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		for _, c := range classes {
			fmt.Fprintf(&b, "  %s: %s\n", c, renderSpec(specs[c]))
		}
	}

	return b.String()
}

func renderSpec(s config.ResourceSpec) string {
	parts := []string{s.MachineType}
	if s.AcceleratorCount > 0 {
		parts = append(parts, fmt.Sprintf("%dx %s", s.AcceleratorCount, s.AcceleratorType))
	}
	if s.BootDiskSizeGB > 0 {
		disk := fmt.Sprintf("%dGB", s.BootDiskSizeGB)
		if s.BootDiskType != "" {
			disk += " " + s.BootDiskType
		}
		parts = append(parts, disk)
	}
	for _, m := range s.NFSMounts {
		parts = append(parts, fmt.Sprintf("nfs %s:%s at %s", m.Server, m.Path, m.MountPoint))
	}
	return strings.Join(parts, ", ")
}
