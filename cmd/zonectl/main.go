// Command zonectl checks and exports zone definitions.
//
// Usage:
//
//	go run ./cmd/zonectl validate -file zones.geojson
//	go run ./cmd/zonectl export -out zones.geojson
//
// Without -file both subcommands operate on the built-in zones.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/registry"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: zonectl <validate|export> [flags]")
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "GeoJSON zones file (default: built-in zones)")
	out := fs.String("out", "", "output path for export (default: stdout)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	reg, err := registry.Load(*file)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load zones: %v\n", err)
		return 1
	}

	switch args[0] {
	case "validate":
		return validate(reg, stdout)
	case "export":
		return export(reg, *out, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}
}

func validate(reg *registry.Registry, w io.Writer) int {
	fmt.Fprintln(w, "=== Zone Validation ===")
	fmt.Fprintln(w)

	phases := []*phase{
		validateScores(reg),
		validateOwnership(reg),
		validateMeetingPoints(reg),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	for _, z := range reg.All() {
		level := domain.DangerFromAVCD(z.AVCD)
		fmt.Fprintf(w, "  %-16s AVCD=%-5s CMSR=%-5s %-6s population=%d affected=%d\n",
			z.ID, fmt.Sprint(z.AVCD), fmt.Sprint(z.CMSR), level.Level, z.Population, z.EstimatedAffected())
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintf(w, "\nAll %d zones passed.\n", reg.Len())
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// validateScores checks AVCD and CMSR are percentages.
func validateScores(reg *registry.Registry) *phase {
	p := &phase{name: "Scores within 0-100"}
	for _, z := range reg.All() {
		if z.AVCD < 0 || z.AVCD > 100 {
			p.errorf("%s: AVCD %v out of range", z.ID, z.AVCD)
		}
		if z.CMSR < 0 || z.CMSR > 100 {
			p.errorf("%s: CMSR %v out of range", z.ID, z.CMSR)
		}
	}
	return p
}

// validateOwnership checks each zone's center resolves back to that zone,
// which catches overlapping polygons and self-intersecting rings.
func validateOwnership(reg *registry.Registry) *phase {
	p := &phase{name: "Zone centers resolve to own zone"}
	for _, z := range reg.All() {
		c := z.Center()
		got, err := reg.Locate(c)
		switch {
		case err != nil:
			p.errorf("%s: center (%.5f, %.5f) is outside every zone", z.ID, c.Lat, c.Lon)
		case got.ID != z.ID:
			p.errorf("%s: center (%.5f, %.5f) resolves to %s", z.ID, c.Lat, c.Lon, got.ID)
		}
	}
	return p
}

// validateMeetingPoints checks meeting point ids are unique within a zone
// and that each point is inside some zone.
func validateMeetingPoints(reg *registry.Registry) *phase {
	p := &phase{name: "Meeting points"}
	for _, z := range reg.All() {
		seen := make(map[string]bool, len(z.MeetingPoints))
		for _, mp := range z.MeetingPoints {
			if mp.ID == "" {
				p.errorf("%s: meeting point %q has no id", z.ID, mp.Name)
			} else if seen[mp.ID] {
				p.errorf("%s: duplicate meeting point id %q", z.ID, mp.ID)
			}
			seen[mp.ID] = true
			if _, err := reg.Locate(mp.Coord); err != nil {
				p.errorf("%s: meeting point %q is outside every zone", z.ID, mp.ID)
			}
		}
	}
	return p
}

func export(reg *registry.Registry, path string, stdout, stderr io.Writer) int {
	data, err := json.MarshalIndent(reg.GeoJSON(), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: encode geojson: %v\n", err)
		return 1
	}
	data = append(data, '\n')

	if path == "" {
		if _, err := stdout.Write(data); err != nil {
			fmt.Fprintf(stderr, "FATAL: write geojson: %v\n", err)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "FATAL: write %s: %v\n", path, err)
		return 1
	}
	fmt.Fprintf(stderr, "Wrote %d zones to %s\n", reg.Len(), path)
	return 0
}
