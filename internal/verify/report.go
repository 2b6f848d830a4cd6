package verify

import (
	"fmt"
	"sort"
	"strings"
)

// StructureReport collects the goals that refer to one structure
type StructureReport struct {
	Structure string
	Goals     []*Outcome
	Status    Status // worst status among Goals
}

// AllProved returns true if every goal was proved
func (r *StructureReport) AllProved() bool {
	for _, o := range r.Goals {
		if o.Status != Proved {
			return false
		}
	}
	return len(r.Goals) > 0
}

// freeStanding groups goals that use no structure at all
const freeStanding = "(no structure)"

// BuildReport groups outcomes by the structures each goal refers to
// directly. A goal about several structures appears under each of them.
func BuildReport(outcomes []*Outcome) []*StructureReport {
	byName := make(map[string]*StructureReport)
	add := func(name string, o *Outcome) {
		r, ok := byName[name]
		if !ok {
			r = &StructureReport{Structure: name, Status: Proved}
			byName[name] = r
		}
		r.Goals = append(r.Goals, o)
		if statusWorse(o.Status, r.Status) {
			r.Status = o.Status
		}
	}

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if len(o.Roots) == 0 {
			add(freeStanding, o)
			continue
		}
		for _, s := range o.Roots {
			add(s, o)
		}
	}

	reports := make([]*StructureReport, 0, len(byName))
	for _, r := range byName {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		// free-standing goals last
		if (reports[i].Structure == freeStanding) != (reports[j].Structure == freeStanding) {
			return reports[j].Structure == freeStanding
		}
		return reports[i].Structure < reports[j].Structure
	})
	return reports
}

// statusWorse returns true if a is worse than b in the ordering:
// proved < unknown < refuted < error
func statusWorse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Proved:
		return 0
	case Unknown:
		return 1
	case Refuted:
		return 2
	case Error:
		return 3
	default:
		return 4
	}
}

// Summary counts outcomes per status
func Summary(outcomes []*Outcome) map[Status]int {
	counts := make(map[Status]int)
	for _, o := range outcomes {
		if o != nil {
			counts[o.Status]++
		}
	}
	return counts
}

// FormatReport produces human-readable output for structure reports.
// colorize, when not nil, decorates status words.
func FormatReport(reports []*StructureReport, colorize func(Status) string) string {
	if len(reports) == 0 {
		return ""
	}
	if colorize == nil {
		colorize = func(s Status) string { return strings.ToUpper(string(s)) }
	}

	var sb strings.Builder

	sb.WriteString("Structure Verification Report\n")
	sb.WriteString("=============================\n\n")

	for _, report := range reports {
		fmt.Fprintf(&sb, "Structure: %s\n", report.Structure)

		proved := 0
		total := len(report.Goals)

		for _, o := range report.Goals {
			fmt.Fprintf(&sb, "  %-40s %s\n", o.Goal.Name, colorize(o.Status))
			if o.Status != Proved && o.Message != "" {
				fmt.Fprintf(&sb, "    %s\n", o.Message)
			}
			if o.Status == Proved {
				proved++
			}
		}

		if total > 0 {
			if proved == total {
				fmt.Fprintf(&sb, "  Status: all %d goals proved\n", total)
			} else {
				fmt.Fprintf(&sb, "  Status: %d of %d goals proved\n", proved, total)
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
