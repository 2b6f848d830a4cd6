package verify

import (
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/structure"
)

func outcome(name string, status Status, roots ...string) *Outcome {
	return &Outcome{Goal: structure.Goal{Name: name}, Status: status, Roots: roots}
}

func TestBuildReportWorstStatus(t *testing.T) {
	outcomes := []*Outcome{
		outcome("assoc", Proved, "Semigroup"),
		outcome("identity", Unknown, "Monoid", "Semigroup"),
		outcome("inverse", Refuted, "Group"),
		outcome("group_unknown", Unknown, "Group"),
		outcome("arith", Proved),
		outcome("broken", Error, "Ring"),
		nil,
	}
	reports := BuildReport(outcomes)

	var names []string
	status := make(map[string]Status)
	for _, r := range reports {
		names = append(names, r.Structure)
		status[r.Structure] = r.Status
	}
	if got := strings.Join(names, ","); got != "Group,Monoid,Ring,Semigroup,(no structure)" {
		t.Errorf("report order %s", got)
	}
	want := map[string]Status{
		"Group":      Refuted,
		"Monoid":     Unknown,
		"Ring":       Error,
		"Semigroup":  Unknown,
		freeStanding: Proved,
	}
	for s, w := range want {
		if status[s] != w {
			t.Errorf("%s: %s, want %s", s, status[s], w)
		}
	}
	if !reports[len(reports)-1].AllProved() || reports[0].AllProved() {
		t.Error("AllProved disagrees with the statuses")
	}
}

func TestFormatReport(t *testing.T) {
	out := &Outcome{Goal: structure.Goal{Name: "inverse"}, Status: Refuted, Message: "counterexample: a = 0", Roots: []string{"Field"}}
	reports := BuildReport([]*Outcome{outcome("closure", Proved, "Field"), out})
	got := FormatReport(reports, nil)
	for _, want := range []string{
		"Structure Verification Report\n",
		"Structure: Field\n",
		"  closure                                  PROVED\n",
		"  inverse                                  REFUTED\n    counterexample: a = 0\n",
		"  Status: 1 of 2 goals proved\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}

	got = FormatReport(BuildReport([]*Outcome{outcome("closure", Proved, "Field")}), func(s Status) string { return "<" + string(s) + ">" })
	if !strings.Contains(got, "<proved>") || !strings.Contains(got, "all 1 goals proved") {
		t.Errorf("custom colorizer not used:\n%s", got)
	}
	if FormatReport(nil, nil) != "" {
		t.Error("empty report should be empty")
	}
}
