package scenarios

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilianp07/powermux/core/engine"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			res, err := Run(sc, nil)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			for _, msg := range Check(sc, res) {
				t.Error(msg)
			}
		})
	}
}

func TestRunDeadModules(t *testing.T) {
	sc := &Scenario{
		Name:        "dead",
		DeadModules: []int{2},
		Steps:       []StepDef{{Connector: 1, Action: "start", Voltage: 400, Current: 30}},
	}
	res, err := Run(sc, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Snapshot.Assignments["Connector1"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only module 1, got %v", got)
	}
	if !strings.Contains(res.Grid, "S1") {
		t.Fatalf("grid not rendered: %q", res.Grid)
	}
}

func TestRunKillStep(t *testing.T) {
	sc := &Scenario{
		Name: "kill",
		Steps: []StepDef{
			{Connector: 1, Action: "start", Voltage: 400, Current: 60},
			{Kill: []int{1, 2}},
		},
	}
	res, err := Run(sc, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Snapshot.Assignments["Connector1"]; len(got) != 0 {
		t.Fatalf("dead pair should be released, got %v", got)
	}
	if res.Events.Count(engine.ModuleReleased) != 2 {
		t.Fatalf("expected 2 releases, got %d", res.Events.Count(engine.ModuleReleased))
	}
}

func TestRunErrors(t *testing.T) {
	if _, err := Run(&Scenario{Name: "bad", DeadModules: []int{49}}, nil); err == nil {
		t.Fatal("expected invalid module error")
	}
	if _, err := Run(&Scenario{Name: "bad", Steps: []StepDef{{Connector: 1, Action: "boost"}}}, nil); err == nil {
		t.Fatal("expected invalid action error")
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	sc := &Scenario{
		Name:  "mismatch",
		Steps: []StepDef{{Connector: 3, Action: "start", Voltage: 400, Current: 60}},
		Expected: &Expected{
			Assignments: map[string][]int{"Connector3": {1, 2}},
			MuxesOn:     []uint16{301},
		},
	}
	res, err := Run(sc, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msgs := Check(sc, res); len(msgs) != 2 {
		t.Fatalf("expected 2 mismatches, got %v", msgs)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	tmp, err := os.CreateTemp(t.TempDir(), "bad*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString(":"); err != nil {
		t.Fatal(err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmp.Name()); err == nil {
		t.Fatal("expected unmarshal error")
	}
	noName := filepath.Join(t.TempDir(), "noname.yaml")
	if err := os.WriteFile(noName, []byte("steps: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(noName); err == nil {
		t.Fatal("expected missing name error")
	}
}
