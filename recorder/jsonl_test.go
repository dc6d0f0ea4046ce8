package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shreekarashastry/miningsim/simulation"
)

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.jsonl.zst")
	out, err := CreateJSONL(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Path() != path {
		t.Fatalf("Path = %s", out.Path())
	}

	cfg := testConfig()
	mem := simulation.NewMemoryRecorder()
	n, err := simulation.NewNetwork(cfg, simulation.WithRecorder(simulation.MultiRecorder{out, mem}))
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if _, err := n.Run(cfg.StepCount, false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines, err := ReadJSONL(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	perRound := len(cfg.Agents) + 1
	if len(lines) != cfg.StepCount*perRound {
		t.Fatalf("%d lines, want %d", len(lines), cfg.StepCount*perRound)
	}
	model := mem.Model()
	for step := 0; step < cfg.StepCount; step++ {
		round := lines[step*perRound : (step+1)*perRound]
		for id, l := range round[:len(cfg.Agents)] {
			if l.Kind != KindAgent || l.Agent == nil || l.Model != nil {
				t.Fatalf("step %d line %d = %+v", step, id, l)
			}
			if *l.Agent != mem.Agent(id)[step] {
				t.Fatalf("step %d agent %d = %+v, want %+v", step, id, *l.Agent, mem.Agent(id)[step])
			}
		}
		last := round[len(round)-1]
		if last.Kind != KindModel || last.Model == nil || *last.Model != model[step] {
			t.Fatalf("step %d model line = %+v", step, last)
		}
	}
}

func TestJSONLRejectsWritesAfterClose(t *testing.T) {
	out, err := CreateJSONL(filepath.Join(t.TempDir(), "closed.jsonl.zst"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := out.RecordModel(simulation.ModelRecord{}); err == nil {
		t.Fatalf("write after close succeeded")
	}
	if err := out.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestReadJSONLErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadJSONL(filepath.Join(dir, "missing.zst")); !os.IsNotExist(err) {
		t.Fatalf("missing file error = %v", err)
	}
	plain := filepath.Join(dir, "plain.jsonl")
	if err := os.WriteFile(plain, []byte("{\"kind\":\"model\"}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadJSONL(plain); err == nil {
		t.Fatalf("uncompressed file decoded")
	}
}
