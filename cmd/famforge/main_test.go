package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"famforge/internal/coordinator"
	"famforge/internal/family"
	"famforge/internal/queue"
	"famforge/internal/testsupport"
)

func TestRunBuildsFamiliesEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	reps := []string{"MGYP000000000001", "A0A0B4J2F0"}
	var lines []string
	for _, rep := range reps {
		testsupport.WriteCluster(t, family.ClusterFile(env.cfg.Paths.ClusterDir, rep))
		lines = append(lines, rep+"\t12\t100\t0")
	}
	stats := filepath.Join(env.baseDir, "stats.tsv")
	testsupport.WriteFile(t, stats, strings.Join(lines, "\n")+"\n")

	out := env.mustRun(t, "run", "-i", stats, "-n", "2", "--delete")
	if !strings.Contains(out, "2 started, 0 skipped") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	for _, id := range []string{"Pfam-M_000001", "Pfam-M_000002"} {
		dir := filepath.Join(env.cfg.Paths.AlignedRoot, "DONE", id)
		for _, name := range []string{"PFAMOUT", "SEED", id + "_SEED.phmmer"} {
			if !testsupport.Exists(filepath.Join(dir, name)) {
				t.Fatalf("%s missing %s", id, name)
			}
		}
	}

	names, err := os.ReadFile(env.cfg.Paths.NamesFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(names), "pf_id\t") || !strings.Contains(string(names), "Pfam-M_000002\tA0A0B4J2F0\t12") {
		t.Fatalf("unexpected names file:\n%s", names)
	}

	again := env.mustRun(t, "run", "-i", stats, "-n", "2")
	if !strings.Contains(again, "0 started, 2 skipped") {
		t.Fatalf("second run did not skip built families:\n%s", again)
	}
}

func TestRunFailsFastWithoutRequiredFile(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Environment.RequiredFiles = []string{filepath.Join(env.baseDir, "missing-pfamrc")}
	writeTestConfig(t, env.configPath, env.cfg)
	stats := filepath.Join(env.baseDir, "stats.tsv")
	testsupport.WriteFile(t, stats, "MGYP000000000001\t1\n")

	_, err := env.run(t, "run", "-i", stats)
	if err == nil || !strings.Contains(err.Error(), "missing-pfamrc") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	if testsupport.Exists(filepath.Join(env.cfg.Paths.AlignedRoot, "Pfam-M_000001")) {
		t.Fatal("family started despite failed preflight")
	}
}

func TestBuildCommandBuildsOneFamily(t *testing.T) {
	env := setupCLITestEnv(t)
	cluster := testsupport.WriteCluster(t, filepath.Join(env.baseDir, "input", "cluster.fa"))
	target := filepath.Join(env.baseDir, "single")

	out := env.mustRun(t, "build", "-i", cluster, "-f", "Pfam-M_000042", "-d", target)
	if !strings.Contains(out, "[OK] Done") {
		t.Fatalf("unexpected build output:\n%s", out)
	}
	if !testsupport.Exists(filepath.Join(target, "DONE", "Pfam-M_000042", "PFAMOUT")) {
		t.Fatal("family not built under the requested directory")
	}
}

func TestQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()
	testsupport.MustPush(t, store, queue.LiftoverIn, "Pfam-M_000001")
	if _, err := store.Requeue(ctx, queue.LiftoverDone, "Pfam-M_000002", 2, time.Hour); err != nil {
		t.Fatal(err)
	}

	status := env.mustRun(t, "queue", "status")
	for _, want := range []string{"lift_over_in", "lift_over_done", "pfam_in"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status output missing %s:\n%s", want, status)
		}
	}

	list := env.mustRun(t, "queue", "list", "lift_over_done")
	if !strings.Contains(list, "Pfam-M_000002") || strings.Contains(list, "Pfam-M_000001") {
		t.Fatalf("unexpected list output:\n%s", list)
	}

	if _, err := env.run(t, "queue", "list", "bogus"); err == nil {
		t.Fatal("expected error for unknown list")
	}

	cleared := env.mustRun(t, "queue", "clear")
	if !strings.Contains(cleared, "Removed 2 queue entries") {
		t.Fatalf("unexpected clear output: %s", cleared)
	}
}

func TestFamilyCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	layout := family.NewLayout(env.cfg.Paths.AlignedRoot, false)
	if _, _, err := layout.Claim(context.Background(), "Pfam-M_000007", "/clusters/x.fa", "run"); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "family", "set", "Pfam-M_000007", "DUF", "--note", "domain of unknown function")
	if !strings.Contains(out, "filed as DUF") {
		t.Fatalf("unexpected set output: %s", out)
	}
	if !testsupport.Exists(filepath.Join(env.cfg.Paths.AlignedRoot, "DUF", "Pfam-M_000007")) {
		t.Fatal("family not moved under DUF")
	}

	show := env.mustRun(t, "family", "show", "Pfam-M_000007")
	for _, want := range []string{"DUF", "/clusters/x.fa", "domain of unknown function"} {
		if !strings.Contains(show, want) {
			t.Fatalf("show output missing %q:\n%s", want, show)
		}
	}

	list := env.mustRun(t, "family", "list", "--disposition", "duf")
	if !strings.Contains(list, "Pfam-M_000007") {
		t.Fatalf("list output missing family:\n%s", list)
	}

	if _, err := env.run(t, "family", "set", "Pfam-M_000007", "bogus"); err == nil {
		t.Fatal("expected error for unknown disposition")
	}

	if out := env.mustRun(t, "family", "reconcile"); !strings.Contains(out, "All families are in place") {
		t.Fatalf("unexpected reconcile output: %s", out)
	}

	rec, dir, err := layout.Claim(context.Background(), "Pfam-M_000008", "/clusters/y.fa", "run")
	if err != nil {
		t.Fatal(err)
	}
	rec.EnterStage(family.StageLiftover, time.Now())
	if err := family.WriteRecord(dir, rec); err != nil {
		t.Fatal(err)
	}
	if out := env.mustRun(t, "family", "reconcile"); !strings.Contains(out, "requeued Pfam-M_000008 on lift_over_in") {
		t.Fatalf("active family not requeued: %s", out)
	}
	if out := env.mustRun(t, "queue", "list", "lift_over_in"); !strings.Contains(out, "Pfam-M_000008") {
		t.Fatalf("queue list missing requeued family:\n%s", out)
	}
}

func TestDescRepairCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	root := filepath.Join(env.cfg.Paths.AlignedRoot, "DONE")
	testsupport.WriteFile(t, filepath.Join(root, "Pfam-M_000001", "DESC"), "AU   Who RU\n")
	testsupport.WriteFile(t, filepath.Join(root, "Pfam-M_000001", "PFAMOUT"), "hits\n")
	testsupport.WriteFile(t, filepath.Join(root, "Pfam-M_000002", "DESC"), "AU   Who RU\n")

	out := env.mustRun(t, "desc", "repair", root)
	if !strings.Contains(out, "1 repaired, 1 unbuilt, 0 without DESC") {
		t.Fatalf("unexpected repair output:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output: %s", out)
	}
	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}

	validate := env.mustRun(t, "config", "validate")
	if !strings.Contains(validate, "Configuration valid") || !strings.Contains(validate, env.configPath) {
		t.Fatalf("unexpected validate output: %s", validate)
	}
}

func TestDepsCommandReportsMissingTool(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "deps")
	if !strings.Contains(out, "pfbuild") || strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected deps output:\n%s", out)
	}

	if err := os.Remove(filepath.Join(env.binDir, testsupport.ToolBuild)); err != nil {
		t.Fatal(err)
	}
	out, err := env.run(t, "deps")
	if err == nil || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("expected deps failure, got %v:\n%s", err, out)
	}
}

func TestRenderSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	summary := coordinator.Summary{
		RunID:    "abc",
		Started:  start,
		Finished: start.Add(90 * time.Second),
		Done:     []string{"Pfam-M_000001"},
		Failed: map[family.Stage][]string{
			family.StageLiftover: {"Pfam-M_000002", "Pfam-M_000003"},
			family.StageBuild:    {"Pfam-M_000004"},
		},
		Warnings: map[string][]string{"Pfam-M_000001": {"swissprot failed"}},
	}
	out := renderSummary(summary, false)
	for _, want := range []string{
		"Run abc finished in 1m30s",
		"2 failed liftover: Pfam-M_000002 Pfam-M_000003",
		"1 failed build: Pfam-M_000004",
		"Pfam-M_000001: swissprot failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("summary coloured without a terminal")
	}
}

func TestTestNotifyCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if out := env.mustRun(t, "test-notify"); !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output without topic: %s", out)
	}

	var titles []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles = append(titles, r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)

	if out := env.mustRun(t, "test-notify"); !strings.Contains(out, "Test notification sent") {
		t.Fatalf("unexpected output: %s", out)
	}
	if len(titles) != 1 || titles[0] != "famforge - Test" {
		t.Fatalf("server saw %v", titles)
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "logs"); err == nil {
		t.Fatal("expected error without run logs")
	}
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.LogDir, "famforge-abc.log"), "first\nsecond\nthird\n")
	out := env.mustRun(t, "logs", "-n", "2")
	if strings.Contains(out, "first") || !strings.Contains(out, "second\nthird") {
		t.Fatalf("unexpected run log output:\n%s", out)
	}

	layout := family.NewLayout(env.cfg.Paths.AlignedRoot, false)
	rec, dir, err := layout.Claim(context.Background(), "Pfam-M_000003", "/clusters/x.fa", "run")
	if err != nil {
		t.Fatal(err)
	}
	if out := env.mustRun(t, "logs", "Pfam-M_000003"); !strings.Contains(out, "no scheduler log") {
		t.Fatalf("unexpected output for alignment stage: %s", out)
	}
	rec.EnterStage(family.StageLiftover, time.Now())
	if err := family.WriteRecord(dir, rec); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, filepath.Join(dir, "liftover.log"), "Sender: LSF System\nExited with exit code 25.\n")
	out = env.mustRun(t, "logs", "Pfam-M_000003", "-n", "0")
	if !strings.Contains(out, "Sender: LSF System") || !strings.Contains(out, "exit code 25") {
		t.Fatalf("unexpected stage log output:\n%s", out)
	}
}
