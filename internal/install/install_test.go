package install

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	howett "howett.net/plist"

	"gomunki/internal/paths"
	"gomunki/internal/report"
	"gomunki/pkg/plist"
)

type fakeCall struct {
	command string
	args    []string
}

type fakeRunner struct {
	calls   []fakeCall
	handler func(command string, args []string) (RunResult, error)
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	f.calls = append(f.calls, fakeCall{command: command, args: args})
	if f.handler == nil {
		return RunResult{}, nil
	}
	result, err := f.handler(command, args)
	if opts.Stdout != nil {
		opts.Stdout.Write(result.Stdout)
	}
	return result, err
}

func marshalPlist(t *testing.T, doc any) []byte {
	t.Helper()
	data, err := howett.MarshalIndent(doc, howett.XMLFormat, "\t")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func stubOwnership(t *testing.T) {
	t.Helper()
	origChown, origUID, origGID, origXattr := chownFn, lookupUID, lookupGID, removeXattrFn
	chownFn = func(string, int, int) error { return nil }
	lookupUID = func(string) (int, error) { return 0, nil }
	lookupGID = func(string) (int, error) { return 0, nil }
	removeXattrFn = func(string, string) error { return nil }
	t.Cleanup(func() {
		chownFn, lookupUID, lookupGID, removeXattrFn = origChown, origUID, origGID, origXattr
	})
}

func newTestExecutor(t *testing.T, runner Runner) *Executor {
	t.Helper()
	p := paths.Resolve(t.TempDir())
	if err := p.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	report.Reset()
	t.Cleanup(report.Reset)
	return NewExecutor(runner, p)
}

func TestResolveDestination(t *testing.T) {
	cases := []struct {
		name string
		item plist.Dict
		base string
		want string
		err  bool
	}{
		{
			name: "path only defaults to source basename",
			item: plist.Dict{"destination_path": "/Applications"},
			base: "Foo.app",
			want: "/Applications/Foo.app",
		},
		{
			name: "path plus item",
			item: plist.Dict{"destination_path": "/Applications", "destination_item": "Renamed.app"},
			base: "Foo.app",
			want: "/Applications/Renamed.app",
		},
		{
			name: "item with directory is split",
			item: plist.Dict{"destination_item": "/Applications/Utilities/Foo.app"},
			base: "Foo.app",
			want: "/Applications/Utilities/Foo.app",
		},
		{
			name: "no destination at all",
			item: plist.Dict{},
			base: "Foo.app",
			err:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveDestination(tc.item, tc.base)
			if tc.err {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveDestination: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestScriptGateRejectsForeignOwner(t *testing.T) {
	origStat, origEuid := statOwnerOf, geteuid
	defer func() { statOwnerOf, geteuid = origStat, origEuid }()
	geteuid = func() int { return 502 }
	statOwnerOf = func(string) (int, int, error) { return 501, 80, nil }

	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	err := checkScriptPermissions(path)
	var insecure *InsecurePermissionsError
	if !errors.As(err, &insecure) {
		t.Fatalf("expected InsecurePermissionsError, got %v", err)
	}
}

func TestScriptGateRejectsWorldWritable(t *testing.T) {
	origStat := statOwnerOf
	defer func() { statOwnerOf = origStat }()
	statOwnerOf = func(string) (int, int, error) { return 0, 0, nil }

	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		t.Fatal(err)
	}

	err := checkScriptPermissions(path)
	var insecure *InsecurePermissionsError
	if !errors.As(err, &insecure) {
		t.Fatalf("expected InsecurePermissionsError, got %v", err)
	}
}

func TestScriptGateRejectsBadGroupAndNonExecutable(t *testing.T) {
	origStat := statOwnerOf
	defer func() { statOwnerOf = origStat }()

	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	statOwnerOf = func(string) (int, int, error) { return 0, 20, nil }
	var insecure *InsecurePermissionsError
	if err := checkScriptPermissions(path); !errors.As(err, &insecure) {
		t.Fatalf("expected group rejection, got %v", err)
	}

	statOwnerOf = func(string) (int, int, error) { return 0, 0, nil }
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := checkScriptPermissions(path); !errors.As(err, &insecure) {
		t.Fatalf("expected exec-bit rejection, got %v", err)
	}
}

func TestScriptGateAcceptsWellOwnedScript(t *testing.T) {
	origStat := statOwnerOf
	defer func() { statOwnerOf = origStat }()
	statOwnerOf = func(string) (int, int, error) { return 0, 80, nil }

	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := checkScriptPermissions(path); err != nil {
		t.Fatalf("well-owned script rejected: %v", err)
	}
}

func TestPostActionAggregation(t *testing.T) {
	cases := []struct {
		restart string
		want    PostAction
	}{
		{"", PostActionNone},
		{"None", PostActionNone},
		{"RequireLogout", PostActionLogout},
		{"RecommendRestart", PostActionRestart},
		{"RequireRestart", PostActionRestart},
		{"RequireShutdown", PostActionShutdown},
	}
	for _, tc := range cases {
		if got := postActionFor(tc.restart); got != tc.want {
			t.Fatalf("postActionFor(%q) = %s, want %s", tc.restart, got, tc.want)
		}
	}

	if got := PostActionLogout.Max(PostActionRestart); got != PostActionRestart {
		t.Fatalf("Max kept %s, want restart", got)
	}
	if got := PostActionShutdown.Max(PostActionNone); got != PostActionShutdown {
		t.Fatalf("Max kept %s, want shutdown", got)
	}
}

func TestParseLaunchctlList(t *testing.T) {
	output := "PID\tStatus\tLabel\n" +
		"123\t0\tcom.googlecode.munki.running\n" +
		"-\t0\tcom.googlecode.munki.done\n" +
		"-\t15\tcom.googlecode.munki.failed\n"

	if _, running, err := parseLaunchctlList(output, "com.googlecode.munki.running"); err != nil || !running {
		t.Fatalf("running job: running=%v err=%v", running, err)
	}
	if status, running, err := parseLaunchctlList(output, "com.googlecode.munki.done"); err != nil || running || status != 0 {
		t.Fatalf("done job: status=%d running=%v err=%v", status, running, err)
	}
	if status, _, err := parseLaunchctlList(output, "com.googlecode.munki.failed"); err != nil || status != 15 {
		t.Fatalf("failed job: status=%d err=%v", status, err)
	}
	if _, _, err := parseLaunchctlList(output, "com.googlecode.munki.missing"); err == nil {
		t.Fatal("expected error for missing label")
	}
}

func TestStripQuarantineVisitsEveryNode(t *testing.T) {
	var stripped []string
	orig := removeXattrFn
	defer func() { removeXattrFn = orig }()
	removeXattrFn = func(path, attr string) error {
		if attr != quarantineAttr {
			t.Fatalf("unexpected attribute %q", attr)
		}
		stripped = append(stripped, path)
		return nil
	}

	root := t.TempDir()
	sub := filepath.Join(root, "Foo.app", "Contents")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "Info.plist"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := stripQuarantine(root); err != nil {
		t.Fatalf("stripQuarantine: %v", err)
	}

	want := []string{
		root,
		filepath.Join(root, "Foo.app"),
		sub,
		filepath.Join(sub, "Info.plist"),
	}
	sort.Strings(stripped)
	sort.Strings(want)
	if len(stripped) != len(want) {
		t.Fatalf("stripped %d nodes, want %d: %v", len(stripped), len(want), stripped)
	}
	for i := range want {
		if stripped[i] != want[i] {
			t.Fatalf("stripped %v, want %v", stripped, want)
		}
	}
}

func TestDefaultMode(t *testing.T) {
	if got := defaultMode(0o777, false); got != 0o755 {
		t.Fatalf("file 0777 -> %o, want 755", got)
	}
	if got := defaultMode(0o600, false); got != 0o644 {
		t.Fatalf("file 0600 -> %o, want 644", got)
	}
	if got := defaultMode(0o700, true); got != 0o755 {
		t.Fatalf("dir 0700 -> %o, want 755", got)
	}
}

func TestSwapIntoReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "App.app")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "old"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, ".inprogress-App.app")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "new"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := swapInto(tmp, dest); err != nil {
		t.Fatalf("swapInto: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "new")); err != nil {
		t.Fatal("new content missing after swap")
	}
	if _, err := os.Stat(filepath.Join(dest, "old")); !os.IsNotExist(err) {
		t.Fatal("old content survived the swap")
	}
	if _, err := os.Stat(dest + ".previous"); !os.IsNotExist(err) {
		t.Fatal("parked previous destination was not removed")
	}
}

func TestInstallCopyFromDMG(t *testing.T) {
	stubOwnership(t)

	mountDir := t.TempDir()
	appDir := filepath.Join(mountDir, "Foo.app")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(appDir, "binary"), []byte("payload"), 0o755); err != nil {
		t.Fatal(err)
	}
	destDir := t.TempDir()

	runner := &fakeRunner{}
	runner.handler = func(command string, args []string) (RunResult, error) {
		if command != "/usr/bin/hdiutil" {
			return RunResult{}, nil
		}
		switch args[0] {
		case "info":
			return RunResult{Stdout: marshalPlist(t, map[string]any{"images": []any{}})}, nil
		case "attach":
			return RunResult{Stdout: marshalPlist(t, map[string]any{
				"system-entities": []map[string]any{{"mount-point": mountDir}},
			})}, nil
		case "detach":
			return RunResult{}, nil
		default:
			t.Fatalf("unexpected hdiutil verb %q", args[0])
			return RunResult{}, nil
		}
	}

	e := newTestExecutor(t, runner)
	items := []plist.Dict{{
		"name":           "Foo",
		"installer_item": "Foo-1.0.dmg",
		"installer_type": "copy_from_dmg",
		"RestartAction":  "RequireRestart",
		"installed":      false,
		"items_to_copy": plist.Array{
			plist.Dict{"source_item": "Foo.app", "destination_path": destDir},
		},
	}}

	action := e.InstallAll(context.Background(), items)
	if action != PostActionRestart {
		t.Fatalf("post action = %s, want restart", action)
	}

	body, err := os.ReadFile(filepath.Join(destDir, "Foo.app", "binary"))
	if err != nil {
		t.Fatalf("copied payload missing: %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("copied payload = %q", body)
	}

	detached := false
	for _, call := range runner.calls {
		if call.command == "/usr/bin/hdiutil" && call.args[0] == "detach" && call.args[1] == mountDir {
			detached = true
		}
	}
	if !detached {
		t.Fatal("image attached by the executor was not detached")
	}
}

func TestInstallReusesExistingMount(t *testing.T) {
	stubOwnership(t)

	mountDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(mountDir, "tool"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	destDir := t.TempDir()

	e := newTestExecutor(t, nil)
	dmgPath := filepath.Join(e.Paths.CacheDir, "Tool-1.0.dmg")

	runner := &fakeRunner{}
	runner.handler = func(command string, args []string) (RunResult, error) {
		if args[0] == "info" {
			return RunResult{Stdout: marshalPlist(t, map[string]any{
				"images": []map[string]any{{
					"image-path":      dmgPath,
					"system-entities": []map[string]any{{"mount-point": mountDir}},
				}},
			})}, nil
		}
		t.Fatalf("unexpected hdiutil verb %q on an already-mounted image", args[0])
		return RunResult{}, nil
	}
	e.Runner = runner

	item := plist.Dict{
		"name":           "Tool",
		"installer_item": "Tool-1.0.dmg",
		"items_to_copy": plist.Array{
			plist.Dict{"source_item": "tool", "destination_path": destDir},
		},
	}
	if err := e.installCopyFromDMG(context.Background(), item); err != nil {
		t.Fatalf("installCopyFromDMG: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "tool")); err != nil {
		t.Fatal("payload not copied from reused mount")
	}
	for _, call := range runner.calls {
		if call.args[0] == "detach" {
			t.Fatal("executor detached an image it did not attach")
		}
	}
}

func TestRemoveCopiedItems(t *testing.T) {
	destDir := t.TempDir()
	target := filepath.Join(destDir, "Foo.app")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(t, &fakeRunner{})
	items := []plist.Dict{{
		"name":             "Foo",
		"installed":        true,
		"uninstall_method": "remove_copied_items",
		"RestartAction":    "RequireLogout",
		"items_to_copy": plist.Array{
			plist.Dict{"source_item": "Foo.app", "destination_path": destDir},
		},
	}}

	action := e.RemoveAll(context.Background(), items)
	if action != PostActionLogout {
		t.Fatalf("post action = %s, want logout", action)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("removal left the destination in place")
	}
}

func TestCmdRunnerCapturesOutputAndWrapsExitStatus(t *testing.T) {
	var live bytes.Buffer
	result, err := CmdRunner{}.Run(context.Background(), "/bin/sh",
		[]string{"-c", "echo out; echo err 1>&2; exit 3"},
		RunOptions{Stdout: &live})

	if err == nil || !strings.Contains(err.Error(), "status 3") {
		t.Fatalf("err = %v, want exit status 3", err)
	}
	if string(result.Stdout) != "out\n" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
	if string(result.Stderr) != "err\n" {
		t.Fatalf("stderr = %q", result.Stderr)
	}
	if live.String() != "out\n" {
		t.Fatalf("live stdout = %q, want the stream teed while running", live.String())
	}
}

type runnerFunc func(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)

func (f runnerFunc) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	return f(ctx, command, args, opts)
}

func TestScriptTimeoutConfigurable(t *testing.T) {
	var deadline time.Time
	capture := runnerFunc(func(ctx context.Context, _ string, _ []string, _ RunOptions) (RunResult, error) {
		deadline, _ = ctx.Deadline()
		return RunResult{}, nil
	})

	e := newTestExecutor(t, capture)
	start := time.Now()
	if err := e.runScript(context.Background(), "/bin/true", "script"); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if remaining := deadline.Sub(start); remaining > DefaultScriptTimeout {
		t.Fatalf("default deadline %v out, want at most %v", remaining, DefaultScriptTimeout)
	}

	e.ScriptTimeout = 5 * time.Minute
	start = time.Now()
	if err := e.runScript(context.Background(), "/bin/true", "script"); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if remaining := deadline.Sub(start); remaining <= DefaultScriptTimeout {
		t.Fatalf("override deadline %v out, want more than the %v default", remaining, DefaultScriptTimeout)
	}
}

func TestLineWriterSplitsLines(t *testing.T) {
	var lines []string
	w := &lineWriter{emit: func(s string) { lines = append(lines, s) }}
	w.Write([]byte("first li"))
	w.Write([]byte("ne\nsecond line\npartial"))
	w.Flush()

	want := []string{"first line", "second line", "partial"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines = %v, want %v", lines, want)
		}
	}
}
