package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/quill/internal/cli"
	"github.com/leapstack-labs/quill/internal/cli/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// initProject scaffolds a project into a temp dir.
func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if out, err := run(t, "init", dir); err != nil {
		t.Fatalf("init error = %v\n%s", err, out)
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "Quill") {
		t.Errorf("version output should contain 'Quill', got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}
	for _, name := range []string{"render", "eval", "check", "serve", "init"} {
		if !strings.Contains(out, name) {
			t.Errorf("help output should list %q, got: %s", name, out)
		}
	}
}

func TestRenderCommand(t *testing.T) {
	dir := initProject(t)

	out, err := run(t, "render", "hello.html",
		"--project-dir", dir,
		"--output", "text",
		"-p", "name=world",
		"-p", "count=2")
	if err != nil {
		t.Fatalf("render command error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Hello, WORLD!") {
		t.Errorf("render output should greet, got: %s", out)
	}
	if !strings.Contains(out, "<li>Item 2</li>") {
		t.Errorf("render output should list two items, got: %s", out)
	}
}

func TestRenderCommandOut(t *testing.T) {
	dir := initProject(t)
	target := filepath.Join(t.TempDir(), "hello.out.html")

	if out, err := run(t, "render", "hello.html", "--project-dir", dir,
		"-p", "name=x", "-p", "count=0", "--out", target); err != nil {
		t.Fatalf("render command error = %v\n%s", err, out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.Contains(string(data), "<ul>") {
		t.Errorf("count=0 should render no list, got: %s", data)
	}
}

func TestRenderCommandMissing(t *testing.T) {
	dir := initProject(t)
	if _, err := run(t, "render", "nope.html", "--project-dir", dir); err == nil {
		t.Error("rendering a missing template should return an error")
	}
}

func TestEvalCommandJSON(t *testing.T) {
	dir := initProject(t)

	out, err := run(t, "eval", "text.shout(name)", "--project-dir", dir,
		"--output", "json", "--var", "name=ada")
	if err != nil {
		t.Fatalf("eval command error = %v\n%s", err, out)
	}

	var result struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("eval output is not JSON: %v\n%s", err, out)
	}
	// Starlark functions are dynamically typed.
	if result.Type != "any" || result.Value != "ADA!" {
		t.Errorf("eval = %v (%s), want ADA! (any)", result.Value, result.Type)
	}
}

func TestCheckCommand(t *testing.T) {
	dir := initProject(t)
	if out, err := run(t, "check", "--project-dir", dir); err != nil {
		t.Errorf("check command error = %v\n%s", err, out)
	}

	bad := filepath.Join(dir, "templates", "broken.html")
	if err := os.WriteFile(bad, []byte("#define(int n)${n +}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "check", "--project-dir", dir); err == nil {
		t.Error("check should fail on a broken template")
	}
}

func TestListCommandJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t, map[string]string{
		"mail/welcome.txt": "#define(String name)Welcome ${name}",
		"sum.txt":          "#define(int a, int b)#set(int total = a + b)${total}",
	}, nil)

	out, err := run(t, "list", "--project-dir", dir, "--output", "json")
	if err != nil {
		t.Fatalf("list command error = %v\n%s", err, out)
	}

	var result struct {
		Total     int `json:"total"`
		Templates []struct {
			Name       string   `json:"name"`
			Parameters []string `json:"parameters"`
		} `json:"templates"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	if result.Templates[0].Name != "mail/welcome.txt" {
		t.Errorf("first template = %q, want mail/welcome.txt", result.Templates[0].Name)
	}
	if got := strings.Join(result.Templates[1].Parameters, ","); got != "int a,int b" {
		t.Errorf("sum.txt parameters = %q", got)
	}
}

func TestCompletionCommand(t *testing.T) {
	shells := []string{"bash", "zsh", "fish", "powershell"}

	for _, shell := range shells {
		t.Run(shell, func(t *testing.T) {
			if _, err := run(t, "completion", shell); err != nil {
				t.Errorf("completion %s command error = %v", shell, err)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "unknown-command"); err == nil {
		t.Error("unknown command should return an error")
	}
}
