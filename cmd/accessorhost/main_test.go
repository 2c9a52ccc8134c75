package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/carlmjohnson/be"
)

var testVars = kong.Vars{
	"version":     "testing",
	"versionOnly": "testing",
}

func TestCLISimple(t *testing.T) {
	cli := new(AccessorHostCLI)
	parser := kong.Must(cli, testVars)

	_, err := parser.Parse([]string{"run", "Blink", "--module-path", "/tmp/accessors", "--events", "none", "--heartbeat", "5s"})
	be.NilErr(t, err)

	be.Equal(t, "Blink", cli.Run.Accessor)
	be.AllEqual(t, []string{"/tmp/accessors"}, cli.Run.ModulePath)
	be.Equal(t, "none", cli.Run.Events)
	be.Equal(t, "5s", cli.Run.Heartbeat.String())
	be.Equal(t, "info", cli.LogLevel)
	be.AllEqual(t, []string{"std"}, cli.Target)
}

func TestCLIRejectsUnknownEventSink(t *testing.T) {
	cli := new(AccessorHostCLI)
	parser := kong.Must(cli, testVars)

	_, err := parser.Parse([]string{"run", "Blink", "--events", "kafka"})
	be.Nonzero(t, err)
}

func TestCLIWithConfig(t *testing.T) {
	config := `{
    "host-id": "configured",
    "namespace": "lab"
  }`
	dir := t.TempDir()
	path := filepath.Join(dir, "accessorhost.json")
	be.NilErr(t, os.WriteFile(path, []byte(config), 0o600))

	cli := new(AccessorHostCLI)
	parser := kong.Must(cli, testVars, kong.Configuration(kong.JSON, path))

	_, err := parser.Parse([]string{"run", "Blink", "--config", path})
	be.NilErr(t, err)

	be.Equal(t, path, string(cli.Config))
	be.Equal(t, "configured", cli.HostId)
	be.Equal(t, "lab", cli.Run.Namespace)
}

func TestConfigLoaderLogsFile(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dir := t.TempDir()
	path := filepath.Join(dir, "accessorhost.json")
	be.NilErr(t, os.WriteFile(path, []byte(`{}`), 0o600))

	f, err := os.Open(path)
	be.NilErr(t, err)
	defer f.Close()

	_, err = logConfig(kong.JSON, log)(f)
	be.NilErr(t, err)
	be.In(t, "loading config", buf.String())
	be.In(t, path, buf.String())
}

func TestParseInputLine(t *testing.T) {
	tests := []struct {
		line  string
		name  string
		value string
		ok    bool
		err   bool
	}{
		{line: "", ok: false},
		{line: "   # comment", ok: false},
		{line: "x=21", name: "x", value: "21", ok: true},
		{line: " trigger = ", name: "trigger", value: "", ok: true},
		{line: `cmd={"on": true}`, name: "cmd", value: `{"on": true}`, ok: true},
		{line: "novalue", err: true},
		{line: "=3", err: true},
		{line: "x=bare words", err: true},
	}

	for _, tt := range tests {
		name, value, ok, err := parseInputLine(tt.line)
		if tt.err {
			be.Nonzero(t, err)
			continue
		}
		be.NilErr(t, err)
		be.Equal(t, tt.ok, ok)
		be.Equal(t, tt.name, name)
		be.Equal(t, tt.value, string(value))
	}
}

func TestRunFeedsInputs(t *testing.T) {
	dir := t.TempDir()
	script := `
exports.setup = function() {
  input('x');
  output('y');
};
exports.fire = function() {
  var v = get('x');
  if (v !== null) {
    send('y', 'got:' + v);
  }
};`
	be.NilErr(t, os.WriteFile(filepath.Join(dir, "Doubler.js"), []byte(script), 0o600))

	var out bytes.Buffer
	cmd := RunCmd{
		Accessor:   "Doubler",
		ModulePath: []string{dir},
		Inputs:     "-",
		Events:     "none",
		Namespace:  "default",
		in:         strings.NewReader("x=21\n# skipped\n\nx=\"b\"\n"),
		out:        &out,
	}
	globals := &Globals{HostId: "test"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	be.NilErr(t, cmd.Run(context.Background(), globals, nil, log))
	be.Equal(t, "y: \"got:21\"\ny: \"got:b\"\n", out.String())
}

func TestRunMissingAccessor(t *testing.T) {
	cmd := RunCmd{
		Accessor:   "Nope",
		ModulePath: []string{t.TempDir()},
		Events:     "none",
		out:        io.Discard,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := cmd.Run(context.Background(), &Globals{}, nil, log)
	be.Nonzero(t, err)
}

func TestServeNeedsNats(t *testing.T) {
	cmd := ServeCmd{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	be.Nonzero(t, cmd.Run(context.Background(), &Globals{}, nil, log))
}

func TestModulesListsCapabilities(t *testing.T) {
	var out bytes.Buffer
	cmd := ModulesCmd{out: &out}
	be.NilErr(t, cmd.Run())

	lines := strings.Fields(out.String())
	be.Equal(t, 8, len(lines))
	be.In(t, "webSocket", out.String())
	be.In(t, "eventBus", out.String())
}
