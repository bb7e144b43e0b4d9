package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/tetherctl/internal/testutil/testlog"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	return path
}

func TestLoadInventoryAndResolve(t *testing.T) {
	testlog.Start(t)
	path := writeInventory(t, `
default = "vm-a"

[endpoints.vm-a]
host = "10.0.0.5"
port = 2222
user = "ops"
key_file = "/home/ops/.ssh/id_ed25519"

[endpoints.vm-b]
host = "10.0.0.6"
user = "ops"
`)
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatalf("load inventory: %v", err)
	}

	ep, err := inv.Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if ep.Host != "10.0.0.5" || ep.Port != 2222 || ep.User != "ops" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
	if ep.Addr() != "10.0.0.5:2222" {
		t.Fatalf("unexpected addr: %q", ep.Addr())
	}

	ep, err = inv.Resolve("vm-b")
	if err != nil {
		t.Fatalf("resolve vm-b: %v", err)
	}
	if ep.Port != 22 {
		t.Fatalf("port should default to 22, got %d", ep.Port)
	}

	if _, err := inv.Resolve("vm-z"); err == nil {
		t.Fatalf("expected unknown endpoint error")
	}
}

func TestResolveSingleEntryWithoutDefault(t *testing.T) {
	testlog.Start(t)
	path := writeInventory(t, `
[endpoints.lab]
host = "lab.internal"
user = "root"
`)
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	ep, err := inv.Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ep.Host != "lab.internal" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
}

func TestValidateInventoryRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"missing host": `
[endpoints.a]
user = "ops"
`,
		"missing user": `
[endpoints.a]
host = "10.0.0.5"
`,
		"bad default": `
default = "nope"

[endpoints.a]
host = "10.0.0.5"
user = "ops"
`,
		"empty": ``,
	}
	for name, content := range cases {
		path := writeInventory(t, content)
		if _, err := LoadInventory(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
