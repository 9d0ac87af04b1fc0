package migrate

import (
	"errors"
	"strings"
	"testing"
)

func appendStep(s string) func([]byte) ([]byte, error) {
	return func(d []byte) ([]byte, error) { return append(d, s...), nil }
}

// ///////////////////////////////////////////////
// Register
// ///////////////////////////////////////////////

func TestRegister_KeepsVersionOrder(t *testing.T) {
	r := &Registry{CurrentVersion: 4}
	for _, v := range []int{4, 2, 3} {
		r.Register(Migration{Version: v})
	}
	for i, want := range []int{2, 3, 4} {
		if r.Migrations[i].Version != want {
			t.Fatalf("Migrations[%d].Version = %d, want %d", i, r.Migrations[i].Version, want)
		}
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	r := &Registry{}
	r.Register(Migration{Version: 2})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate version")
		}
	}()
	r.Register(Migration{Version: 2})
}

// ///////////////////////////////////////////////
// NeedsMigration / Newer
// ///////////////////////////////////////////////

func TestNeedsMigration(t *testing.T) {
	r := &Registry{CurrentVersion: 2}
	r.Register(Migration{Version: 2, Description: "rename [behavior] keys"})

	tests := []struct {
		file  int
		needs bool
		newer bool
	}{
		{1, true, false},
		{2, false, false},
		{3, false, true},
	}
	for _, tt := range tests {
		if got := r.NeedsMigration(tt.file); got != tt.needs {
			t.Errorf("NeedsMigration(%d) = %v, want %v", tt.file, got, tt.needs)
		}
		if got := r.Newer(tt.file); got != tt.newer {
			t.Errorf("Newer(%d) = %v, want %v", tt.file, got, tt.newer)
		}
	}
}

func TestNeedsMigration_PendingUpgrade(t *testing.T) {
	// Version agrees with the file but a newer step is registered.
	r := &Registry{CurrentVersion: 1, Migrations: []Migration{{Version: 2}}}
	if !r.NeedsMigration(1) {
		t.Fatal("expected true with a pending migration")
	}
}

func TestConfigRegistryCurrent(t *testing.T) {
	if Config.CurrentVersion != 1 {
		t.Fatalf("Config.CurrentVersion = %d, want 1", Config.CurrentVersion)
	}
	if Config.NeedsMigration(Config.CurrentVersion) {
		t.Fatal("a current config must not need migration")
	}
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

func TestRun_AppliesInOrder(t *testing.T) {
	// Set directly, out of order, to bypass Register.
	r := &Registry{CurrentVersion: 3, Migrations: []Migration{
		{Version: 3, Description: "third", Upgrade: appendStep("-v3")},
		{Version: 2, Description: "second", Upgrade: appendStep("-v2")},
	}}

	out, version, err := r.Run([]byte("cfg"), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if version != 3 || string(out) != "cfg-v2-v3" {
		t.Fatalf("Run = (%q, %d), want (cfg-v2-v3, 3)", out, version)
	}
}

func TestRun_SkipsApplied(t *testing.T) {
	called := false
	r := &Registry{CurrentVersion: 1}
	r.Register(Migration{Version: 1, Upgrade: func(d []byte) ([]byte, error) {
		called = true
		return d, nil
	}})

	out, version, err := r.Run([]byte("data"), 1)
	if err != nil || called || version != 1 || string(out) != "data" {
		t.Fatalf("Run = (%q, %d, %v), called=%v", out, version, err, called)
	}
}

func TestRun_StopsOnError(t *testing.T) {
	r := &Registry{CurrentVersion: 3}
	r.Register(Migration{Version: 2, Upgrade: appendStep("-v2")})
	r.Register(Migration{Version: 3, Upgrade: func([]byte) ([]byte, error) {
		return nil, errors.New("boom")
	}})

	_, version, err := r.Run([]byte("data"), 1)
	if err == nil || !strings.Contains(err.Error(), "migration to v3 failed: boom") {
		t.Fatalf("err = %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
}

func TestRun_Empty(t *testing.T) {
	out, version, err := (&Registry{CurrentVersion: 1}).Run([]byte("original"), 1)
	if err != nil || version != 1 || string(out) != "original" {
		t.Fatalf("Run = (%q, %d, %v)", out, version, err)
	}
}
