package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	original := &Settings{
		Inventory:        "/etc/junotron/devices.yaml",
		DefaultDevice:    "edge1",
		FirewallFilter:   "edge-fbf",
		StaticNextHop:    "192.0.2.254",
		StaticAttributes: []string{"tag 888"},
		RetryAttempts:    5,
		ExecuteByDefault: true,
	}
	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, original) {
		t.Errorf("loaded = %+v, want %+v", loaded, original)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if !reflect.DeepEqual(s, &Settings{}) {
		t.Errorf("LoadFrom() non-existent = %+v, want empty", s)
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SetGet(t *testing.T) {
	tests := []struct {
		key, value string
		want       string
		wantErr    bool
	}{
		{key: "device", value: "edge2", want: "edge2"},
		{key: "static_next_hop", value: "192.0.2.1", want: "192.0.2.1"},
		{key: "static_next_hop", value: "gateway", wantErr: true},
		{key: "blackhole_attributes", value: "tag 666, no-readvertise", want: "tag 666,no-readvertise"},
		{key: "idle_timeout", value: "15s", want: "15s"},
		{key: "idle_timeout", value: "15", wantErr: true},
		{key: "retry_attempts", value: "4", want: "4"},
		{key: "retry_attempts", value: "0", wantErr: true},
		{key: "execute_by_default", value: "true", want: "true"},
		{key: "audit_redis", value: "10.0.0.5:6379", want: "10.0.0.5:6379"},
		{key: "colour", value: "blue", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := &Settings{}
			err := s.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := s.Get(tt.key)
			if err != nil || got != tt.want {
				t.Errorf("Get() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestSettings_Paths(t *testing.T) {
	s := &Settings{}
	if filepath.Base(s.AuditLogPath()) != "audit.log" || filepath.Base(s.TranscriptPath()) != "transcript.log" {
		t.Errorf("defaults: %s %s", s.AuditLogPath(), s.TranscriptPath())
	}
	s.AuditLog = "/tmp/a.log"
	if s.AuditLogPath() != "/tmp/a.log" {
		t.Errorf("AuditLogPath() = %s", s.AuditLogPath())
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", 3*time.Second); got != 3*time.Second {
		t.Errorf("empty = %s", got)
	}
	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("250ms = %s", got)
	}
	if got := Duration("soon", time.Second); got != time.Second {
		t.Errorf("bad value = %s", got)
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{DefaultDevice: "edge1", LastDevice: "edge2"}
	s.Clear()
	if !reflect.DeepEqual(s, &Settings{}) {
		t.Error("Clear() should reset all fields")
	}
}
