package bootprofile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesFixedSpecConfiguration(t *testing.T) {
	cfg, err := Default().ToConfig()
	if err != nil {
		t.Fatalf("ToConfig: %v", err)
	}
	if cfg.TFTP.StationIP != [4]byte{192, 168, 2, 201} {
		t.Fatalf("StationIP = %v", cfg.TFTP.StationIP)
	}
	if cfg.TFTP.ServerPort != 69 || cfg.TFTP.BlockSize != 8192 || cfg.TFTP.TryCount != 5 {
		t.Fatalf("unexpected TFTP fixed fields: %+v", cfg.TFTP)
	}
	if cfg.NumCPUs != 36 {
		t.Fatalf("NumCPUs = %d, want 36", cfg.NumCPUs)
	}
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	doc := "numCPUs: 4\nkernelFilename: custom.kernel\ntftp:\n  serverPort: 6969\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if profile.NumCPUs != 4 {
		t.Fatalf("NumCPUs = %d, want 4", profile.NumCPUs)
	}
	if profile.KernelFilename != "custom.kernel" {
		t.Fatalf("KernelFilename = %q", profile.KernelFilename)
	}
	if profile.TFTP.ServerPort != 6969 {
		t.Fatalf("ServerPort = %d, want 6969", profile.TFTP.ServerPort)
	}
	// Unset fields still inherit their defaults.
	if profile.TFTP.StationIP != "192.168.2.201" {
		t.Fatalf("StationIP = %q, expected default to survive partial override", profile.TFTP.StationIP)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing profile file")
	}
}
