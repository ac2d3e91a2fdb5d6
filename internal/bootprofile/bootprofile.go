// Package bootprofile loads the boot orchestrator's tunables from a YAML
// document, mirroring the teacher's bundle.Metadata pattern: a fixed set of
// named fields with sane defaults, normalized after load.
package bootprofile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/paintbrush/internal/bootctl"
	"github.com/tinyrange/paintbrush/internal/firmware"
)

// Profile is the on-disk YAML shape of a boot profile.
type Profile struct {
	NumCPUs             int    `yaml:"numCPUs,omitempty"`
	KernelBufferSizeMB   int    `yaml:"kernelBufferSizeMB,omitempty"`
	PerCoreMemorySizeMB  int    `yaml:"perCoreMemorySizeMB,omitempty"`
	KernelFilename       string `yaml:"kernelFilename,omitempty"`
	MonitorPollMS        int    `yaml:"monitorPollMS,omitempty"`

	TFTP TFTPProfile `yaml:"tftp"`
}

// TFTPProfile is the YAML shape of the fixed network configuration.
type TFTPProfile struct {
	StationIP  string `yaml:"stationIP,omitempty"`
	SubnetMask string `yaml:"subnetMask,omitempty"`
	GatewayIP  string `yaml:"gatewayIP,omitempty"`
	ServerIP   string `yaml:"serverIP,omitempty"`
	ServerPort int    `yaml:"serverPort,omitempty"`
	BlockSize  int    `yaml:"blockSize,omitempty"`
	TryCount   int    `yaml:"tryCount,omitempty"`
	TimeoutMS  int    `yaml:"timeoutMS,omitempty"`
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	var a, b, c, d int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return out, fmt.Errorf("bootprofile: invalid IPv4 address %q: %w", s, err)
	}
	for i, v := range []int{a, b, c, d} {
		if v < 0 || v > 255 {
			return out, fmt.Errorf("bootprofile: invalid IPv4 address %q", s)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Default returns the profile matching the spec's fixed configuration,
// serializable back to YAML as the starting point for a user override file.
func Default() Profile {
	def := bootctl.DefaultConfig()
	return Profile{
		NumCPUs:             def.NumCPUs,
		KernelBufferSizeMB:  int(def.KernelBufferSize / (1024 * 1024)),
		PerCoreMemorySizeMB: int(def.PerCoreMemorySize / (1024 * 1024)),
		KernelFilename:      def.KernelFilename,
		MonitorPollMS:       int(def.MonitorPollInterval / time.Millisecond),
		TFTP: TFTPProfile{
			StationIP:  "192.168.2.201",
			SubnetMask: "255.255.255.0",
			GatewayIP:  "192.168.2.2",
			ServerIP:   "192.168.2.2",
			ServerPort: int(def.TFTP.ServerPort),
			BlockSize:  int(def.TFTP.BlockSize),
			TryCount:   def.TFTP.TryCount,
			TimeoutMS:  int(def.TFTP.Timeout / time.Millisecond),
		},
	}
}

// Load reads and parses a boot profile file. Fields absent from the
// document keep Default()'s values; a field the document sets explicitly,
// even to zero, overrides the default.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("bootprofile: read %s: %w", path, err)
	}

	profile := Default()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("bootprofile: parse %s: %w", path, err)
	}
	return profile, nil
}

// ToConfig converts the profile to a bootctl.Config.
func (p Profile) ToConfig() (bootctl.Config, error) {
	station, err := parseIPv4(p.TFTP.StationIP)
	if err != nil {
		return bootctl.Config{}, err
	}
	subnet, err := parseIPv4(p.TFTP.SubnetMask)
	if err != nil {
		return bootctl.Config{}, err
	}
	gateway, err := parseIPv4(p.TFTP.GatewayIP)
	if err != nil {
		return bootctl.Config{}, err
	}
	server, err := parseIPv4(p.TFTP.ServerIP)
	if err != nil {
		return bootctl.Config{}, err
	}

	return bootctl.Config{
		NumCPUs:             p.NumCPUs,
		KernelBufferSize:    uint64(p.KernelBufferSizeMB) * 1024 * 1024,
		PerCoreMemorySize:   uint64(p.PerCoreMemorySizeMB) * 1024 * 1024,
		KernelFilename:      p.KernelFilename,
		MonitorPollInterval: time.Duration(p.MonitorPollMS) * time.Millisecond,
		TFTP: firmware.TFTPConfig{
			StationIP:  station,
			SubnetMask: subnet,
			GatewayIP:  gateway,
			ServerIP:   server,
			ServerPort: uint16(p.TFTP.ServerPort),
			BlockSize:  uint16(p.TFTP.BlockSize),
			TryCount:   p.TFTP.TryCount,
			Timeout:    time.Duration(p.TFTP.TimeoutMS) * time.Millisecond,
		},
	}, nil
}
