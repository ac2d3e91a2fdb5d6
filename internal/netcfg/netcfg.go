// Package netcfg validates the fixed network configuration the bootloader
// hands to firmware's TFTP protocol (spec §6): a static station address,
// subnet mask, gateway, and TFTP server address, none of which are
// negotiated at boot. No package in this repo speaks TFTP itself — that
// protocol is out of scope (spec §1) — this package only checks the
// literal configuration shape is self-consistent before it is handed to
// firmware.TFTP.Configure.
package netcfg

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"

	"github.com/tinyrange/paintbrush/internal/firmware"
)

var (
	// ErrStationNotInSubnet is returned when the station address does not
	// fall within the configured subnet.
	ErrStationNotInSubnet = errors.New("netcfg: station address outside configured subnet")
	// ErrGatewayNotInSubnet is returned when the gateway address does not
	// fall within the configured subnet.
	ErrGatewayNotInSubnet = errors.New("netcfg: gateway address outside configured subnet")
	// ErrServerUnreachableLocally is returned when the TFTP server address is
	// neither on-subnet nor reachable via the configured gateway.
	ErrServerUnreachableLocally = errors.New("netcfg: tftp server unreachable from station subnet")
	// ErrZeroBlockSize is returned when the TFTP block size is zero.
	ErrZeroBlockSize = errors.New("netcfg: zero tftp block size")
)

// KernelFilename is the well-known single filename TFTP fetches, per the
// build-driver convention spec §6 names ("<project>_x86.kernel").
const KernelFilename = "paintbrush_x86.kernel"

// subnetMaskPrefixLen converts a dotted mask into a CIDR prefix length; it
// assumes (and does not re-validate) that mask is contiguous ones followed
// by zeros, which is the only shape firmware's static IP config accepts.
func subnetMaskPrefixLen(mask [4]byte) int {
	n := 0
	for _, b := range mask {
		for b != 0 {
			n++
			b &= b - 1
		}
	}
	return n
}

// Validate checks that cfg's addresses are well-formed and mutually
// consistent: the station and gateway must lie within the configured
// subnet, and the TFTP server must be reachable either directly on that
// subnet or via the gateway.
func Validate(cfg firmware.TFTPConfig) error {
	if cfg.BlockSize == 0 {
		return ErrZeroBlockSize
	}

	prefixLen := subnetMaskPrefixLen(cfg.SubnetMask)
	station := netip.AddrFrom4(cfg.StationIP)
	gateway := netip.AddrFrom4(cfg.GatewayIP)
	server := netip.AddrFrom4(cfg.ServerIP)

	subnet := netip.PrefixFrom(station, prefixLen).Masked()

	if !subnet.Contains(station) {
		return ErrStationNotInSubnet
	}
	if !subnet.Contains(gateway) {
		return ErrGatewayNotInSubnet
	}
	if !subnet.Contains(server) && server != gateway {
		return ErrServerUnreachableLocally
	}

	return nil
}

// Describe renders a short diagnostic line for the serial/console surfaces,
// including the server address's in-addr.arpa reverse-lookup name — purely
// informational, since no DNS resolution happens over this static link.
func Describe(cfg firmware.TFTPConfig) string {
	server := netip.AddrFrom4(cfg.ServerIP).String()
	reverseName, err := dns.ReverseAddr(server)
	if err != nil {
		reverseName = dns.Fqdn(server)
	}
	return fmt.Sprintf("tftp server %s (%s), block size %d, %d tries, timeout %s",
		server, reverseName, cfg.BlockSize, cfg.TryCount, cfg.Timeout)
}
