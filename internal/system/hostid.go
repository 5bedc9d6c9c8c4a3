// Package system reads host identity used to tell flopview servers apart on
// the local network.
package system

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

var ErrNoHardwareAddress = errors.New("no interface with a hardware address")

// InterfaceMACs returns a map of non-loopback interface names to MAC addresses
func InterfaceMACs() (map[string]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	result := make(map[string]string)
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			result[iface.Name] = mac
		}
	}
	return result, nil
}

// pickMAC chooses the MAC of the alphabetically first interface, preferring
// wired (e*) over wireless (wl*) over anything else.
func pickMAC(macs map[string]string) (string, bool) {
	names := make([]string, 0, len(macs))
	for name := range macs {
		names = append(names, name)
	}
	rank := func(name string) int {
		switch {
		case strings.HasPrefix(name, "e"):
			return 0
		case strings.HasPrefix(name, "wl"):
			return 1
		default:
			return 2
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if ri, rj := rank(names[i]), rank(names[j]); ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	if len(names) == 0 {
		return "", false
	}
	return macs[names[0]], true
}

// CompactMAC strips separators and lowercases mac.
func CompactMAC(mac string) string {
	cleaned := strings.ReplaceAll(mac, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	return strings.ToLower(cleaned)
}

// HostID returns the compact MAC address of the host's primary interface.
func HostID() (string, error) {
	macs, err := InterfaceMACs()
	if err != nil {
		return "", err
	}
	mac, ok := pickMAC(macs)
	if !ok {
		return "", ErrNoHardwareAddress
	}
	return CompactMAC(mac), nil
}

// InstanceName appends the last four hex digits of id to base, so that
// several servers on one network advertise distinct names.
func InstanceName(base, id string) string {
	if len(id) < 4 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, id[len(id)-4:])
}
