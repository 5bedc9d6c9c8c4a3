package system

import (
	"errors"
	"testing"
)

func TestInterfaceMACs(t *testing.T) {
	macs, err := InterfaceMACs()
	if err != nil {
		t.Fatalf("Failed to get MAC addresses: %v", err)
	}
	for iface, mac := range macs {
		if iface == "lo" || iface == "lo0" {
			t.Errorf("loopback interface %s included", iface)
		}
		t.Logf("Interface %s: %s", iface, mac)
	}
}

func TestHostID(t *testing.T) {
	// containers may have no hardware address at all
	id, err := HostID()
	if errors.Is(err, ErrNoHardwareAddress) {
		t.Skip("no interface with a hardware address")
	}
	if err != nil {
		t.Fatalf("HostID: %v", err)
	}
	if len(id) < 12 {
		t.Errorf("HostID() = %q, want at least 12 hex digits", id)
	}
}

func TestPickMAC(t *testing.T) {
	tests := []struct {
		macs map[string]string
		want string
	}{
		{map[string]string{"wlan0": "aa", "eth1": "bb", "eth0": "cc"}, "cc"},
		{map[string]string{"wlan0": "aa", "docker0": "bb"}, "aa"},
		{map[string]string{"docker0": "bb"}, "bb"},
	}
	for _, tt := range tests {
		got, ok := pickMAC(tt.macs)
		if !ok || got != tt.want {
			t.Errorf("pickMAC(%v) = %q, %v, want %q", tt.macs, got, ok, tt.want)
		}
	}
	if _, ok := pickMAC(nil); ok {
		t.Error("pickMAC(nil) reported a match")
	}
}

func TestCompactMAC(t *testing.T) {
	for _, input := range []string{"aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF", "aabbccddeeff"} {
		if got := CompactMAC(input); got != "aabbccddeeff" {
			t.Errorf("CompactMAC(%s) = %s, want aabbccddeeff", input, got)
		}
	}
}

func TestInstanceName(t *testing.T) {
	if got := InstanceName("Flopview", "aabbccddeeff"); got != "Flopview (eeff)" {
		t.Errorf("InstanceName = %q", got)
	}
	if got := InstanceName("Flopview", ""); got != "Flopview" {
		t.Errorf("InstanceName with no id = %q", got)
	}
}
