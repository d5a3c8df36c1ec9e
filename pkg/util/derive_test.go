package util

import "testing"

func TestNormalizeInterfaceName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Gi4", "GigabitEthernet4"},
		{"gi0/0/0/1", "GigabitEthernet0/0/0/1"},
		{"Gig2", "GigabitEthernet2"},
		{"Te0/1", "TenGigabitEthernet0/1"},
		{"be10", "Bundle-Ether10"},
		{"Lo0", "Loopback0"},
		{"GigabitEthernet4", "GigabitEthernet4"},
		{"Port-channel1", "Port-channel1"},
		{"  Gi4 ", "GigabitEthernet4"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeInterfaceName(tt.input); got != tt.want {
				t.Errorf("NormalizeInterfaceName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePortName(t *testing.T) {
	tests := []struct {
		port       string
		wantFamily string
		wantNumber string
	}{
		{"GigabitEthernet0/0/0/1", "GigabitEthernet", "0/0/0/1"},
		{"pe1:GigabitEthernet0/0/0/1", "GigabitEthernet", "0/0/0/1"},
		{"Gi4", "GigabitEthernet", "4"},
		{"TenGigE0/0/0/0", "TenGigE", "0/0/0/0"},
		{"Bundle-Ether10", "Bundle-Ether", "10"},
		{"7", DefaultInterfaceFamily, "7"},
		{"port_3", DefaultInterfaceFamily, "3"},
		{"uplink", DefaultInterfaceFamily, "uplink"},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			family, number := ParsePortName(tt.port)
			if family != tt.wantFamily || number != tt.wantNumber {
				t.Errorf("ParsePortName(%q) = (%q, %q), want (%q, %q)",
					tt.port, family, number, tt.wantFamily, tt.wantNumber)
			}
		})
	}
}

func TestInterfaceName(t *testing.T) {
	if got := InterfaceName("Gi4"); got != "GigabitEthernet4" {
		t.Errorf("InterfaceName(Gi4) = %q", got)
	}
	if got := InterfaceName("3"); got != "GigabitEthernet3" {
		t.Errorf("InterfaceName(3) = %q", got)
	}
}

func TestSubInterfaceName(t *testing.T) {
	if got := SubInterfaceName("GigabitEthernet0/0/0/1", 100); got != "GigabitEthernet0/0/0/1.100" {
		t.Errorf("SubInterfaceName = %q", got)
	}
	if got := SubInterfaceName("GigabitEthernet0/0/0/1", 0); got != "GigabitEthernet0/0/0/1" {
		t.Errorf("untagged SubInterfaceName = %q", got)
	}
}
