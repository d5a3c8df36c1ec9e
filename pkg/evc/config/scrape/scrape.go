// Package scrape extracts identifiers already present in a device's textual
// running configuration. Allocators use the results to avoid collisions with
// configuration made outside this system.
package scrape

import (
	"bufio"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	xconnectRegexp        = regexp.MustCompile(`^\s*xconnect\s+\S+\s+(\d+)\b`)
	ipAddressRegexp       = regexp.MustCompile(`^\s*ip address\s+(\S+)(?:\s+\S+)?`)
	serviceInstanceRegexp = regexp.MustCompile(`^\s*service instance\s+(\d+)\s+ethernet\b`)
	interfaceRegexp       = regexp.MustCompile(`^interface\s+(\S+)\s*$`)
	encapsulationRegexp   = regexp.MustCompile(`^\s*encapsulation\s+(.+?)\s*$`)
)

// VCIDs returns every virtual-circuit ID used by an xconnect statement.
func VCIDs(runningConfig string) map[int]bool {
	out := make(map[int]bool)
	scanner := bufio.NewScanner(strings.NewReader(runningConfig))
	for scanner.Scan() {
		if m := xconnectRegexp.FindStringSubmatch(scanner.Text()); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil {
				out[id] = true
			}
		}
	}
	return out
}

// Interfaces splits the configuration into interface stanzas keyed by
// interface name. A stanza ends at the next top-level line.
func Interfaces(runningConfig string) map[string][]string {
	out := make(map[string][]string)
	current := ""
	scanner := bufio.NewScanner(strings.NewReader(runningConfig))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := interfaceRegexp.FindStringSubmatch(line); m != nil {
			current = m[1]
			if _, ok := out[current]; !ok {
				out[current] = []string{}
			}
			continue
		}
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			if current != "" && strings.TrimSpace(line) != "" {
				out[current] = append(out[current], line)
			}
			continue
		}
		// "!" and any other top-level command close the stanza
		current = ""
	}
	return out
}

// Loopback returns the IPv4 address of the named loopback interface.
func Loopback(runningConfig, name string) (string, bool) {
	for _, line := range Interfaces(runningConfig)[name] {
		if m := ipAddressRegexp.FindStringSubmatch(line); m != nil {
			if ip := net.ParseIP(m[1]); ip != nil && ip.To4() != nil {
				return m[1], true
			}
		}
	}
	return "", false
}

// Instance is one Ethernet service instance found under an interface.
type Instance struct {
	ID            int
	Encapsulation string // "dot1q 100", "untagged"
	Peer          string
	VCID          int
}

// VLAN returns the dot1q tag of the instance, or 0 when untagged.
func (in Instance) VLAN() int {
	if f := strings.Fields(in.Encapsulation); len(f) == 2 && f[0] == "dot1q" {
		v, _ := strconv.Atoi(f[1])
		return v
	}
	return 0
}

// Instances returns the service instances configured on an interface, in
// configuration order.
func Instances(runningConfig, ifname string) []Instance {
	var out []Instance
	var current *Instance
	depth := 0
	for _, line := range Interfaces(runningConfig)[ifname] {
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if m := serviceInstanceRegexp.FindStringSubmatch(line); m != nil {
			id, _ := strconv.Atoi(m[1])
			out = append(out, Instance{ID: id})
			current = &out[len(out)-1]
			depth = indent
			continue
		}
		if current == nil {
			continue
		}
		if indent <= depth {
			current = nil
			continue
		}
		if m := xconnectRegexp.FindStringSubmatch(line); m != nil {
			current.VCID, _ = strconv.Atoi(m[1])
			current.Peer = strings.Fields(line)[1]
			continue
		}
		if m := encapsulationRegexp.FindStringSubmatch(line); m != nil {
			current.Encapsulation = m[1]
		}
	}
	return out
}

// ServiceInstances returns the Ethernet service-instance IDs configured on
// an interface.
func ServiceInstances(runningConfig, ifname string) map[int]bool {
	out := make(map[int]bool)
	for _, in := range Instances(runningConfig, ifname) {
		out[in.ID] = true
	}
	return out
}

// FindInstance returns service instance id on ifname.
func FindInstance(runningConfig, ifname string, id int) (Instance, bool) {
	for _, in := range Instances(runningConfig, ifname) {
		if in.ID == id {
			return in, true
		}
	}
	return Instance{}, false
}

// FindTaggedInstance returns the service instance on ifname encapsulating
// dot1q vlan, preferring the one whose ID equals vlan.
func FindTaggedInstance(runningConfig, ifname string, vlan int) (Instance, bool) {
	var found *Instance
	instances := Instances(runningConfig, ifname)
	for i := range instances {
		if instances[i].VLAN() != vlan {
			continue
		}
		if instances[i].ID == vlan {
			return instances[i], true
		}
		if found == nil {
			found = &instances[i]
		}
	}
	if found == nil {
		return Instance{}, false
	}
	return *found, true
}

// FindUntaggedInstance returns the first untagged service instance on ifname
// that is cross-connected to a pseudowire.
func FindUntaggedInstance(runningConfig, ifname string) (Instance, bool) {
	for _, in := range Instances(runningConfig, ifname) {
		if in.Encapsulation == "untagged" && in.VCID > 0 {
			return in, true
		}
	}
	return Instance{}, false
}
