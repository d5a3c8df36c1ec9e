package util

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultInterfaceFamily is used when a port identifier does not start with a
// recognizable interface family name.
const DefaultInterfaceFamily = "GigabitEthernet"

var (
	portNameRegexp    = regexp.MustCompile(`^([A-Za-z][A-Za-z-]*)(\d+(?:/\d+)*)$`)
	trailingNumRegexp = regexp.MustCompile(`(\d+(?:/\d+)*)$`)
)

var (
	// shortToLong maps lower-cased abbreviations to full interface family names
	shortToLong = map[string]string{
		"gi":  "GigabitEthernet",
		"gig": "GigabitEthernet",
		"ge":  "GigabitEthernet",
		"te":  "TenGigabitEthernet",
		"fa":  "FastEthernet",
		"fo":  "FortyGigabitEthernet",
		"hu":  "HundredGigE",
		"be":  "Bundle-Ether",
		"po":  "Port-channel",
		"lo":  "Loopback",
	}

	// shortToLongSorted contains abbreviation keys sorted longest-first
	// so that "gig" is matched before "gi" in NormalizeInterfaceName.
	shortToLongSorted []string
)

func init() {
	shortToLongSorted = make([]string, 0, len(shortToLong))
	for k := range shortToLong {
		shortToLongSorted = append(shortToLongSorted, k)
	}
	sort.Slice(shortToLongSorted, func(i, j int) bool {
		return len(shortToLongSorted[i]) > len(shortToLongSorted[j])
	})
}

// NormalizeInterfaceName expands abbreviated interface names.
// Gi4 -> GigabitEthernet4, Te0/1 -> TenGigabitEthernet0/1, be10 -> Bundle-Ether10
func NormalizeInterfaceName(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)

	for _, abbr := range shortToLongSorted {
		if strings.HasPrefix(lower, abbr) && len(name) > len(abbr) {
			suffix := name[len(abbr):]
			if suffix[0] >= '0' && suffix[0] <= '9' {
				return shortToLong[abbr] + suffix
			}
		}
	}

	// Already in long form or unknown
	return name
}

// ParsePortName splits a port identifier into its interface family and the
// numeric slot/port suffix. A topology prefix ("node:port") is dropped.
//
//	GigabitEthernet0/0/0/1 -> ("GigabitEthernet", "0/0/0/1")
//	Gi4                    -> ("GigabitEthernet", "4")
//	7                      -> (DefaultInterfaceFamily, "7")
func ParsePortName(port string) (family, number string) {
	if idx := strings.LastIndex(port, ":"); idx >= 0 {
		port = port[idx+1:]
	}
	port = NormalizeInterfaceName(port)

	if m := portNameRegexp.FindStringSubmatch(port); len(m) == 3 {
		return m[1], m[2]
	}
	if m := trailingNumRegexp.FindStringSubmatch(port); len(m) == 2 {
		return DefaultInterfaceFamily, m[1]
	}
	return DefaultInterfaceFamily, port
}

// InterfaceName returns the physical interface name for a port identifier.
func InterfaceName(port string) string {
	family, number := ParsePortName(port)
	return family + number
}

// SubInterfaceName returns the dot1q sub-interface name for a VLAN.
// GigabitEthernet0/0/0/1, 100 -> GigabitEthernet0/0/0/1.100
func SubInterfaceName(ifname string, vlan int) string {
	if vlan <= 0 {
		return ifname
	}
	return ifname + "." + strconv.Itoa(vlan)
}
