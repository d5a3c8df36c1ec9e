// Package config assembles backend-specific configuration from abstract
// service endpoints. Everything here is pure: no device access, no logging.
//
// Structured configuration is expressed as a tree of typed objects
// (cross-connect groups, bridge-domain groups, interfaces, policy maps) that
// flatten to ordered table|key entries. A Delta collects the entries to merge
// and the subtrees to delete on one device.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Structured configuration tables.
const (
	TableInterface     = "INTERFACE"
	TableSubInterface  = "SUBINTERFACE"
	TableLoopback      = "LOOPBACK_INTERFACE"
	TableXConnectGroup = "L2VPN_XC_GROUP"
	TableXConnect      = "L2VPN_XC"
	TableXConnectAC    = "L2VPN_XC_AC"
	TableXConnectPW    = "L2VPN_XC_PW"
	TableBridgeGroup   = "L2VPN_BD_GROUP"
	TableBridgeDomain  = "L2VPN_BD"
	TableBridgeAC      = "L2VPN_BD_AC"
	TableBridgePW      = "L2VPN_BD_PW"
	TablePolicyMap     = "POLICY_MAP"
	TableServicePolicy = "SERVICE_POLICY"
)

// KeySeparator joins key components inside a table.
const KeySeparator = "|"

// Key joins key components.
func Key(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

// Entry is a single table|key hash of structured configuration.
type Entry struct {
	Table  string
	Key    string
	Fields map[string]string
}

func (e Entry) String() string {
	return e.Table + KeySeparator + e.Key
}

// Subtree names a configuration subtree: the entry Table|Key and every entry
// whose key extends Key with further components.
type Subtree struct {
	Table string
	Key   string
}

// Contains reports whether table|key lies inside the subtree.
func (s Subtree) Contains(table, key string) bool {
	if table != s.Table {
		return false
	}
	return key == s.Key || strings.HasPrefix(key, s.Key+KeySeparator)
}

func (s Subtree) String() string {
	return s.Table + KeySeparator + s.Key + "/*"
}

// Delta is the configuration change for one device. It is owned by the driver
// that built it until handed to a session; it is never shared across devices.
type Delta struct {
	Device string
	Merge  []Entry
	Delete []Subtree
}

// NewDelta creates an empty delta for device.
func NewDelta(device string) *Delta {
	return &Delta{Device: device}
}

// Add appends entries to merge.
func (d *Delta) Add(entries ...Entry) *Delta {
	d.Merge = append(d.Merge, entries...)
	return d
}

// Remove appends subtrees to delete.
func (d *Delta) Remove(subtrees ...Subtree) *Delta {
	d.Delete = append(d.Delete, subtrees...)
	return d
}

// Combine folds other into d. Both must target the same device.
func (d *Delta) Combine(other *Delta) error {
	if other == nil {
		return nil
	}
	if other.Device != d.Device {
		return fmt.Errorf("cannot combine delta for %s into delta for %s", other.Device, d.Device)
	}
	d.Merge = append(d.Merge, other.Merge...)
	d.Delete = append(d.Delete, other.Delete...)
	return nil
}

// IsEmpty returns true if the delta changes nothing.
func (d *Delta) IsEmpty() bool {
	return d == nil || (len(d.Merge) == 0 && len(d.Delete) == 0)
}

// String returns a human-readable representation of the delta.
func (d *Delta) String() string {
	if d.IsEmpty() {
		return "No changes"
	}
	var sb strings.Builder
	for _, s := range d.Delete {
		fmt.Fprintf(&sb, "  [DEL] %s\n", s)
	}
	for _, e := range d.Merge {
		fmt.Fprintf(&sb, "  [SET] %s", e)
		if len(e.Fields) > 0 {
			keys := make([]string, 0, len(e.Fields))
			for k := range e.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, len(keys))
			for i, k := range keys {
				pairs[i] = k + "=" + e.Fields[k]
			}
			fmt.Fprintf(&sb, " → {%s}", strings.Join(pairs, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
