package config

import (
	"fmt"
	"strings"
	"text/template"
)

// CLIParams feeds the service-instance text templates.
type CLIParams struct {
	Interface       string
	ServiceInstance int
	VLAN            int
	PeerIP          string
	VCID            int

	// RestoreInterface makes the removal stanza also return the interface to
	// its default MTU and shut it down.
	RestoreInterface bool
}

// Line order of the creation stanza is fixed; devices and golden tests
// depend on it.
var serviceInstanceTemplate = template.Must(template.New("service-instance").Parse(
	"interface {{.Interface}}\n" +
		"mtu {{.InterfaceMTU}}\n" +
		"no ip address\n" +
		"no service instance {{.ServiceInstance}} ethernet\n" +
		"no shutdown\n" +
		"service instance {{.ServiceInstance}} ethernet\n" +
		"encapsulation {{.Encapsulation}}\n" +
		"xconnect {{.PeerIP}} {{.VCID}} encapsulation mpls\n" +
		"mtu {{.InstanceMTU}}"))

var serviceInstanceRemovalTemplate = template.Must(template.New("service-instance-removal").Parse(
	"interface {{.Interface}}\n" +
		" no service instance {{.ServiceInstance}} ethernet" +
		"{{if .RestoreInterface}}\n no mtu\n shutdown{{end}}"))

type cliView struct {
	CLIParams
	InterfaceMTU  int
	InstanceMTU   int
	Encapsulation string
}

func (p CLIParams) validate(removal bool) error {
	var missing []string
	if p.Interface == "" {
		missing = append(missing, "interface")
	}
	if p.ServiceInstance <= 0 {
		missing = append(missing, "service instance")
	}
	if !removal {
		if p.PeerIP == "" {
			missing = append(missing, "peer ip")
		}
		if p.VCID <= 0 {
			missing = append(missing, "vc-id")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cli template: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func render(t *template.Template, v cliView) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, v); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return sb.String(), nil
}

// RenderServiceInstance renders the stanza creating an Ethernet service
// instance cross-connected to a remote peer over MPLS.
func RenderServiceInstance(p CLIParams) (string, error) {
	if err := p.validate(false); err != nil {
		return "", err
	}
	encap := "untagged"
	if p.VLAN > 0 {
		encap = fmt.Sprintf("dot1q %d", p.VLAN)
	}
	return render(serviceInstanceTemplate, cliView{
		CLIParams:     p,
		InterfaceMTU:  DefaultInterfaceMTU,
		InstanceMTU:   DefaultSubInterfaceMTU,
		Encapsulation: encap,
	})
}

// RenderServiceInstanceRemoval renders the deletion stanza. By default it only
// removes the service instance; interface-level MTU and shutdown state set by
// the creation stanza stay unless RestoreInterface is set.
func RenderServiceInstanceRemoval(p CLIParams) (string, error) {
	if err := p.validate(true); err != nil {
		return "", err
	}
	return render(serviceInstanceRemovalTemplate, cliView{CLIParams: p})
}
