package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// RESTDevice emulates the REST API of a CLI-configured router. It keeps a
// small model of interfaces and service instances, accepts CLI text on PUT
// and renders an indented running configuration on GET.
type RESTDevice struct {
	Username string
	Password string

	server *httptest.Server

	mu         sync.Mutex
	hostname   string
	loopback   string
	interfaces map[string]*fakeInterface
	tokens     map[string]bool
	tokenSeq   int
	applied    []string
	requests   []string
	failStatus int
	failBody   string
	conns      map[net.Conn]bool
}

type fakeInterface struct {
	mtu       int
	shutdown  bool
	instances map[int]*fakeInstance
}

type fakeInstance struct {
	encapsulation string
	xconnect      string
	mtu           int
}

// NewRESTDevice starts a fake device on a local TLS listener.
func NewRESTDevice(t *testing.T, hostname string) *RESTDevice {
	t.Helper()
	d := &RESTDevice{
		Username:   "admin",
		Password:   "admin",
		hostname:   hostname,
		interfaces: make(map[string]*fakeInterface),
		tokens:     make(map[string]bool),
		conns:      make(map[net.Conn]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/token-services", d.handleLogin)
	mux.HandleFunc("DELETE /api/v1/auth/token-services/{token}", d.handleLogout)
	mux.HandleFunc("GET /api/v1/global/running-config", d.handleGet)
	mux.HandleFunc("PUT /api/v1/global/running-config", d.handlePut)

	d.server = httptest.NewUnstartedServer(d.record(mux))
	d.server.Config.ConnState = d.trackConn
	d.server.StartTLS()
	t.Cleanup(d.server.Close)
	return d
}

// Host returns the listener address without port.
func (d *RESTDevice) Host() string {
	host, _, _ := net.SplitHostPort(d.server.Listener.Addr().String())
	return host
}

// Port returns the listener port.
func (d *RESTDevice) Port() int {
	_, port, _ := net.SplitHostPort(d.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// SetLoopback configures Loopback0.
func (d *RESTDevice) SetLoopback(ip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loopback = ip
}

// AddServiceInstance seeds a service instance as if configured by someone else.
func (d *RESTDevice) AddServiceInstance(ifname string, id int, encapsulation, peer string, vcid int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst := d.iface(ifname).instance(id)
	inst.encapsulation = encapsulation
	inst.xconnect = fmt.Sprintf("%s %d encapsulation mpls", peer, vcid)
}

// FailApply makes every later PUT fail with status and body.
func (d *RESTDevice) FailApply(status int, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStatus = status
	d.failBody = body
}

// Applied returns every CLI block accepted so far.
func (d *RESTDevice) Applied() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.applied...)
}

// Requests returns "METHOD path" for every request received.
func (d *RESTDevice) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

// ActiveTokens returns the number of tokens not yet revoked.
func (d *RESTDevice) ActiveTokens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// OpenConnections returns the number of client connections not yet closed.
func (d *RESTDevice) OpenConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *RESTDevice) trackConn(c net.Conn, state http.ConnState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch state {
	case http.StateNew:
		d.conns[c] = true
	case http.StateClosed, http.StateHijacked:
		delete(d.conns, c)
	}
}

// HasServiceInstance reports whether service instance id exists on ifname.
func (d *RESTDevice) HasServiceInstance(ifname string, id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.interfaces[ifname]
	if !ok {
		return false
	}
	_, ok = i.instances[id]
	return ok
}

// RunningConfig renders the current configuration.
func (d *RESTDevice) RunningConfig() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.render()
}

func (d *RESTDevice) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.requests = append(d.requests, r.Method+" "+r.URL.Path)
		d.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (d *RESTDevice) authorized(r *http.Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[r.Header.Get("X-Auth-Token")]
}

func (d *RESTDevice) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != d.Username || pass != d.Password {
		http.Error(w, `{"error":"authentication failed"}`, http.StatusUnauthorized)
		return
	}
	d.mu.Lock()
	d.tokenSeq++
	token := fmt.Sprintf("token-%d", d.tokenSeq)
	d.tokens[token] = true
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token-id": token})
}

func (d *RESTDevice) handleLogout(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	delete(d.tokens, r.PathValue("token"))
	d.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (d *RESTDevice) handleGet(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, d.RunningConfig())
}

func (d *RESTDevice) handlePut(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStatus != 0 {
		http.Error(w, d.failBody, d.failStatus)
		return
	}
	if err := d.apply(string(body)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.applied = append(d.applied, string(body))
	w.WriteHeader(http.StatusNoContent)
}

func (d *RESTDevice) iface(name string) *fakeInterface {
	i, ok := d.interfaces[name]
	if !ok {
		i = &fakeInterface{instances: make(map[int]*fakeInstance)}
		d.interfaces[name] = i
	}
	return i
}

func (i *fakeInterface) instance(id int) *fakeInstance {
	inst, ok := i.instances[id]
	if !ok {
		inst = &fakeInstance{}
		i.instances[id] = inst
	}
	return inst
}

// apply interprets the subset of CLI the drivers emit. Unknown commands
// reject the whole block without changing state.
func (d *RESTDevice) apply(text string) error {
	var iface *fakeInterface
	var inst *fakeInstance
	var changes []func()
	pending := make(map[string]*fakeInterface)

	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		f := strings.Fields(line)
		switch {
		case line == "" || line == "!":
		case len(f) == 2 && f[0] == "interface":
			name := f[1]
			existing, ok := d.interfaces[name]
			if !ok {
				existing, ok = pending[name]
			}
			if !ok {
				existing = &fakeInterface{instances: make(map[int]*fakeInstance)}
				pending[name] = existing
				created := existing
				changes = append(changes, func() { d.interfaces[name] = created })
			}
			iface, inst = existing, nil
		case iface == nil:
			return fmt.Errorf("%% Invalid input at line %d: %s", n+1, line)
		case len(f) == 4 && f[0] == "no" && f[1] == "service" && f[2] == "instance":
			id, _ := strconv.Atoi(f[3])
			target := iface
			changes = append(changes, func() { delete(target.instances, id) })
			inst = nil
		case len(f) == 5 && f[0] == "no" && f[1] == "service" && f[2] == "instance":
			id, _ := strconv.Atoi(f[3])
			target := iface
			changes = append(changes, func() { delete(target.instances, id) })
			inst = nil
		case len(f) == 4 && f[0] == "service" && f[1] == "instance" && f[3] == "ethernet":
			id, _ := strconv.Atoi(f[2])
			inst = &fakeInstance{}
			target, created := iface, inst
			changes = append(changes, func() { target.instances[id] = created })
		case f[0] == "encapsulation" && inst != nil:
			target, v := inst, strings.Join(f[1:], " ")
			changes = append(changes, func() { target.encapsulation = v })
		case f[0] == "xconnect" && inst != nil:
			target, v := inst, strings.Join(f[1:], " ")
			changes = append(changes, func() { target.xconnect = v })
		case len(f) == 2 && f[0] == "mtu":
			mtu, _ := strconv.Atoi(f[1])
			if inst != nil {
				target := inst
				changes = append(changes, func() { target.mtu = mtu })
			} else {
				target := iface
				changes = append(changes, func() { target.mtu = mtu })
			}
		case line == "no mtu":
			target := iface
			changes = append(changes, func() { target.mtu = 0 })
		case line == "shutdown":
			target := iface
			changes = append(changes, func() { target.shutdown = true })
		case line == "no shutdown":
			target := iface
			changes = append(changes, func() { target.shutdown = false })
		case line == "no ip address":
		default:
			return fmt.Errorf("%% Invalid input at line %d: %s", n+1, line)
		}
	}
	for _, c := range changes {
		c()
	}
	return nil
}

func (d *RESTDevice) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "!\nhostname %s\n!\n", d.hostname)
	if d.loopback != "" {
		fmt.Fprintf(&sb, "interface Loopback0\n ip address %s 255.255.255.255\n!\n", d.loopback)
	}

	names := make([]string, 0, len(d.interfaces))
	for name := range d.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		i := d.interfaces[name]
		fmt.Fprintf(&sb, "interface %s\n", name)
		if i.mtu > 0 {
			fmt.Fprintf(&sb, " mtu %d\n", i.mtu)
		}
		sb.WriteString(" no ip address\n")
		if i.shutdown {
			sb.WriteString(" shutdown\n")
		}
		ids := make([]int, 0, len(i.instances))
		for id := range i.instances {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			inst := i.instances[id]
			fmt.Fprintf(&sb, " service instance %d ethernet\n", id)
			if inst.encapsulation != "" {
				fmt.Fprintf(&sb, "  encapsulation %s\n", inst.encapsulation)
			}
			if inst.xconnect != "" {
				fmt.Fprintf(&sb, "  xconnect %s\n", inst.xconnect)
			}
			if inst.mtu > 0 {
				fmt.Fprintf(&sb, "   mtu %d\n", inst.mtu)
			}
		}
		sb.WriteString("!\n")
	}
	sb.WriteString("end\n")
	return sb.String()
}
