package configdb

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/evc/pkg/util"
)

// DefaultRemoteRedis is where the configuration database listens inside the
// device.
const DefaultRemoteRedis = "127.0.0.1:6379"

// SSHTunnel forwards a local TCP port to the device's configuration database
// through an SSH connection. The database is bound to loopback on the device
// and has no authentication of its own.
type SSHTunnel struct {
	localAddr  string
	remoteAddr string
	sshClient  *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewSSHTunnel dials SSH on host:port (22 when port is 0) and opens a local
// listener on a random port. Connections to it are forwarded to remote, or
// DefaultRemoteRedis when remote is empty.
func NewSSHTunnel(host string, port int, user, pass, remote string) (*SSHTunnel, error) {
	if port == 0 {
		port = 22
	}
	if remote == "" {
		remote = DefaultRemoteRedis
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	util.Logger.Warnf("SSH tunnel to %s: host key verification disabled", addr)
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", user, addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remote,
		sshClient:  sshClient,
		listener:   listener,
		done:       make(chan struct{}),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

// LocalAddr returns the local end of the tunnel.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener and the SSH connection and waits for forwarding
// goroutines to exit.
func (t *SSHTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	// closing the client unblocks io.Copy on remote reads
	err := t.sshClient.Close()
	t.wg.Wait()
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.Debugf("tunnel dial %s: %v", t.remoteAddr, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
