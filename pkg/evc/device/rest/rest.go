// Package rest is the token-authenticated REST transport for devices that are
// configured with CLI text.
//
// A session authenticates once against /auth/token-services and carries the
// returned token in the X-Auth-Token header of every later request. Device
// certificates are self-signed in practice, so certificate verification is
// disabled.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/util"
	"github.com/newtron-network/evc/pkg/version"
)

const (
	// DefaultPort is the HTTPS port of the device REST API.
	DefaultPort = 443

	// DefaultTimeout bounds each HTTP exchange.
	DefaultTimeout = 30 * time.Second

	apiPrefix         = "/api/v1"
	tokenPath         = "/auth/token-services"
	runningConfigPath = "/global/running-config"

	// TokenHeader carries the session token.
	TokenHeader = "X-Auth-Token"
)

// Target is the REST endpoint and credentials of one device.
type Target struct {
	Address  string
	Port     int
	Username string
	Password string
}

// Targets resolves a device name to its REST target.
type Targets interface {
	RESTTarget(device string) (Target, error)
}

// Executor opens REST sessions.
type Executor struct {
	Targets Targets
	Timeout time.Duration

	client *http.Client
}

// NewExecutor creates an executor sharing one HTTP client across sessions.
func NewExecutor(targets Targets, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Executor{
		Targets: targets,
		Timeout: timeout,
		client:  &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Open implements device.Executor.
func (e *Executor) Open(ctx context.Context, name string) (device.Session, error) {
	return e.Connect(ctx, name)
}

// Connect authenticates against the device and returns a session.
func (e *Executor) Connect(ctx context.Context, name string) (*Session, error) {
	target, err := e.Targets.RESTTarget(name)
	if err != nil {
		return nil, err
	}
	if target.Address == "" {
		return nil, util.NewResourceError(name, "REST endpoint", "no management address")
	}
	port := target.Port
	if port == 0 {
		port = DefaultPort
	}

	s := &Session{
		device:  name,
		baseURL: "https://" + net.JoinHostPort(target.Address, strconv.Itoa(port)) + apiPrefix,
		client:  e.client,
	}
	if err := s.authenticate(ctx, target.Username, target.Password); err != nil {
		return nil, err
	}
	util.WithDevice(name).Debugf("REST session opened at %s", s.baseURL)
	return s, nil
}

// Session is an authenticated REST channel to one device.
type Session struct {
	device  string
	baseURL string
	token   string
	client  *http.Client
}

// Device implements device.Session.
func (s *Session) Device() string { return s.device }

type tokenResponse struct {
	TokenID string `json:"token-id"`
}

func (s *Session) authenticate(ctx context.Context, user, pass string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+tokenPath, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(user, pass)
	req.Header.Set("Accept", "application/json")

	status, body, err := s.do(req)
	if err != nil {
		return &util.TransportError{Device: s.device, Operation: "authenticate", Err: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &util.TransportError{Device: s.device, Operation: "authenticate", Status: status, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.TokenID == "" {
		return &util.TransportError{
			Device:    s.device,
			Operation: "authenticate",
			Status:    status,
			Body:      string(body),
			Err:       fmt.Errorf("no token in response"),
		}
	}
	s.token = tr.TokenID
	return nil
}

// RunningConfig fetches the full text configuration.
func (s *Session) RunningConfig(ctx context.Context) (string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, runningConfigPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")

	status, body, err := s.do(req)
	if err != nil {
		return "", &util.TransportError{Device: s.device, Operation: "read running-config", Err: err}
	}
	if status != http.StatusOK {
		return "", &util.TransportError{Device: s.device, Operation: "read running-config", Status: status, Body: string(body)}
	}
	return string(body), nil
}

// Send applies a block of CLI text to the running configuration.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	req, err := s.newRequest(ctx, http.MethodPut, runningConfigPath, strings.NewReader(text))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	status, body, err := s.do(req)
	if err != nil {
		return &util.TransportError{Device: s.device, Operation: "apply configuration", Err: err}
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return &util.TransportError{Device: s.device, Operation: "apply configuration", Status: status, Body: string(body)}
	}
	util.WithDevice(s.device).Infof("applied %d lines of configuration", strings.Count(text, "\n")+1)
	return nil
}

// Close revokes the token and closes idle connections of the shared client.
// Revocation failures are logged, not returned: the token expires on the
// device anyway.
func (s *Session) Close() error {
	defer s.client.CloseIdleConnections()
	if s.token == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodDelete, tokenPath+"/"+s.token, nil)
	if err == nil {
		if status, _, derr := s.do(req); derr != nil {
			util.WithDevice(s.device).Debugf("token revocation: %v", derr)
		} else if status >= 300 {
			util.WithDevice(s.device).Debugf("token revocation: HTTP %d", status)
		}
	}
	s.token = ""
	return nil
}

func (s *Session) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if s.token == "" {
		return nil, fmt.Errorf("REST session to %s is not authenticated", s.device)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(TokenHeader, s.token)
	return req, nil
}

func (s *Session) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, buf.Bytes(), nil
}
