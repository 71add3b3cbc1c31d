// Package helpers provides fixtures for the school gate integration tests.
package helpers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	gateapp "github.com/hit-sharq/kasikeu-boys-high-school/internal/app"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
)

// SessionCookie is the cookie the gate reads session tokens from by default.
const SessionCookie = config.DefaultSessionCookie

// ServerTestHelper manages the gate server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *gateapp.SchoolGateApp
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			// Redirects are what the gate answers with; the tests inspect them
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// StartServer loads the configuration file and serves the gate on a loopback
// listener with an ephemeral port.
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath), config.WithoutEnv())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := gateapp.NewSchoolGateApp(s.ctx, gateapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = app.Stop(time.Second)
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.app = app
	s.baseURL = "http://" + ln.Addr().String()

	go func() {
		if err := app.Serve(ln); err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the gate
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// App returns the running application
func (s *ServerTestHelper) App() *gateapp.SchoolGateApp {
	return s.app
}

// BaseURL returns the root URL of the running gate
func (s *ServerTestHelper) BaseURL() string {
	return s.baseURL
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readyz")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Get issues a GET for path. A non-empty token is sent as the session cookie.
func (s *ServerTestHelper) Get(path, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	}
	return s.httpClient.Do(req)
}

// Do sends req after pointing it at the running gate
func (s *ServerTestHelper) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = s.baseURL[len("http://"):]
	req.RequestURI = ""
	return s.httpClient.Do(req)
}

// ReadBody reads and closes the response body
func ReadBody(resp *http.Response) string {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return string(body)
}
