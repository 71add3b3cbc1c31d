package helpers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/api"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
)

// HMACSecret signs the session tokens used by the tests
const HMACSecret = "integration-session-secret"

// WebhookSecret is the identity provider's webhook signing secret
var WebhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("integration-webhook-key"))

// AdminID is the only subject on the admin allow-list
const AdminID = "user_head_teacher"

// EchoResponse is what the stub site returns for every request
type EchoResponse struct {
	Path    string `json:"path"`
	Subject string `json:"subject"`
	Host    string `json:"host"`
}

// NewEchoSite starts a stub site that echoes the path and the forwarded subject
func NewEchoSite() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(EchoResponse{
			Path:    r.URL.RequestURI(),
			Subject: r.Header.Get(api.SubjectHeader),
			Host:    r.Host,
		})
	}))
}

// WriteConfigYAML writes cfg to dir/config.yaml, adding an HMAC identity
// section whose secret lives in dir/hmac-secret.
func WriteConfigYAML(dir string, cfg *config.Config) string {
	secretPath := filepath.Join(dir, "hmac-secret")
	gomega.Expect(os.WriteFile(secretPath, []byte(HMACSecret+"\n"), 0600)).To(gomega.Succeed())

	cfg.Identity = &config.IdentityConfig{
		Mode:   config.IdentityModeHMAC,
		Issuer: "https://clerk.kasikeu.example",
		HMAC:   &config.HMACConfig{SecretFile: secretPath},
	}
	if cfg.AdminIDs == "" {
		cfg.AdminIDs = AdminID
	}

	data, err := yaml.Marshal(cfg)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, data, 0600)).To(gomega.Succeed())
	return path
}

// SessionToken signs a session token for sub that expires after ttl
func SessionToken(sub string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "https://clerk.kasikeu.example",
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(HMACSecret))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return token
}

// UniqueID returns an identity-provider style user id
func UniqueID(prefix string) string {
	return fmt.Sprintf("user_%s_%d", prefix, time.Now().UnixNano())
}
