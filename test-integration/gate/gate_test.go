package integration

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/api"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
	"github.com/hit-sharq/kasikeu-boys-high-school/test-integration/gate/helpers"
)

var _ = Describe("Route gate", Label("gate"), func() {
	var (
		tempDir      string
		site         *httptest.Server
		serverHelper *helpers.ServerTestHelper
	)

	echoFor := func(resp *http.Response) helpers.EchoResponse {
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var echo helpers.EchoResponse
		Expect(json.Unmarshal([]byte(helpers.ReadBody(resp)), &echo)).To(Succeed())
		return echo
	}

	BeforeEach(func() {
		tempDir = createTempDir("gate-test-")
		site = helpers.NewEchoSite()

		configFile := helpers.WriteConfigYAML(tempDir, &config.Config{
			Upstream: &config.UpstreamConfig{URL: site.URL},
		})

		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		site.Close()
		cleanupTempDir(tempDir)
	})

	Context("anonymous visitor", func() {
		It("reaches public pages", func() {
			resp, err := serverHelper.Get("/news/sports-day", "")
			Expect(err).NotTo(HaveOccurred())

			echo := echoFor(resp)
			Expect(echo.Path).To(Equal("/news/sports-day"))
			Expect(echo.Subject).To(BeEmpty())
		})

		It("is sent to sign in from protected pages with the original URL", func() {
			resp, err := serverHelper.Get("/dashboard?tab=results", "")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()

			Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
			location, err := url.Parse(resp.Header.Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(location.Path).To(Equal("/sign-in"))
			Expect(location.Query().Get("redirect_url")).To(Equal("/dashboard?tab=results"))
		})

		It("is sent to sign in from admin pages", func() {
			resp, err := serverHelper.Get("/admin/news", "")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()

			Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
			Expect(resp.Header.Get("Location")).To(Equal("/sign-in?redirect_url=%2Fadmin%2Fnews"))
		})

		It("gets 401 JSON from admin APIs", func() {
			resp, err := serverHelper.Get("/api/admin/users", "")
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"error":"Authentication required"}`))
		})

		DescribeTable("gets 401 JSON from admin APIs behind non-canonical paths",
			func(target string) {
				resp, err := serverHelper.Get(target, "")
				Expect(err).NotTo(HaveOccurred())

				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"error":"Authentication required"}`))
			},
			Entry("double slash", "//api/admin/news"),
			Entry("parent segment", "/x/../api/admin/news"),
			Entry("parent of a public page", "/news/../api/admin/news"),
			Entry("parent of next internals", "/_next/../api/admin/news"),
		)

		It("loads static assets under admin paths without a session", func() {
			resp, err := serverHelper.Get("/admin/crest.png", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Path).To(Equal("/admin/crest.png"))
		})

		It("is treated as anonymous when the session has expired", func() {
			expired := helpers.SessionToken("user_student", -time.Hour)
			resp, err := serverHelper.Get("/dashboard", expired)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()

			Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
		})

		It("cannot forge the forwarded subject", func() {
			req, err := http.NewRequest(http.MethodGet, "/about", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set(api.SubjectHeader, helpers.AdminID)

			resp, err := serverHelper.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Subject).To(BeEmpty())
		})
	})

	Context("signed-in student", func() {
		var token string

		BeforeEach(func() {
			token = helpers.SessionToken("user_student", time.Hour)
		})

		It("reaches protected pages and the site sees the subject", func() {
			resp, err := serverHelper.Get("/dashboard", token)
			Expect(err).NotTo(HaveOccurred())

			echo := echoFor(resp)
			Expect(echo.Path).To(Equal("/dashboard"))
			Expect(echo.Subject).To(Equal("user_student"))
		})

		It("is accepted with a bearer token", func() {
			req, err := http.NewRequest(http.MethodGet, "/api/grades", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := serverHelper.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Subject).To(Equal("user_student"))
		})

		It("gets 403 JSON from admin APIs", func() {
			resp, err := serverHelper.Get("/api/admin/news", token)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"error":"Admin access required"}`))
		})

		DescribeTable("gets 403 JSON from admin APIs behind non-canonical paths",
			func(target string) {
				resp, err := serverHelper.Get(target, token)
				Expect(err).NotTo(HaveOccurred())

				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
				Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"error":"Admin access required"}`))
			},
			Entry("double slash", "//api/admin/news"),
			Entry("parent segment", "/x/../api/admin/news"),
			Entry("parent of a public page", "/news/../api/admin/news"),
		)

		It("is sent home from admin pages", func() {
			resp, err := serverHelper.Get("/admin", token)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()

			Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
			Expect(resp.Header.Get("Location")).To(Equal("/?error=unauthorized"))
		})

		It("is reported as a non-admin by check-admin", func() {
			resp, err := serverHelper.Get(api.CheckAdminPath, token)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(helpers.ReadBody(resp)).To(MatchJSON(
				`{"isAdmin":false,"isAuthenticated":true,"userId":"user_student"}`))
		})
	})

	Context("signed-in admin", func() {
		var token string

		BeforeEach(func() {
			token = helpers.SessionToken(helpers.AdminID, time.Hour)
		})

		It("reaches admin pages", func() {
			resp, err := serverHelper.Get("/admin/gallery", token)
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Subject).To(Equal(helpers.AdminID))
		})

		It("reaches admin APIs", func() {
			resp, err := serverHelper.Get("/api/admin/news", token)
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Path).To(Equal("/api/admin/news"))
		})

		It("reaches admin APIs through non-canonical paths at their canonical path", func() {
			resp, err := serverHelper.Get("/news/../api/admin/news", token)
			Expect(err).NotTo(HaveOccurred())
			Expect(echoFor(resp).Path).To(Equal("/api/admin/news"))
		})

		It("lists the user directory", func() {
			resp, err := serverHelper.Get(api.AdminUsersPath, token)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(helpers.ReadBody(resp)).To(ContainSubstring(`"users":`))
		})

		It("is reported as an admin by check-admin", func() {
			resp, err := serverHelper.Get(api.CheckAdminPath, token)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(helpers.ReadBody(resp)).To(MatchJSON(
				`{"isAdmin":true,"isAuthenticated":true,"userId":"user_head_teacher"}`))
		})
	})

	Context("infrastructure endpoints", func() {
		It("serves health without a session", func() {
			resp, err := serverHelper.Get(api.HealthPath, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"status":"healthy"}`))
		})

		It("serves version without a session", func() {
			resp, err := serverHelper.Get(api.VersionPath, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(helpers.ReadBody(resp)).To(ContainSubstring(`"go_version"`))
		})
	})
})
