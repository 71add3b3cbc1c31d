package integration

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/webhook"
	"github.com/hit-sharq/kasikeu-boys-high-school/test-integration/gate/helpers"
)

var _ = Describe("Identity webhook", Label("webhook", "redis"), func() {
	var (
		tempDir      string
		mr           *miniredis.Miniredis
		serverHelper *helpers.ServerTestHelper
		store        users.Store
	)

	deliver := func(body []byte, secret string) int {
		resp, err := serverHelper.Do(helpers.WebhookRequest(body, secret))
		Expect(err).NotTo(HaveOccurred())
		_ = helpers.ReadBody(resp)
		return resp.StatusCode
	}

	BeforeEach(func() {
		tempDir = createTempDir("webhook-test-")

		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		configFile := helpers.WriteConfigYAML(tempDir, &config.Config{
			Webhook: &config.WebhookConfig{Secret: helpers.WebhookSecret, RateLimit: 1000},
			Users: &config.UsersConfig{
				Store: config.UserStoreRedis,
				Redis: &config.RedisConfig{Address: mr.Addr(), Prefix: "kbhs:"},
			},
		})

		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)

		store = serverHelper.App().Components().Users
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		mr.Close()
		cleanupTempDir(tempDir)
	})

	It("mirrors the user lifecycle into redis", func() {
		id := helpers.UniqueID("form4")

		By("creating the user")
		Expect(deliver(helpers.UserEvent(webhook.EventUserCreated, id, "amani@kasikeu.example", "Amani"), "")).
			To(Equal(http.StatusOK))

		user, err := store.GetByExternalID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Email).To(Equal("amani@kasikeu.example"))
		Expect(user.FirstName).To(Equal("Amani"))
		Expect(user.Role).To(Equal(users.RoleUser))
		Expect(mr.Exists("kbhs:user:" + id)).To(BeTrue())

		By("updating the profile")
		Expect(deliver(helpers.UserEvent(webhook.EventUserUpdated, id, "amani.k@kasikeu.example", "Amani"), "")).
			To(Equal(http.StatusOK))

		user, err = store.GetByExternalID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Email).To(Equal("amani.k@kasikeu.example"))

		By("deleting the user")
		Expect(deliver(helpers.UserEvent(webhook.EventUserDeleted, id, "", ""), "")).
			To(Equal(http.StatusOK))

		_, err = store.GetByExternalID(ctx, id)
		Expect(err).To(MatchError(users.ErrNotFound))
		Expect(mr.Exists("kbhs:user:" + id)).To(BeFalse())
	})

	It("acknowledges event types it does not handle", func() {
		Expect(deliver(helpers.UserEvent("session.created", "sess_1", "", ""), "")).To(Equal(http.StatusOK))

		list, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("rejects deliveries signed with another secret", func() {
		other := "whsec_" + base64.StdEncoding.EncodeToString([]byte("someone-else"))
		id := helpers.UniqueID("forged")

		Expect(deliver(helpers.UserEvent(webhook.EventUserCreated, id, "x@example.com", ""), other)).
			To(Equal(http.StatusBadRequest))

		_, err := store.GetByExternalID(ctx, id)
		Expect(err).To(MatchError(users.ErrNotFound))
	})

	It("does not require a session", func() {
		req := helpers.WebhookRequest(helpers.UserEvent(webhook.EventUserCreated, helpers.UniqueID("s"), "", ""), "")
		req.Header.Del(webhook.HeaderSignature)

		resp, err := serverHelper.Do(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(helpers.ReadBody(resp)).To(MatchJSON(`{"error":"missing webhook headers"}`))
	})
})
