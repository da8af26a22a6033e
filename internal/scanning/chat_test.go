package scanning

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("ChatCompletions", func() {
	var (
		server   *ghttp.Server
		backend  *ChatCompletions
		messages []Message
		reply    string
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		backend, newErr = NewChatCompletions(server.URL()+"/v1/", "test-key", "test-model", 5*time.Second)
		Expect(newErr).NotTo(HaveOccurred())
		messages = []Message{
			{Role: RoleUser, Parts: []Part{TextPart("read this"), ImagePart([]byte("png"))}},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		reply, err = backend.Complete(context.Background(), messages, DefaultCompletionOptions)
	})

	When("the API answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.VerifyJSONRepresenting(map[string]any{
					"model": "test-model",
					"messages": []map[string]any{{
						"role": "user",
						"content": []map[string]any{
							{"type": "text", "text": "read this"},
							{"type": "image_url", "image_url": map[string]any{
								"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")),
							}},
						},
					}},
					"max_tokens":  1000,
					"temperature": 0.5,
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{
						{"message": map[string]any{"role": "assistant", "content": "  page text  "}},
					},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the trimmed first choice", func() {
			Expect(reply).To(Equal("page text"))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "slow down"))
		})

		It("returns a backend error", func() {
			Expect(err).To(MatchError(ErrBackend))
			Expect(err.Error()).To(ContainSubstring("429"))
		})
	})

	When("the API returns no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("returns a backend error", func() {
			Expect(err).To(MatchError(ErrBackend))
		})
	})

	When("the API is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a backend error", func() {
			Expect(err).To(MatchError(ErrBackend))
		})
	})
})

var _ = Describe("NewChatCompletions", func() {
	It("requires an api key", func() {
		_, err := NewChatCompletions("", "", "", 0)
		Expect(err).To(HaveOccurred())
	})

	It("defaults to Together AI", func() {
		backend, err := NewChatCompletions("", "key", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.baseURL).To(Equal(TogetherBaseURL))
		Expect(backend.model).To(Equal(TogetherDefaultModel))
	})
})
