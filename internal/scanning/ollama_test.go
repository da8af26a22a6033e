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

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		reply   string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		backend, newErr = NewOllama(server.URL(), "llava", 5*time.Second)
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		reply, err = backend.Complete(context.Background(), []Message{
			{Role: RoleUser, Parts: []Part{TextPart("read this"), ImagePart([]byte("png"))}},
		}, CompletionOptions{MaxTokens: 100, Temperature: 0.5})
	})

	When("the API answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyJSONRepresenting(map[string]any{
					"model":  "llava",
					"stream": false,
					"options": map[string]any{
						"temperature": 0.5,
						"num_predict": 100,
					},
					"messages": []map[string]any{{
						"role":    "user",
						"content": "read this",
						"images":  []string{base64.StdEncoding.EncodeToString([]byte("png"))},
					}},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": "TOTAL 9.99\n"},
					"done":    true,
				}),
			))
		})

		It("should return the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("TOTAL 9.99"))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a backend error", func() {
			Expect(err).To(MatchError(ErrBackend))
		})
	})
})
