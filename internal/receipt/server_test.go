package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-processor/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		service     *Service
		server      *Server
		auth        BasicAuth
		text        *mockTextExtractor
		ghttpServer *ghttp.Server
	)

	// do sends one request through the server
	do := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+path, nil)
		Expect(err).NotTo(HaveOccurred())
		return do(req)
	}

	post := func(path, contentType string, body io.Reader) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return do(req)
	}

	upload := func(filename string, data []byte) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())
		return post("/receipt/upload", mw.FormDataContentType(), &body)
	}

	decode := func(resp *http.Response, v any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	setupServer := func() {
		server = NewServerWithMux(service, auth, http.NewServeMux())
	}

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		db, err := NewBoltDB(filepath.Join(dir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		storage, err := NewLocalStorage(filepath.Join(dir, "uploads"))
		Expect(err).NotTo(HaveOccurred())

		text = &mockTextExtractor{text: "Acme Store $12.34 2024-01-05"}
		service = NewServiceWithDeps(db, storage, Pipeline{
			Validator: &mockValidator{pages: 1},
			Open:      (&mockOpener{doc: &fakeDocument{pages: 1}}).Open,
			Text:      text,
			Fields: &mockFieldExtractor{fields: &scanning.ExtractedFields{
				MerchantName: strPtr("Acme Store"),
				TotalAmount:  floatPtr(12.34),
				PurchasedAt:  strPtr("2024-01-05 00:00:00"),
			}},
		}, &sequenceIDGenerator{}, newStepClock())
		auth = BasicAuth{}
		setupServer()

		ghttpServer = ghttp.NewServer()
		DeferCleanup(ghttpServer.Close)
	})

	Describe("POST /receipt/upload", func() {
		It("should return the file id and name", func() {
			resp := upload("receipt.pdf", []byte("%PDF-1.4 test"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var body map[string]string
			decode(resp, &body)
			Expect(body).To(Equal(map[string]string{"id": "id-1", "file_name": "receipt.pdf"}))
		})

		It("should reject non-PDF files", func() {
			resp := upload("receipt.jpg", []byte("jpeg"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(ContainSubstring("only PDF files are allowed"))
		})

		It("should reject a form without a file", func() {
			resp := post("/receipt/upload", "application/x-www-form-urlencoded", strings.NewReader("a=b"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /receipt/validate/{file_id}", func() {
		It("should return the validation result", func() {
			upload("receipt.pdf", []byte("%PDF-1.4 test"))

			resp := post("/receipt/validate/id-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("is_valid", true))
			Expect(body).To(HaveKeyWithValue("invalid_reason", BeNil()))
		})

		It("should return 404 for an unknown file", func() {
			resp := post("/receipt/validate/missing", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /receipt/process/{file_id}", func() {
		BeforeEach(func() {
			upload("receipt.pdf", []byte("%PDF-1.4 test"))
		})

		It("should return the processed receipt", func() {
			resp := post("/receipt/process/id-1", "application/json", strings.NewReader(`{"is_premium_user": false}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("total_amount", 12.34))
			Expect(body).To(HaveKeyWithValue("purchased_at", "2024-01-05T00:00:00Z"))
			Expect(body).To(HaveKeyWithValue("file_path", HaveSuffix("receipt.pdf")))
		})

		It("should accept an empty body", func() {
			resp := post("/receipt/process/id-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject a malformed body", func() {
			resp := post("/receipt/process/id-1", "application/json", strings.NewReader(`{"is_premium_user":`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 400 when no text is extracted", func() {
			text.text = ""
			resp := post("/receipt/process/id-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(ContainSubstring("no text extracted"))
		})

		It("should hide backend failures behind a generic 500", func() {
			text.err = scanning.ErrBackend
			resp := post("/receipt/process/id-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(Equal("Internal server error"))
		})

		It("should return 404 for an unknown file", func() {
			resp := post("/receipt/process/missing", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /receipt/all_receipts", func() {
		BeforeEach(func() {
			for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
				file, err := service.Upload(name, []byte("%PDF-1.4 test"))
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Process(context.Background(), file.ID, false)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should use page 1 and limit 10 by default", func() {
			resp := get("/receipt/all_receipts")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var page ReceiptPage
			decode(resp, &page)
			Expect(page.Total).To(Equal(3))
			Expect(page.Page).To(Equal(1))
			Expect(page.Limit).To(Equal(10))
			Expect(page.Pages).To(Equal(1))
			Expect(page.Results).To(HaveLen(3))
		})

		It("should page through results", func() {
			resp := get("/receipt/all_receipts?page=2&limit=2")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var page ReceiptPage
			decode(resp, &page)
			Expect(page.Pages).To(Equal(2))
			Expect(page.Results).To(HaveLen(1))
		})

		It("should reject a non-numeric page", func() {
			resp := get("/receipt/all_receipts?page=two")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a limit over 100", func() {
			resp := get("/receipt/all_receipts?limit=101")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /receipt/export", func() {
		It("should return an XLSX workbook", func() {
			resp := get("/receipt/export")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(HavePrefix("PK"))
		})
	})

	Describe("GET /receipt/{receipt_id}", func() {
		It("should return a stored receipt", func() {
			file, err := service.Upload("receipt.pdf", []byte("%PDF-1.4 test"))
			Expect(err).NotTo(HaveOccurred())
			stored, err := service.Process(context.Background(), file.ID, false)
			Expect(err).NotTo(HaveOccurred())

			resp := get("/receipt/" + stored.ID)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got Receipt
			decode(resp, &got)
			Expect(got.ID).To(Equal(stored.ID))
		})

		It("should return 404 for an unknown receipt", func() {
			resp := get("/receipt/missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/receipt/upload", nil)
			Expect(err).NotTo(HaveOccurred())
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on normal responses", func() {
			resp := get("/receipt/missing")
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := get("/receipt/all_receipts")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/receipt/all_receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			Expect(do(req).StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept the configured credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/receipt/all_receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			Expect(do(req).StatusCode).To(Equal(http.StatusOK))
		})
	})
})
