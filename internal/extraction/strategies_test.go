package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-processor/internal/scanning"
)

var _ = Describe("ConventionalStrategy", func() {
	var (
		doc  *fakeDocument
		text string
		err  error
	)

	BeforeEach(func() {
		doc = &fakeDocument{
			texts: []string{"Acme Store\n", "Total $12.34\n"},
			htmls: []string{"", receiptLayout},
		}
	})

	JustBeforeEach(func() {
		text, err = NewConventionalStrategy().Extract(context.Background(), doc)
	})

	It("should concatenate page text and append detected tables", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(HavePrefix("Acme Store\nTotal $12.34\n"))
		Expect(text).To(ContainSubstring("--- TABLES ---"))
		Expect(text).To(ContainSubstring("Milk | $3.00"))
	})

	When("a page cannot be read", func() {
		BeforeEach(func() {
			doc.textErrs = map[int]error{0: errPage}
		})

		It("should skip it and keep the rest", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(HavePrefix("Total $12.34"))
		})
	})

	When("there is no text layer", func() {
		BeforeEach(func() {
			doc = &fakeDocument{texts: []string{"", ""}}
		})

		It("should return empty text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})
})

var _ = Describe("OCRStrategy", func() {
	var (
		doc     *fakeDocument
		runner  *mockRunner
		tempDir string
		text    string
		err     error
	)

	BeforeEach(func() {
		var mkErr error
		tempDir, mkErr = os.MkdirTemp("", "ocr-test")
		Expect(mkErr).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tempDir)

		doc = &fakeDocument{texts: []string{"", ""}}
		runner = &mockRunner{stdout: map[string]string{
			"page-0": "Acme Store\n",
			"page-1": "Total $12.34\n",
		}}
	})

	JustBeforeEach(func() {
		strategy := NewOCRStrategy(OCRConfig{TempDir: tempDir}, runner)
		text, err = strategy.Extract(context.Background(), doc)
	})

	It("should OCR every page in order", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Acme Store\n\nTotal $12.34"))
	})

	It("should run tesseract against a page image written to disk", func() {
		Expect(runner.calls).To(HaveLen(2))
		Expect(runner.calls[0][0]).To(Equal("tesseract"))
		Expect(runner.calls[0][2:]).To(Equal([]string{"stdout", "-l", "eng"}))
		Expect(filepath.Dir(runner.calls[0][1])).To(Equal(tempDir))
		Expect(runner.sawFiles).To(Equal([]bool{true, true}))
	})

	It("should remove page images afterwards", func() {
		entries, readErr := os.ReadDir(tempDir)
		Expect(readErr).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	When("tesseract fails", func() {
		BeforeEach(func() {
			runner.err = errors.New("exit status 1")
		})

		It("should skip the pages and return empty text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})

	When("a page cannot be rendered", func() {
		BeforeEach(func() {
			doc.imageErrs = map[int]error{0: errPage}
		})

		It("should skip that page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Total $12.34"))
			Expect(runner.calls).To(HaveLen(1))
		})
	})
})

var _ = Describe("VisionStrategy", func() {
	var (
		doc     *fakeDocument
		backend *mockBackend
		text    string
		err     error
	)

	BeforeEach(func() {
		doc = &fakeDocument{texts: []string{"", "", ""}}
		backend = &mockBackend{}
	})

	JustBeforeEach(func() {
		text, err = NewVisionStrategy(backend, 2).Extract(context.Background(), doc)
	})

	It("should transcribe every page and keep page order", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("text of page-0\n\ntext of page-1\n\ntext of page-2"))
		Expect(backend.calls).To(Equal(3))
	})

	When("one page fails", func() {
		BeforeEach(func() {
			backend.failOn = "page-1"
			backend.err = errors.New("rate limited")
		})

		It("should fail the whole document with a backend error", func() {
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, scanning.ErrBackend)).To(BeTrue())
			Expect(text).To(BeEmpty())
		})
	})

	When("a page cannot be rendered", func() {
		BeforeEach(func() {
			doc.imageErrs = map[int]error{2: errPage}
		})

		It("should fail before calling the backend", func() {
			Expect(err).To(MatchError(ContainSubstring("rendering page 2")))
			Expect(errors.Is(err, scanning.ErrBackend)).To(BeTrue())
			Expect(errors.Is(err, errPage)).To(BeTrue())
			Expect(backend.calls).To(Equal(0))
		})
	})
})
