package receipt

import (
	"bytes"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ExportReceipts", func() {
	var (
		db      *BoltDB
		service *Service
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		var err error
		db, err = NewBoltDB(filepath.Join(dir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		storage, err := NewLocalStorage(filepath.Join(dir, "uploads"))
		Expect(err).NotTo(HaveOccurred())
		service = NewServiceWithDeps(db, storage, Pipeline{}, &sequenceIDGenerator{}, newStepClock())

		purchased := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
		Expect(db.Update(func(tx Tx) error {
			if err := tx.SaveReceipt(&Receipt{
				ID:           "r-1",
				MerchantName: strPtr("Acme Store"),
				TotalAmount:  floatPtr(12.34),
				PurchasedAt:  &purchased,
				Items:        []map[string]any{{"name": "Milk"}, {"name": "Bread"}},
				FilePath:     "uploads/a.pdf",
				IsActive:     true,
				CreatedAt:    purchased,
			}); err != nil {
				return err
			}
			return tx.SaveReceipt(&Receipt{
				ID:        "r-2",
				FilePath:  "uploads/b.pdf",
				IsActive:  false,
				CreatedAt: purchased.Add(time.Hour),
			})
		})).To(Succeed())
	})

	It("should write one row per active receipt", func() {
		var buf bytes.Buffer
		Expect(service.ExportReceipts(&buf)).To(Succeed())

		f, err := excelize.OpenReader(&buf)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(f.Close)

		Expect(f.GetSheetList()).To(Equal([]string{"Receipts"}))

		rows, err := f.GetRows("Receipts")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0][0]).To(Equal("Receipt ID"))

		cell := func(name string) string {
			v, err := f.GetCellValue("Receipts", name)
			Expect(err).NotTo(HaveOccurred())
			return v
		}
		Expect(cell("A2")).To(Equal("r-1"))
		Expect(cell("B2")).To(Equal("2024-01-05 09:30:00"))
		Expect(cell("C2")).To(Equal("Acme Store"))
		Expect(cell("D2")).To(Equal("12.34"))
		Expect(cell("H2")).To(Equal("2"))
		Expect(cell("I2")).To(Equal("uploads/a.pdf"))
	})

	Describe("writeRow", func() {
		It("should report a missing sheet", func() {
			f := excelize.NewFile()
			DeferCleanup(f.Close)

			err := writeRow(f, "Missing", 1, []any{"x"})
			Expect(err).To(MatchError(ContainSubstring("writing A1")))
		})

		It("should report an invalid row", func() {
			f := excelize.NewFile()
			DeferCleanup(f.Close)

			err := writeRow(f, "Sheet1", 0, []any{"x"})
			Expect(err).To(MatchError(ContainSubstring("cell for row 0")))
		})

		It("should leave nil values blank", func() {
			f := excelize.NewFile()
			DeferCleanup(f.Close)

			Expect(writeRow(f, "Sheet1", 1, []any{nil, "b"})).To(Succeed())
			a, _ := f.GetCellValue("Sheet1", "A1")
			b, _ := f.GetCellValue("Sheet1", "B1")
			Expect(a).To(BeEmpty())
			Expect(b).To(Equal("b"))
		})
	})
})
