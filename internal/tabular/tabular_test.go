package tabular_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/tempalign/tempalign/internal/tabular"
)

func TestDecodeCSV(t *testing.T) {
	Convey("Given a CSV upload", t, func() {
		Convey("When decoding a well-formed file", func() {
			csv := "Company_ID, Exposure ,sector\nc1,100,energy\nc2,200,utilities\n"
			table, err := tabular.Decode("portfolio.csv", strings.NewReader(csv))

			Convey("Then columns are normalized and rows decoded", func() {
				So(err, ShouldBeNil)
				So(table.Columns, ShouldResemble, []string{"company_id", "exposure", "sector"})
				So(len(table.Records), ShouldEqual, 2)
				So(table.Records[0]["company_id"], ShouldEqual, "c1")
				So(table.Records[1]["sector"], ShouldEqual, "utilities")
				So(table.Has("exposure"), ShouldBeTrue)
				So(table.Has("emissions"), ShouldBeFalse)
			})
		})

		Convey("When the file contains blank rows", func() {
			csv := "company_id,exposure\nc1,100\n , \n\nc2,200\n"
			table, err := tabular.Decode("p.csv", strings.NewReader(csv))

			Convey("Then blank rows are dropped", func() {
				So(err, ShouldBeNil)
				So(len(table.Records), ShouldEqual, 2)
			})
		})

		Convey("When rows are ragged", func() {
			csv := "company_id,exposure,sector\nc1,100\n"
			table, err := tabular.Decode("p.csv", strings.NewReader(csv))

			Convey("Then missing cells become empty strings", func() {
				So(err, ShouldBeNil)
				So(table.Records[0]["sector"], ShouldEqual, "")
			})
		})

		Convey("When leading rows must be skipped", func() {
			csv := "junk,junk\nmore junk,\ncompany_id,exposure\nc1,100\n"
			table, err := tabular.Decode("p.csv", strings.NewReader(csv), tabular.WithSkipRows(2))

			Convey("Then the header is found after the skipped rows", func() {
				So(err, ShouldBeNil)
				So(table.Columns, ShouldResemble, []string{"company_id", "exposure"})
				So(len(table.Records), ShouldEqual, 1)
			})
		})

		Convey("When the file is empty", func() {
			_, err := tabular.Decode("p.csv", strings.NewReader(""))

			Convey("Then decoding fails with the no-header kind", func() {
				So(errors.Is(err, tabular.ErrNoHeader), ShouldBeTrue)
			})
		})
	})
}

func TestDecodeXLSX(t *testing.T) {
	Convey("Given an XLSX upload", t, func() {
		f := excelize.NewFile()
		sheet := f.GetSheetName(0)
		So(f.SetSheetRow(sheet, "A1", &[]any{"company_id", "exposure"}), ShouldBeNil)
		So(f.SetSheetRow(sheet, "A2", &[]any{"c1", 100}), ShouldBeNil)
		var buf bytes.Buffer
		So(f.Write(&buf), ShouldBeNil)

		Convey("When decoding the workbook", func() {
			table, err := tabular.Decode("portfolio.xlsx", bytes.NewReader(buf.Bytes()))

			Convey("Then the first sheet is decoded", func() {
				So(err, ShouldBeNil)
				So(table.Columns, ShouldResemble, []string{"company_id", "exposure"})
				So(len(table.Records), ShouldEqual, 1)
				So(table.Records[0]["exposure"], ShouldEqual, "100")
			})
		})
	})
}

func TestDecodeUnsupported(t *testing.T) {
	Convey("Given an upload with an unknown extension", t, func() {
		_, err := tabular.Decode("portfolio.pdf", strings.NewReader("x"))

		Convey("Then decoding fails with the unsupported-format kind", func() {
			So(errors.Is(err, tabular.ErrUnsupportedFormat), ShouldBeTrue)
		})
	})
}
