// Package export writes cycle history and the publication ledger as CSV
// for piping and XLSX for sharing.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/dealcast/dealcast/internal/model"
)

var cycleHeader = []string{
	"id", "channel", "source_mode", "outcome", "product_id", "title",
	"score", "sourced", "valid", "eligible", "reset_performed", "error",
	"started_at", "finished_at", "duration_ms",
}

var publicationHeader = []string{"product_id", "channel_key", "published_at"}

func cycleRow(rec model.CycleRecord) []string {
	return []string{
		rec.ID,
		rec.ChannelKey,
		string(rec.SourceMode),
		string(rec.Outcome),
		rec.ProductID,
		rec.Title,
		strconv.FormatFloat(rec.Score, 'f', 2, 64),
		strconv.Itoa(rec.Sourced),
		strconv.Itoa(rec.Valid),
		strconv.Itoa(rec.Eligible),
		strconv.FormatBool(rec.ResetPerformed),
		rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.FinishedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(rec.Duration().Milliseconds(), 10),
	}
}

func publicationRow(pub model.Publication) []string {
	return []string{
		pub.ProductID,
		pub.ChannelKey,
		pub.PublishedAt.UTC().Format(time.RFC3339),
	}
}

// CyclesCSV writes cycle records to w, header first.
func CyclesCSV(w io.Writer, cycles []model.CycleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cycleHeader); err != nil {
		return eris.Wrap(err, "export: write cycle header")
	}
	for _, rec := range cycles {
		if err := cw.Write(cycleRow(rec)); err != nil {
			return eris.Wrapf(err, "export: write cycle %s", rec.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush cycles")
}

// PublicationsCSV writes ledger entries to w, header first. The format
// round-trips through the ledger import command.
func PublicationsCSV(w io.Writer, pubs []model.Publication) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(publicationHeader); err != nil {
		return eris.Wrap(err, "export: write publication header")
	}
	for _, pub := range pubs {
		if err := cw.Write(publicationRow(pub)); err != nil {
			return eris.Wrapf(err, "export: write publication %s", pub.ProductID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush publications")
}

// CyclesXLSX writes cycle records to an XLSX workbook at path.
func CyclesXLSX(path string, cycles []model.CycleRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Cycles")
	if err != nil {
		return eris.Wrap(err, "export: add cycles sheet")
	}
	addStringRow(sheet, cycleHeader)
	for _, rec := range cycles {
		addStringRow(sheet, cycleRow(rec))
	}
	return eris.Wrap(f.Save(path), "export: save cycles workbook")
}

// PublicationsXLSX writes ledger entries to an XLSX workbook at path.
func PublicationsXLSX(path string, pubs []model.Publication) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Ledger")
	if err != nil {
		return eris.Wrap(err, "export: add ledger sheet")
	}
	addStringRow(sheet, publicationHeader)
	for _, pub := range pubs {
		addStringRow(sheet, publicationRow(pub))
	}
	return eris.Wrap(f.Save(path), "export: save ledger workbook")
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
