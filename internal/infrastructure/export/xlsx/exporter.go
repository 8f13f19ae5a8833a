package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

const sheetName = "Applications"

var header = []any{
	"ID",
	"Applicant",
	"Email",
	"Destination",
	"Visa Type",
	"Status",
	"Step",
	"Agent",
	"Documents",
	"Last Note",
	"Submitted At",
	"Updated At",
}

// Exporter renders applications as a single-sheet XLSX workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(ctx context.Context, w io.Writer, apps []domain.Application) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("resolve header width: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, app := range apps {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolve row %d: %w", i+2, err)
		}
		row := exportRow(app)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func exportRow(app domain.Application) []any {
	docTypes := make([]string, 0, len(app.Documents))
	for _, doc := range app.Documents {
		docTypes = append(docTypes, doc.Type)
	}
	lastNote := ""
	if n := len(app.StatusHistory); n > 0 {
		lastNote = app.StatusHistory[n-1].Note
	}
	agent := app.AgentName
	if agent == "" {
		agent = app.AgentID
	}
	return []any{
		app.ID,
		app.Name,
		app.Email,
		app.Destination,
		app.VisaType,
		string(app.CurrentStatus),
		app.CurrentStatus.Step(),
		agent,
		strings.Join(docTypes, ", "),
		lastNote,
		app.CreatedAt.UTC().Format(time.RFC3339),
		app.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
