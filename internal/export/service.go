package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/entity"
	"github.com/joseph-ayodele/casda-stager/internal/repository"
)

const sheet = "Staged Files"

// Service reads stored requests and renders them as XLSX workbooks.
type Service struct {
	requests repository.StageRequestRepository
	logger   *slog.Logger
}

func NewService(requests repository.StageRequestRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{requests: requests, logger: logger}
}

// ExportRequestXLSX returns the staged urls of a stored request as an XLSX workbook.
func (s *Service) ExportRequestXLSX(ctx context.Context, id uuid.UUID) ([]byte, error) {
	start := time.Now()
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	staged, err := s.requests.ListURLs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query staged urls: %w", err)
	}
	urls := make([]string, 0, len(staged))
	for _, u := range staged {
		urls = append(urls, u.URL)
	}

	b, err := StagedURLsXLSX(urls, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"request_id", id.String(),
		"rows", len(urls),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

// StagedURLsXLSX writes one row per url. req, when non-nil, adds a summary sheet.
func StagedURLsXLSX(urls []string, req *entity.StageRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"#", "File", "Kind", "URL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, u := range urls {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		kind := "data"
		if constants.IsChecksumURL(u) {
			kind = "checksum"
		}
		write(1, i+1)
		write(2, baseName(u))
		write(3, kind)
		write(4, u)
	}

	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 48)
	_ = f.SetColWidth(sheet, "C", "C", 10)
	_ = f.SetColWidth(sheet, "D", "D", 100)

	if req != nil {
		if err := writeSummary(f, req); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, req *entity.StageRequest) error {
	const summary = "Request"
	if _, err := f.NewSheet(summary); err != nil {
		return err
	}
	rows := [][2]any{
		{"Request ID", req.ID.String()},
		{"Status", req.Status},
		{"Service", req.Service},
		{"Files requested", len(req.AccessURLs)},
		{"Job location", deref(req.JobLocation)},
		{"Phase", deref(req.Phase)},
		{"Created", req.CreatedAt.Format(time.RFC3339)},
	}
	if req.FinishedAt != nil {
		rows = append(rows, [2]any{"Finished", req.FinishedAt.Format(time.RFC3339)})
	}
	for i, r := range rows {
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", i+1), r[0])
		_ = f.SetCellValue(summary, fmt.Sprintf("B%d", i+1), r[1])
	}
	_ = f.SetColWidth(summary, "A", "A", 18)
	_ = f.SetColWidth(summary, "B", "B", 80)
	return nil
}

func baseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
