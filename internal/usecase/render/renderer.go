package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/pipeline"
)

// Document keys stored on the processing context
const (
	DocMinutesText   = "minutes_txt"
	DocMinutesMD     = "minutes_md"
	DocPreReport     = "pre_report_txt"
	DocDecisionsText = "decisions_txt"
	DocDecisionsXLSX = "decisions_xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ObjectStore receives rendered documents
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// Renderer writes the meeting documents to object storage
type Renderer struct {
	store  ObjectStore
	logger *zap.Logger
}

// NewRenderer creates a renderer
func NewRenderer(store ObjectStore, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{store: store, logger: logger}
}

// FilenamePrefix is the meeting date as YYYYMMDD
func FilenamePrefix(pc *entities.ProcessingContext) string {
	return pc.MeetingDate().Format("20060102")
}

// ObjectKey is where a rendered document is stored
func ObjectKey(pc *entities.ProcessingContext, filename string) string {
	return fmt.Sprintf("documents/%s/%s", pc.ID, filename)
}

type document struct {
	key         string
	filename    string
	contentType string
	body        []byte
}

// Render renders all documents and returns document key -> object key
func (r *Renderer) Render(ctx context.Context, pc *entities.ProcessingContext, transcript []entities.AnnotatedSegment) (map[string]string, error) {
	prefix := FilenamePrefix(pc)

	xlsx, err := decisionsWorkbook(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to render decision workbook: %w", err)
	}

	docs := []document{
		{DocMinutesText, prefix + "_Minutes.txt", "text/plain; charset=utf-8", []byte(minutesText(pc, transcript))},
		{DocMinutesMD, prefix + "_Minutes.md", "text/markdown; charset=utf-8", []byte(minutesMarkdown(pc, transcript))},
		{DocPreReport, prefix + "_Pre-Report.txt", "text/plain; charset=utf-8", []byte(preReportText(pc))},
		{DocDecisionsText, prefix + "_Decisions.txt", "text/plain; charset=utf-8", []byte(decisionsText(pc))},
		{DocDecisionsXLSX, prefix + "_Decisions.xlsx", xlsxContentType, xlsx},
	}

	out := make(map[string]string, len(docs))
	for _, d := range docs {
		key := ObjectKey(pc, d.filename)
		if err := r.store.UploadFile(ctx, key, bytes.NewReader(d.body), int64(len(d.body)), d.contentType); err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", d.filename, err)
		}
		out[d.key] = key
	}

	r.logger.Info("documents rendered",
		zap.String("job_id", pc.ID.String()),
		zap.Int("documents", len(out)),
	)
	return out, nil
}

func header(b *strings.Builder, title string, pc *entities.ProcessingContext) {
	b.WriteString(title)
	b.WriteByte('\n')
	fmt.Fprintf(b, "Date: %s\n", pc.MeetingDate().Format(entities.MeetingDateLayout))
	if pc.Inputs.Chair != "" {
		fmt.Fprintf(b, "Chair: %s\n", pc.Inputs.Chair)
	}
	if pc.SourceFilename != "" {
		fmt.Fprintf(b, "Recording: %s\n", pc.SourceFilename)
	}
	b.WriteByte('\n')
}

func minutesText(pc *entities.ProcessingContext, transcript []entities.AnnotatedSegment) string {
	var b strings.Builder
	header(&b, "VERBATIM MINUTES", pc)
	if len(transcript) == 0 {
		b.WriteString("(no speech detected)\n")
		return b.String()
	}
	b.WriteString(pipeline.FormatTranscript(transcript))
	b.WriteByte('\n')
	return b.String()
}

func minutesMarkdown(pc *entities.ProcessingContext, transcript []entities.AnnotatedSegment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Minutes of %s\n\n", pc.MeetingDate().Format(entities.MeetingDateLayout))
	if pc.Inputs.Chair != "" {
		fmt.Fprintf(&b, "**Chair:** %s\n\n", pc.Inputs.Chair)
	}
	if pc.PreReport != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(pc.PreReport)
		b.WriteString("\n\n")
	}
	if len(pc.Decisions) > 0 {
		b.WriteString("## Decisions\n\n| # | Decision | Proposer | Outcome | Time |\n|---|---|---|---|---|\n")
		for i, d := range pc.Decisions {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i+1, mdCell(d.Text), mdCell(d.Proposer), d.Outcome, d.Timestamp)
		}
		b.WriteByte('\n')
	}
	b.WriteString("## Transcript\n\n")
	for _, seg := range transcript {
		fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", pipeline.FormatTimestamp(seg.Start), seg.Speaker, seg.Text)
	}
	return b.String()
}

func mdCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

func preReportText(pc *entities.ProcessingContext) string {
	var b strings.Builder
	header(&b, "PRE-REPORT", pc)
	if pc.PreReport == "" {
		b.WriteString("(empty transcript, no report drafted)\n")
		return b.String()
	}
	b.WriteString(pc.PreReport)
	b.WriteByte('\n')
	return b.String()
}

func decisionsText(pc *entities.ProcessingContext) string {
	var b strings.Builder
	header(&b, "DECISION LOG", pc)
	if len(pc.Decisions) == 0 {
		b.WriteString("No decisions recorded.\n")
		return b.String()
	}
	for i, d := range pc.Decisions {
		fmt.Fprintf(&b, "%d. %s\n   Outcome: %s\n", i+1, d.Text, d.Outcome)
		if d.Proposer != "" {
			fmt.Fprintf(&b, "   Proposed by: %s\n", d.Proposer)
		}
		if d.Timestamp != "" {
			fmt.Fprintf(&b, "   At: %s\n", d.Timestamp)
		}
	}
	return b.String()
}

const decisionsSheet = "Decisions"

func decisionsWorkbook(pc *entities.ProcessingContext) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", decisionsSheet); err != nil {
		return nil, err
	}

	headerRow := []interface{}{"#", "Decision", "Proposer", "Outcome", "Time"}
	if err := f.SetSheetRow(decisionsSheet, "A1", &headerRow); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(decisionsSheet, "A1", "E1", bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(decisionsSheet, "B", "B", 80); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(decisionsSheet, "C", "D", 20); err != nil {
		return nil, err
	}

	for i, d := range pc.Decisions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{i + 1, d.Text, d.Proposer, string(d.Outcome), d.Timestamp}
		if err := f.SetSheetRow(decisionsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
