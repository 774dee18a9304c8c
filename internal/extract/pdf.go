package extract

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/coursemind/coursemind/internal/domain"
)

// CommandRunner executes an external command and returns its stdout.
// Seam for testing the PDF extractor without a pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDF extracts text by delegating to the poppler pdftotext binary.
// pdftotext separates pages with form feeds, which paginate turns into
// page offsets for citation.
type PDF struct {
	runner CommandRunner
}

// NewPDF creates a PDF extractor backed by the given runner.
func NewPDF(runner CommandRunner) *PDF {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDF{runner: runner}
}

// Extract implements FormatExtractor.
func (p *PDF) Extract(ctx context.Context, data []byte) (domain.ExtractedText, error) {
	tmp, err := os.CreateTemp("", "coursemind-*.pdf")
	if err != nil {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPDF, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPDF, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPDF, err)
	}

	// "-" writes to stdout; -layout keeps heading lines intact for the
	// chapter detector.
	out, err := p.runner.Run(ctx, "pdftotext", "-layout", tmp.Name(), "-")
	if err != nil {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPDF, domain.ErrParseFailure)
	}

	text := strings.TrimRight(string(out), "\n")
	if strings.TrimSpace(text) == "" {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPDF, domain.ErrParseFailure)
	}

	return paginate(text), nil
}
