// Package extract reads supplementary patient fields from report PDFs.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spf13/afero"
)

// MaxAge bounds the ages accepted from report text.
const MaxAge = 130

// DefaultMaxPages limits how many pages are scanned for an age.
const DefaultMaxPages = 2

var (
	// Age: 28, AGE - 28 Yrs, Age/Sex: 28Y/M
	labelledAge = regexp.MustCompile(`(?i)\bage(?:\s*/\s*(?:sex|gender))?\s*[:\-=]?\s*(\d{1,3})`)
	// 28 YRS, 28Y, 28 years
	suffixedAge = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:years?|yrs?|yr|y)\b`)

	pdfString = regexp.MustCompile(`\(([^)]*)\)`)
)

// PDFExtractor pulls patient ages out of report PDFs using pdfcpu.
type PDFExtractor struct {
	fs       afero.Fs
	logger   *slog.Logger
	maxPages int
}

// NewPDFExtractor creates an extractor reading from fs.
func NewPDFExtractor(fs afero.Fs, logger *slog.Logger) *PDFExtractor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{fs: fs, logger: logger, maxPages: DefaultMaxPages}
}

// ExtractAge returns the patient age printed in the report. Unreadable PDFs
// and reports without an age pattern yield false; neither is an error.
func (e *PDFExtractor) ExtractAge(ctx context.Context, path string) (int, bool) {
	if err := ctx.Err(); err != nil {
		return 0, false
	}

	text, err := e.Text(path)
	if err != nil {
		e.logger.Warn("Could not read report text", "file", path, "error", err)
		return 0, false
	}

	age, ok := AgeFromText(text)
	if !ok {
		e.logger.Debug("No age pattern in report", "file", path)
		return 0, false
	}

	e.logger.Debug("Extracted age from report", "file", path, "age", age)
	return age, true
}

// Text returns the text of the first pages of the PDF at path.
func (e *PDFExtractor) Text(path string) (text string, err error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// pdfcpu panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := pdfmodel.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= pdfCtx.PageCount && pageNr <= e.maxPages; pageNr++ {
		txt := pageText(pdfCtx, pageNr)
		if txt == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(txt)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return sb.String(), nil
}

// AgeFromText finds the first plausible age in report text. Labelled ages
// ("Age: 28") win over bare suffixed numbers ("28 YRS").
func AgeFromText(text string) (int, bool) {
	for _, re := range []*regexp.Regexp{labelledAge, suffixedAge} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			age, err := strconv.Atoi(m[1])
			if err != nil || age > MaxAge {
				continue
			}
			return age, true
		}
	}
	return 0, false
}

func pageText(ctx *pdfmodel.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

// textFromStream collects the strings shown by text operators in a page
// content stream.
func textFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfString.FindAllSubmatch(line, -1) {
				sb.WriteString(decodeString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfString.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodeString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			sb.WriteByte(' ')
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanText(sb.String())
}

// decodeString handles the escape sequences of PDF literal strings.
func decodeString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			// Up to three octal digits.
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

func cleanText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
