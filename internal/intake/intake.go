// Package intake turns uploaded files into what the extractors consume:
// PNG bytes for pictures, tab/row text for spreadsheets.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind is the broad type of an upload. Its value doubles as the
// identifier prefix of timetables extracted from it.
type Kind string

const (
	KindImage       Kind = "img"
	KindSpreadsheet Kind = "excel"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type, upload an image or an Excel file")
	ErrInvalidDocument = errors.New("file could not be read")
)

var spreadsheetTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
}

// Detect classifies an upload from its declared content type, falling back
// to the file extension and content sniffing when the type is generic.
func Detect(contentType, filename string, data []byte) (Kind, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, nil
	case spreadsheetTypes[ct]:
		return KindSpreadsheet, nil
	case ct != "" && ct != "application/octet-stream":
		return "", ErrUnsupportedType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls":
		return KindSpreadsheet, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage, nil
	}
	if strings.HasPrefix(http.DetectContentType(data), "image/") {
		return KindImage, nil
	}
	return "", ErrUnsupportedType
}

// ToPNG re-encodes any decodable image as PNG.
func ToPNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidDocument, err)
	}
	if format == "png" {
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FlattenXLSX renders the active sheet as text: cells joined by tabs,
// rows by newlines, rows without any value skipped.
func FlattenXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: open workbook: %v", ErrInvalidDocument, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return "", fmt.Errorf("%w: workbook has no sheets", ErrInvalidDocument)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if blank(row) {
			continue
		}
		lines = append(lines, strings.Join(row, "\t"))
	}
	return strings.Join(lines, "\n"), nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
