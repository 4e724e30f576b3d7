package parser

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
)

// ErrUnsupported is returned for extensions no parser handles.
var ErrUnsupported = errors.New("unsupported file format")

type Options struct {
	// MarkdownPlain renders markdown to plain text instead of keeping the source.
	MarkdownPlain bool
}

var parsers = map[string]func(string, Options) (string, error){
	".txt":      parseText,
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".docx":     parseDOCX,
	".pdf":      parsePDF,
	".xlsx":     parseXLSX,
	".xlsm":     parseXLSM,
}

// Supported reports whether path has an extension ExtractText can read.
func Supported(path string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExtractText converts the file at path to plain text.
func ExtractText(path string, opts Options) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := parsers[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	return parse(path, opts)
}

func parseText(filePath string, _ Options) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseMarkdown(filePath string, opts Options) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	if !opts.MarkdownPlain {
		return string(data), nil
	}
	return MarkdownToText(data), nil
}

func parseDOCX(filePath string, _ Options) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw word/document.xml stream
	return DocxXMLToText(r.Editable().GetContent()), nil
}

func parsePDF(filePath string, _ Options) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text.WriteString(strings.TrimSpace(pageText))
		text.WriteString("\n\n")
	}
	return strings.TrimSpace(text.String()), nil
}

func parseXLSX(filePath string, _ Options) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// macro-enabled workbooks go through excelize, which tealeg/xlsx cannot open
func parseXLSM(filePath string, _ Options) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

var (
	docxBreakRe     = regexp.MustCompile(`</w:p>|</w:tr>|<w:br\s*/>|<w:br\s[^>]*/>|<w:cr\s*/>`)
	docxTabRe       = regexp.MustCompile(`<w:tab\s*/>`)
	docxTagRe       = regexp.MustCompile(`<[^>]+>`)
	blankLineRunsRe = regexp.MustCompile(`\n{3,}`)
)

// DocxXMLToText turns a WordprocessingML body into plain text: paragraph and
// table-row ends become newlines, every other tag is dropped and XML escapes
// are decoded.
func DocxXMLToText(xml string) string {
	s := docxBreakRe.ReplaceAllString(xml, "\n")
	s = docxTabRe.ReplaceAllString(s, "\t")
	s = docxTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankLineRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// MarkdownToText walks the goldmark AST and keeps only the text, one line per
// block.
func MarkdownToText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.Kind() != ast.KindList {
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(blankLineRunsRe.ReplaceAllString(buf.String(), "\n\n"))
}
