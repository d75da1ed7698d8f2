package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Checkout is slow</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Users</w:t></w:r><w:r><w:tab/><w:t>churn</w:t></w:r></w:p>`)

	got := Extract("Interview.DOCX", data)
	want := "Checkout is slow\nUsers\tchurn"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractXlsx(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetSheetRow("Sheet1", "A1", &[]any{"feature", "votes"}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	if err := book.SetSheetRow("Sheet1", "A2", &[]any{"dark mode, please", 42}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	if _, err := book.NewSheet("Notes"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := book.SetCellValue("Notes", "A1", "follow up"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got := Extract("backlog.xlsx", buf.Bytes())
	want := "[Sheet: Sheet1]\nfeature,votes\n\"dark mode, please\",42\n\n[Sheet: Notes]\nfollow up"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractXlsxSkipsEmptySheets(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	if _, err := book.NewSheet("Blank"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if _, err := book.NewSheet("Quotes"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := book.SetCellValue("Quotes", "A1", "export is broken"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got := Extract("feedback.xlsx", buf.Bytes())
	want := "[Sheet: Quotes]\nexport is broken"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}

	only := excelize.NewFile()
	defer only.Close()
	empty, err := only.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	if got := Extract("blank.xlsx", empty.Bytes()); got != "" {
		t.Fatalf("Extract() of a workbook without cells = %q, want empty", got)
	}
}

func TestExtractFailuresDegradeToEmpty(t *testing.T) {
	cases := map[string][]byte{
		"broken.pdf":  []byte("not a pdf at all"),
		"broken.docx": []byte("not a zip"),
		"broken.xlsx": []byte("not a workbook"),
		"empty.pdf":   nil,
		"legacy.doc":  []byte("binary word"),
		"legacy.xls":  []byte("binary excel"),
		"notes.txt":   []byte("plain text is not extracted"),
	}
	for name, data := range cases {
		if got := Extract(name, data); got != "" {
			t.Errorf("Extract(%q) = %q, want empty", name, got)
		}
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.docx")
	if err := os.WriteFile(path, buildDocx(t, `<w:p><w:r><w:t>  trimmed  </w:t></w:r></w:p>`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if got := ExtractFile(path); got != "trimmed" {
		t.Fatalf("ExtractFile() = %q", got)
	}
	if got := ExtractFile(filepath.Join(dir, "missing.pdf")); got != "" {
		t.Fatalf("expected empty for missing file, got %q", got)
	}
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.DOCX", "c.xlsx", "d.XLS"} {
		if !Supported(name) {
			t.Errorf("expected %s to be supported", name)
		}
	}
	for _, name := range []string{"e.doc", "f.txt", "noext"} {
		if Supported(name) {
			t.Errorf("expected %s to be unsupported", name)
		}
	}
}
