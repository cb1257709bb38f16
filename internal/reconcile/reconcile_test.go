package reconcile

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Student Name":  "studentname",
		"student_name":  "studentname",
		"Father's-Name": "fathersname",
		"D.O.B.":        "dob",
		"  Roll No ":    "rollno",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q want %q", in, got, want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"studntname", "studentname", 1},
		{"xyz", "abc", 3},
	}
	for _, tc := range cases {
		if got := Levenshtein(tc.a, tc.b); got != tc.want {
			t.Fatalf("Levenshtein(%q,%q) = %d want %d", tc.a, tc.b, got, tc.want)
		}
		if got := Levenshtein(tc.b, tc.a); got != tc.want {
			t.Fatalf("Levenshtein should be symmetric for %q,%q", tc.a, tc.b)
		}
	}
}

func TestFindBestMatch(t *testing.T) {
	m, ok := FindBestMatch("Student Name", []string{"studentname", "fathername"})
	if !ok || m.Field != "studentname" || m.Type != MatchExact {
		t.Fatalf("expected exact match, got %+v %v", m, ok)
	}

	m, ok = FindBestMatch("Studnt Name", []string{"Student Name"})
	if !ok || m.Field != "Student Name" || m.Type != MatchFuzzy || m.Distance != 1 {
		t.Fatalf("expected fuzzy match, got %+v %v", m, ok)
	}

	if _, ok := FindBestMatch("xyz", []string{"abc"}); ok {
		t.Fatalf("expected no match")
	}
}

func TestFindBestMatchShortFieldTolerance(t *testing.T) {
	if _, ok := FindBestMatch("ROL", []string{"ROLL"}); !ok {
		t.Fatalf("distance 1 on a short field should match")
	}
	if _, ok := FindBestMatch("RO", []string{"ROLL"}); ok {
		t.Fatalf("distance 2 on a short field should not match")
	}
	if _, ok := FindBestMatch("ADRES", []string{"ADDRESS"}); !ok {
		t.Fatalf("distance 2 on a long field should match")
	}
}

func TestFindBestMatchTiesGoToFirst(t *testing.T) {
	m, ok := FindBestMatch("CLASX", []string{"CLASS", "CLASY"})
	if !ok || m.Field != "CLASS" {
		t.Fatalf("expected first candidate on tie, got %+v", m)
	}
}

func TestReconcileBuckets(t *testing.T) {
	expected := []string{"NAME", "FATHER NAME", "CLASS", "ROLL NO"}
	report := Reconcile([]string{"name", "Fathr Name", "Mobile", "", "Roll No"}, expected)

	if !report.OK() || len(report.Matched) != 3 {
		t.Fatalf("expected 3 matches, got %+v", report.Matched)
	}
	if got, _ := report.FieldFor("Fathr Name"); got != "FATHER NAME" {
		t.Fatalf("fuzzy header mapped to %q", got)
	}
	if strings.Join(report.Missing, ",") != "CLASS" {
		t.Fatalf("missing: %v", report.Missing)
	}
	if strings.Join(report.Ignored, ",") != "Mobile" {
		t.Fatalf("ignored: %v", report.Ignored)
	}
}

func TestReconcileClaimsEachFieldOnce(t *testing.T) {
	report := Reconcile([]string{"NAME", "Name", "NAMES"}, []string{"NAME"})
	if len(report.Matched) != 1 {
		t.Fatalf("field claimed more than once: %+v", report.Matched)
	}
	seen := map[string]bool{}
	for _, m := range report.Matched {
		if seen[m.Field] {
			t.Fatalf("field %s claimed twice", m.Field)
		}
		seen[m.Field] = true
	}
	if len(report.Ignored) != 2 {
		t.Fatalf("later duplicates should be ignored: %v", report.Ignored)
	}
}

func TestReconcileNoMatch(t *testing.T) {
	report := Reconcile([]string{"foo", "bar"}, []string{"NAME", "CLASS"})
	if report.OK() {
		t.Fatalf("zero matches must not be OK")
	}
	if len(report.Missing) != 2 || len(report.Ignored) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestInspectCSV(t *testing.T) {
	csvData := "\xef\xbb\xbfStudent Name,Class,Extra\nASHA,5,x\nRAVI,6,y\n"
	report, sheet, err := Inspect(strings.NewReader(csvData), "students.csv", []string{"STUDENT NAME", "CLASS", "PHOTO"})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if report.DataRowCount != 2 || sheet.DataRowCount() != 2 {
		t.Fatalf("expected 2 data rows, got %d", report.DataRowCount)
	}
	if len(report.Matched) != 2 || strings.Join(report.Ignored, ",") != "Extra" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestInspectXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"Name", "Roll No"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"ASHA", 12})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	report, _, err := Inspect(&buf, "upload.XLSX", []string{"NAME", "ROLL NO"})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(report.Matched) != 2 || report.DataRowCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestInspectRejectsBadInput(t *testing.T) {
	if _, _, err := Inspect(strings.NewReader("a,b"), "notes.txt", []string{"A"}); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected unsupported file, got %v", err)
	}
	if _, _, err := Inspect(strings.NewReader(""), "empty.csv", []string{"A"}); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected empty file, got %v", err)
	}
	if _, _, err := Inspect(strings.NewReader(",,\n1,2,3\n"), "blank.csv", []string{"A"}); !errors.Is(err, ErrNoHeaders) {
		t.Fatalf("expected no headers, got %v", err)
	}
	if _, _, err := Inspect(strings.NewReader("A\n1\n"), "ok.csv", nil); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected no fields, got %v", err)
	}
}

func buildZip(t *testing.T, names ...string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		_, _ = w.Write([]byte("data-" + name))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestPhotoArchive(t *testing.T) {
	r := buildZip(t, "photos/a12.jpg", "B7.PNG", "readme.txt", "__MACOSX/._a12.jpg", "photos/")
	archive, err := OpenPhotoArchive(r, r.Size())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if archive.Len() != 2 || strings.Join(archive.Keys(), ",") != "A12,B7" {
		t.Fatalf("unexpected keys %v", archive.Keys())
	}
	if len(archive.Skipped) != 1 || archive.Skipped[0] != "readme.txt" {
		t.Fatalf("unexpected skipped %v", archive.Skipped)
	}
	p, ok := archive.Lookup(" a12 ")
	if !ok || p.Ext != ".jpg" {
		t.Fatalf("lookup failed: %+v", p)
	}
	data, err := p.ReadAll(1 << 20)
	if err != nil || string(data) != "data-photos/a12.jpg" {
		t.Fatalf("read photo: %q %v", data, err)
	}
	if _, err := p.ReadAll(3); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestPhotoCoverage(t *testing.T) {
	r := buildZip(t, "A1.jpg", "A2.jpg")
	archive, _ := OpenPhotoArchive(r, r.Size())
	sheet := Sheet{
		Columns: []string{"NAME", "Photo"},
		Rows:    [][]string{{"X", "a1"}, {"Y", "A3"}, {"Z", ""}, {"W"}},
	}
	matched, referenced := archive.Coverage(sheet, "PHOTO")
	if matched != 1 || referenced != 2 {
		t.Fatalf("coverage = %d/%d", matched, referenced)
	}
}

func TestCellValue(t *testing.T) {
	cases := []struct {
		field, raw, want string
	}{
		{"NAME", " asha ", "ASHA"},
		{"DOB", "45000", "15-03-2023"},
		{"ROLL", "12.0", "12"},
		{"ROLL", "12.5", "12.5"},
		{"MOBILE", "9876543210", "9876543210"},
		{"DATE OF JOINING", "01-02-2020", "01-02-2020"},
		{"NOTE", "", ""},
	}
	for _, tc := range cases {
		if got := CellValue(tc.field, tc.raw); got != tc.want {
			t.Fatalf("CellValue(%q,%q) = %q want %q", tc.field, tc.raw, got, tc.want)
		}
	}
}
