package extract

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/dhcgn/archive-extract/container"
	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/model"
	"github.com/dhcgn/archive-extract/pst"
	"github.com/dhcgn/archive-extract/stats"
)

type fakeItem struct {
	class       string
	message     model.Message
	contact     model.Contact
	appointment model.Appointment
	err         error
}

func (i fakeItem) Class() string { return i.class }

func (i fakeItem) Message() (model.Message, error) { return i.message, i.err }

func (i fakeItem) Contact() (model.Contact, error) { return i.contact, i.err }

func (i fakeItem) Appointment() (model.Appointment, error) { return i.appointment, i.err }

type fakeFolder struct {
	name     string
	items    []pst.Item
	children []*fakeFolder
}

func (f *fakeFolder) Name() string      { return f.name }
func (f *fakeFolder) ContentCount() int { return len(f.items) }

func (f *fakeFolder) Items() iter.Seq2[pst.Item, error] {
	return func(yield func(pst.Item, error) bool) {
		for _, it := range f.items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func (f *fakeFolder) Children() iter.Seq2[pst.Folder, error] {
	return func(yield func(pst.Folder, error) bool) {
		for _, c := range f.children {
			if !yield(c, nil) {
				return
			}
		}
	}
}

type fakeParser struct {
	root       *fakeFolder
	bytesCalls int
	fileCalls  int
}

func (p *fakeParser) ParseBytes([]byte) (pst.Folder, error) {
	p.bytesCalls++
	return p.root, nil
}

func (p *fakeParser) ParseFile(string) (pst.Folder, error) {
	p.fileCalls++
	return p.root, nil
}

type fakeConverter struct {
	available bool
	files     map[string]string
	err       error
	calls     int
}

func (c *fakeConverter) Available(context.Context) bool { return c.available }

func (c *fakeConverter) Convert(_ context.Context, _ string, outDir string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	for name, content := range c.files {
		path := filepath.Join(outDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func mail(id, subject string, atts ...model.Attachment) fakeItem {
	return fakeItem{
		class: "IPM.Note",
		message: model.Message{
			ID:          id,
			Subject:     subject,
			From:        "alice@example.com",
			To:          []string{"bob@example.com"},
			Body:        "hello",
			SubmitTime:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			Attachments: atts,
		},
	}
}

func attachment(name, content string) model.Attachment {
	return model.Attachment{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func writePST(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.pst")
	if err := os.WriteFile(path, []byte("!BDN fake"), 0o644); err != nil {
		t.Fatalf("write container: %v", err)
	}
	return path
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stat %s: %v", path, err)
	}
	return false
}

func newRequest(t *testing.T, path string) Request {
	t.Helper()
	out := t.TempDir()
	return Request{Path: path, OutputDir: filepath.Join(out, "out"), AttachmentDir: filepath.Join(out, "att")}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`file<>:"/\|?*name with spaces`, "file_________name_with_spaces"},
		{"", "unknown"},
		{".", "unknown"},
		{"..", "unknown"},
		{"Inbox", "Inbox"},
		{"a \t b", "a_b"},
		{"a\u00a0b\vc", "a_b_c"},
		{"x\u2003\u3000y", "x_y"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if err := ensureDir(dir); err != nil {
			t.Fatalf("ensureDir call %d: %v", i, err)
		}
	}
}

func TestMerge(t *testing.T) {
	format := FormatText
	depth := -5
	skip := false
	got := DefaultOptions().Merge(Overrides{Format: &format, MaxDepth: &depth, SkipEmpty: &skip})
	if got.Format != FormatText || got.MaxDepth != Unbounded || got.SkipEmpty {
		t.Fatalf("unexpected merge result %+v", got)
	}
	if DefaultOptions().Merge(Overrides{}) != DefaultOptions() {
		t.Fatal("empty overrides changed the defaults")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("TXT"); err != nil || f != FormatText {
		t.Fatalf("ParseFormat(TXT) = %v, %v", f, err)
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExtractPSTTree(t *testing.T) {
	root := &fakeFolder{
		name: "root",
		children: []*fakeFolder{
			{
				name: "Inbox",
				items: []pst.Item{
					mail("1", "hi", attachment("report.pdf", "pdf-bytes")),
					fakeItem{class: "IPM.Contact", contact: model.Contact{ID: "2", DisplayName: "Jane Doe"}},
					fakeItem{class: "IPM.Appointment", appointment: model.Appointment{ID: "3", Subject: "Standup"}},
					fakeItem{class: "IPM.Task", appointment: model.Appointment{ID: "4", Subject: "Todo"}},
				},
			},
			{name: "Empty"},
		},
	}
	parser := &fakeParser{root: root}
	req := newRequest(t, writePST(t))

	sum, err := New(DefaultOptions(), nil, WithParser(parser)).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	inbox := filepath.Join(req.OutputDir, "Inbox")
	for _, p := range []string{
		filepath.Join(inbox, "1.eml"),
		filepath.Join(inbox, "contacts", "2.vcf"),
		filepath.Join(inbox, "calendar", "3.ics"),
		filepath.Join(inbox, "calendar", "4.ics"),
		filepath.Join(req.AttachmentDir, "1_report.pdf"),
	} {
		if !exists(t, p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if exists(t, filepath.Join(req.OutputDir, "Empty")) {
		t.Error("empty folder should be skipped")
	}

	data, err := os.ReadFile(filepath.Join(req.AttachmentDir, "1_report.pdf"))
	if err != nil || string(data) != "pdf-bytes" {
		t.Fatalf("attachment content = %q, %v", data, err)
	}

	if sum.EmailsExtracted != 1 || sum.AttachmentsExtracted != 1 || sum.ContactsExtracted != 1 ||
		sum.AppointmentsExtracted != 1 || sum.TasksExtracted != 1 || sum.FoldersVisited != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if parser.bytesCalls != 1 || parser.fileCalls != 0 {
		t.Fatalf("small file should be parsed from memory, got bytes=%d file=%d", parser.bytesCalls, parser.fileCalls)
	}
}

func TestExtractKeepsEmptyFolders(t *testing.T) {
	root := &fakeFolder{name: "root", children: []*fakeFolder{{name: "Empty"}}}
	req := newRequest(t, writePST(t))
	skip := false
	req.Overrides.SkipEmpty = &skip

	if _, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: root})).Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !exists(t, filepath.Join(req.OutputDir, "Empty")) {
		t.Fatal("empty folder should be created when skip-empty is off")
	}
}

func TestExtractKeepsAncestorsOfContent(t *testing.T) {
	root := &fakeFolder{name: "root", children: []*fakeFolder{{
		name:     "Archive",
		children: []*fakeFolder{{name: "2023", items: []pst.Item{mail("9", "old")}}},
	}}}
	req := newRequest(t, writePST(t))

	if _, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: root})).Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !exists(t, filepath.Join(req.OutputDir, "Archive", "2023", "9.eml")) {
		t.Fatal("nested message missing")
	}
}

func TestExtractMaxDepth(t *testing.T) {
	root := &fakeFolder{
		name:  "root",
		items: []pst.Item{mail("0", "top")},
		children: []*fakeFolder{{
			name:     "L1",
			items:    []pst.Item{mail("1", "one")},
			children: []*fakeFolder{{name: "L2", items: []pst.Item{mail("2", "two")}}},
		}},
	}
	req := newRequest(t, writePST(t))
	depth := 1
	req.Overrides.MaxDepth = &depth

	sum, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: root})).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sum.EmailsExtracted != 2 {
		t.Fatalf("EmailsExtracted = %d, want 2", sum.EmailsExtracted)
	}
	if !exists(t, filepath.Join(req.OutputDir, "0.eml")) {
		t.Error("root items belong in the output directory")
	}
	if exists(t, filepath.Join(req.OutputDir, "L1", "L2")) {
		t.Error("folder below the depth limit was visited")
	}
}

func TestExtractTextFormat(t *testing.T) {
	root := &fakeFolder{name: "root", items: []pst.Item{mail("5", "plain")}}
	req := newRequest(t, writePST(t))
	format := FormatText
	req.Overrides.Format = &format

	if _, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: root})).Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(req.OutputDir, "5.txt"))
	if err != nil {
		t.Fatalf("read text message: %v", err)
	}
	if !strings.Contains(string(data), "Subject: plain") {
		t.Fatalf("text output missing subject: %q", data)
	}
}

func TestExtractItemFailureIsCounted(t *testing.T) {
	root := &fakeFolder{name: "root", items: []pst.Item{
		fakeItem{class: "IPM.Note", err: errors.New("broken item")},
		mail("7", "fine"),
	}}
	req := newRequest(t, writePST(t))

	sum, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: root})).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sum.Failed != 1 || sum.EmailsExtracted != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestExtractMissingAttachmentDir(t *testing.T) {
	req := newRequest(t, writePST(t))
	req.AttachmentDir = ""

	_, err := New(DefaultOptions(), nil, WithParser(&fakeParser{root: &fakeFolder{}})).Extract(context.Background(), req)
	if !errors.Is(err, ErrMissingRequiredOutput) {
		t.Fatalf("expected ErrMissingRequiredOutput, got %v", err)
	}
	if exists(t, req.OutputDir) {
		t.Fatal("output directory created before validation")
	}
}

func TestExtractNotFound(t *testing.T) {
	req := newRequest(t, filepath.Join(t.TempDir(), "missing.pst"))
	if _, err := New(DefaultOptions(), nil).Extract(context.Background(), req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractNoParser(t *testing.T) {
	req := newRequest(t, writePST(t))
	_, err := New(DefaultOptions(), nil, WithConverter(&fakeConverter{})).Extract(context.Background(), req)
	if !errors.Is(err, ErrNoParser) || !errors.Is(err, ErrExternalToolUnavailable) {
		t.Fatalf("expected ErrNoParser wrapping ErrExternalToolUnavailable, got %v", err)
	}
}

func TestExtractOLMUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mac.olm")
	if err := os.WriteFile(path, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(DefaultOptions(), nil).Extract(context.Background(), newRequest(t, path))
	if !errors.Is(err, ErrUnsupportedContainer) {
		t.Fatalf("expected ErrUnsupportedContainer, got %v", err)
	}
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	small := container.Ref{Kind: container.KindPST, Size: container.LargeFileThreshold - 1}
	large := container.Ref{Kind: container.KindPST, Size: container.LargeFileThreshold}

	tests := []struct {
		name string
		e    *Extractor
		ref  container.Ref
		want Strategy
	}{
		{"small with parser", New(DefaultOptions(), nil, WithParser(&fakeParser{}), WithConverter(&fakeConverter{available: true})), small, StrategyInProcess},
		{"large with converter", New(DefaultOptions(), nil, WithParser(&fakeParser{}), WithConverter(&fakeConverter{available: true})), large, StrategyExternal},
		{"large probe fails", New(DefaultOptions(), nil, WithParser(&fakeParser{}), WithConverter(&fakeConverter{})), large, StrategyInProcess},
		{"small without parser", New(DefaultOptions(), nil, WithConverter(&fakeConverter{available: true})), small, StrategyExternal},
		{"nothing configured", New(DefaultOptions(), nil), large, StrategyInProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Plan(ctx, tt.ref); got != tt.want {
				t.Fatalf("Plan = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractExternalReconcile(t *testing.T) {
	conv := &fakeConverter{available: true, files: map[string]string{
		"Inbox/1.eml":      "Subject: one\r\n\r\nbody",
		"Inbox/notes":      "no extension",
		"Inbox/2.vcf":      "BEGIN:VCARD\r\nEND:VCARD\r\n",
		"Calendar/3.ics":   "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		"Inbox/1-file.dat": "blob",
	}}
	req := newRequest(t, writePST(t))

	sum, err := New(DefaultOptions(), nil, WithConverter(conv)).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, p := range []string{
		filepath.Join(req.OutputDir, "Inbox", "1.eml"),
		filepath.Join(req.OutputDir, "Inbox", "contacts", "2.vcf"),
		filepath.Join(req.OutputDir, "Calendar", "calendar", "3.ics"),
		filepath.Join(req.AttachmentDir, "1-file.dat"),
		filepath.Join(req.AttachmentDir, "notes"),
	} {
		if !exists(t, p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if sum.EmailsExtracted != 1 || sum.ContactsExtracted != 1 || sum.AppointmentsExtracted != 1 || sum.AttachmentsExtracted != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestReconcileFirstWriteWins(t *testing.T) {
	conv := &fakeConverter{available: true, files: map[string]string{
		"A/same.dat": "first",
		"B/same.dat": "second",
	}}
	req := newRequest(t, writePST(t))

	sum, err := New(DefaultOptions(), nil, WithConverter(conv)).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(req.AttachmentDir, "same.dat"))
	if err != nil {
		t.Fatal(err)
	}
	// os.ReadDir sorts, so A is reconciled before B.
	if string(data) != "first" {
		t.Fatalf("attachment = %q, want first", data)
	}
	if sum.AttachmentsExtracted != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestExternalFailureFallsBackToParser(t *testing.T) {
	conv := &fakeConverter{available: true, err: errors.New("boom")}
	parser := &fakeParser{root: &fakeFolder{name: "root", items: []pst.Item{mail("1", "x")}}}
	e := New(DefaultOptions(), nil, WithConverter(conv), WithParser(parser))

	r := &run{
		opts:          DefaultOptions(),
		ref:           container.Ref{Path: writePST(t), Kind: container.KindPST, Size: container.LargeFileThreshold},
		stats:         stats.New(),
		logger:        e.logger,
		outputDir:     filepath.Join(t.TempDir(), "out"),
		attachmentDir: filepath.Join(t.TempDir(), "att"),
	}
	if err := e.extractPST(context.Background(), r); err != nil {
		t.Fatalf("extractPST: %v", err)
	}
	if conv.calls != 1 {
		t.Fatalf("converter calls = %d, want 1", conv.calls)
	}
	if parser.fileCalls != 1 {
		t.Fatalf("large container should be parsed from file, got %d calls", parser.fileCalls)
	}
	if got := r.stats.Snapshot().EmailsExtracted; got != 1 {
		t.Fatalf("EmailsExtracted = %d, want 1", got)
	}
}

func TestExternalFailureWithoutParser(t *testing.T) {
	conv := &fakeConverter{available: true, err: errors.New("boom")}
	_, err := New(DefaultOptions(), nil, WithConverter(conv)).Extract(context.Background(), newRequest(t, writePST(t)))
	if !errors.Is(err, ErrExternalToolFailure) {
		t.Fatalf("expected ErrExternalToolFailure, got %v", err)
	}
}

const twoRecords = "From alice@example.com Mon Jan  1 00:00:00 2024\n" +
	"From: alice@example.com\nTo: bob@example.com\nSubject: first\n\nhello\n" +
	"From bob@example.com Mon Jan  1 00:00:00 2024\n" +
	"From: bob@example.com\nSubject: second\n\nnewsletter\n"

func writeMbox(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mail.mbox")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractMbox(t *testing.T) {
	req := newRequest(t, writeMbox(t, twoRecords))
	req.AttachmentDir = ""

	sum, err := New(DefaultOptions(), nil).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sum.EmailsExtracted != 2 {
		t.Fatalf("EmailsExtracted = %d, want 2", sum.EmailsExtracted)
	}
	data, err := os.ReadFile(filepath.Join(req.OutputDir, "message_000001.eml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "From alice@example.com") {
		t.Fatalf("record should be written verbatim, got %q", data)
	}
}

func TestExtractMboxText(t *testing.T) {
	req := newRequest(t, writeMbox(t, twoRecords))
	format := FormatText
	req.Overrides.Format = &format

	if _, err := New(DefaultOptions(), nil).Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(req.OutputDir, "message_000002.txt"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"Subject: second", "From: bob@example.com", "To: Unknown Recipient", "Date: Unknown Date", "newsletter"} {
		if !strings.Contains(got, want) {
			t.Errorf("text record missing %q:\n%s", want, got)
		}
	}
}

func TestExtractMboxFilter(t *testing.T) {
	f, err := filter.New(filter.Options{ExcludeBody: []string{"newsletter"}})
	if err != nil {
		t.Fatal(err)
	}
	req := newRequest(t, writeMbox(t, twoRecords))

	sum, err := New(DefaultOptions(), nil, WithFilter(f)).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sum.EmailsExtracted != 1 || sum.Filtered != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestExtractMboxPrefix(t *testing.T) {
	req := newRequest(t, writeMbox(t, twoRecords))
	prefix := true
	req.Overrides.PrefixContainer = &prefix

	if _, err := New(DefaultOptions(), nil).Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !exists(t, filepath.Join(req.OutputDir, "mail_message_000001.eml")) {
		t.Fatal("prefixed record missing")
	}
}

func TestScanRecordHeader(t *testing.T) {
	rec := []byte("From x\r\nSUBJECT: Loud\r\nsubject: quiet\r\nFrom: a@b\r\n\r\nbody\r\n")
	h, body := scanRecordHeader(rec)
	if h.Subject != "Loud" || h.From != "a@b" || h.To != placeholderTo || h.Date != placeholderDate {
		t.Fatalf("unexpected header %+v", h)
	}
	if string(body) != "body\r\n" {
		t.Fatalf("body = %q", body)
	}

	rec = []byte("From a\nSubject: s\n\nline one\npasted\r\n\r\nline two\n")
	h, body = scanRecordHeader(rec)
	if h.Subject != "s" {
		t.Fatalf("Subject = %q", h.Subject)
	}
	if string(body) != "line one\npasted\r\n\r\nline two\n" {
		t.Fatalf("body cut at a later blank line: %q", body)
	}
}

func TestExtractMboxRecordFailureIsIsolated(t *testing.T) {
	req := newRequest(t, writeMbox(t, twoRecords))
	if err := os.MkdirAll(filepath.Join(req.OutputDir, "message_000001.eml"), 0o755); err != nil {
		t.Fatal(err)
	}

	sum, err := New(DefaultOptions(), nil).Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !exists(t, filepath.Join(req.OutputDir, "message_000002.eml")) {
		t.Fatal("record after the failed one was not written")
	}
	if sum.EmailsExtracted != 1 || sum.Failed != 1 {
		t.Fatalf("EmailsExtracted = %d, Failed = %d, want 1 and 1", sum.EmailsExtracted, sum.Failed)
	}
}

func TestExtractMboxReadErrorMidStream(t *testing.T) {
	req := newRequest(t, writeMbox(t, twoRecords))
	boom := errors.New("disk gone")
	e := New(DefaultOptions(), nil)
	e.openStream = func(string) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(strings.NewReader(twoRecords), iotest.ErrReader(boom))), nil
	}

	sum, err := e.Extract(context.Background(), req)
	if !errors.Is(err, ErrStreamRead) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrStreamRead wrapping the read error, got %v", err)
	}
	if sum != (stats.Summary{}) {
		t.Fatalf("summary = %+v, want zero", sum)
	}
	if !exists(t, filepath.Join(req.OutputDir, "message_000001.eml")) {
		t.Fatal("record read before the error should already be on disk")
	}
}

func TestStagedCountersOnlyMergeOnSuccess(t *testing.T) {
	r := &run{stats: stats.New(), logger: slog.New(slog.DiscardHandler)}
	r.stats.AddEmail()

	err := r.staged(func(s *run) error {
		s.stats.AddEmail()
		s.stats.AddAttachment()
		return errors.New("staging tree unreadable")
	})
	if err == nil {
		t.Fatal("expected the staged error")
	}
	if got := r.stats.Snapshot(); got.EmailsExtracted != 1 || got.AttachmentsExtracted != 0 {
		t.Fatalf("failed attempt leaked into live counters: %+v", got)
	}

	if err := r.staged(func(s *run) error {
		s.stats.AddEmail()
		s.stats.AddFolder()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if got := r.stats.Snapshot(); got.EmailsExtracted != 2 || got.FoldersVisited != 1 {
		t.Fatalf("successful attempt not merged: %+v", got)
	}
}

func TestStatsResetAcrossCalls(t *testing.T) {
	st := stats.New()
	e := New(DefaultOptions(), nil)
	for i := 0; i < 2; i++ {
		req := newRequest(t, writeMbox(t, twoRecords))
		req.Stats = st
		sum, err := e.Extract(context.Background(), req)
		if err != nil {
			t.Fatalf("Extract call %d: %v", i, err)
		}
		if sum.EmailsExtracted != 2 {
			t.Fatalf("call %d: EmailsExtracted = %d, want 2", i, sum.EmailsExtracted)
		}
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultOptions(), nil).Extract(ctx, newRequest(t, writeMbox(t, twoRecords)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
