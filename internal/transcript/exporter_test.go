package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	syncerrors "github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/media"
	"github.com/35services/slack-2-wordpress/internal/thread"
)

func launchThread() []thread.Message {
	return []thread.Message{
		{Timestamp: "100.1", ThreadTimestamp: "100.1", AuthorID: "U1", Text: "Launch plan\nDetails below."},
		{Timestamp: "100.2", ThreadTimestamp: "100.1", AuthorID: "U2", Text: "LGTM"},
	}
}

func TestRenderTranscript_Sections(t *testing.T) {
	names := map[string]string{"U1": "Ana", "U2": "Ben"}

	out, err := RenderTranscript(launchThread(), "100.1", nil, names)
	if err != nil {
		t.Fatalf("RenderTranscript failed: %v", err)
	}

	if !strings.HasPrefix(out, "# Launch plan\n") {
		t.Errorf("transcript should start with the title, got %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, "## Original") {
		t.Error("transcript missing Original section")
	}
	if !strings.Contains(out, "## Reply 1") {
		t.Error("transcript missing Reply 1 section")
	}
	if !strings.Contains(out, "Ana") || !strings.Contains(out, "Ben") {
		t.Error("transcript should use resolved display names")
	}
	if !strings.Contains(out, "LGTM") {
		t.Error("transcript missing reply text")
	}
}

func TestRenderTranscript_MediaLinks(t *testing.T) {
	mediaByIdx := map[int][]media.Downloaded{
		1: {{RelativePath: "media/100.1/100.2-00-diagram.png"}},
	}

	out, err := RenderTranscript(launchThread(), "100.1", mediaByIdx, nil)
	if err != nil {
		t.Fatalf("RenderTranscript failed: %v", err)
	}

	if !strings.Contains(out, "![100.2-00-diagram.png](media/100.1/100.2-00-diagram.png)") {
		t.Error("transcript missing inline image link")
	}
}

func TestRenderTranscript_EmptyThread(t *testing.T) {
	_, err := RenderTranscript(nil, "100.1", nil, nil)
	if !syncerrors.Is(err, syncerrors.ErrInvalidRequest) {
		t.Errorf("empty thread = %v, want INVALID_REQUEST", err)
	}
}

func TestTitleFor_Truncation(t *testing.T) {
	long := strings.Repeat("a", 120)
	msgs := []thread.Message{{Timestamp: "100.1", Text: long}}

	title := TitleFor(msgs)
	if len([]rune(title)) != maxTitleChars {
		t.Errorf("truncated title has %d runes, want %d", len([]rune(title)), maxTitleChars)
	}
	if !strings.HasSuffix(title, "…") {
		t.Error("truncated title should end with an ellipsis")
	}
}

func TestFilenameFor(t *testing.T) {
	got := FilenameFor("Launch plan: Q3 rollout!", "1700000000.000100")
	want := "launch-plan-q3-rollout-1700000000-000100.md"
	if got != want {
		t.Errorf("FilenameFor = %q, want %q", got, want)
	}

	// Deterministic
	if again := FilenameFor("Launch plan: Q3 rollout!", "1700000000.000100"); again != got {
		t.Errorf("FilenameFor is not deterministic: %q vs %q", again, got)
	}
}

func TestRenderScaffold(t *testing.T) {
	mediaByIdx := map[int][]media.Downloaded{
		0: {{RelativePath: "media/100.1/100.1-00-a.png"}},
		1: {{RelativePath: "media/100.1/100.2-00-b.png"}},
	}

	out, err := RenderScaffold(launchThread(), "100.1", mediaByIdx)
	if err != nil {
		t.Fatalf("RenderScaffold failed: %v", err)
	}

	if !strings.HasPrefix(out, "# Summary: Launch plan\n") {
		t.Error("scaffold missing summary title")
	}
	if !strings.Contains(out, "- Thread: 100.1") {
		t.Error("scaffold missing fingerprint metadata")
	}
	if !strings.Contains(out, "## Summary\n\n_To be written._") {
		t.Error("scaffold missing empty summary placeholder")
	}
	aIdx := strings.Index(out, "a.png")
	bIdx := strings.Index(out, "b.png")
	if aIdx < 0 || bIdx < 0 || aIdx > bIdx {
		t.Error("scaffold media list should include all media in message order")
	}
}

func TestExportThread_ScaffoldWriteOnce(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, 4)

	first, err := e.ExportThread(launchThread(), "100.1", nil, nil)
	if err != nil {
		t.Fatalf("first export failed: %v", err)
	}
	if !first.Scaffold.Created {
		t.Error("first export should create the scaffold")
	}

	scaffoldBytes, err := os.ReadFile(first.Scaffold.Path)
	if err != nil {
		t.Fatalf("read scaffold: %v", err)
	}

	// Resync with a changed thread: transcript changes, scaffold doesn't.
	changed := append(launchThread(), thread.Message{
		Timestamp: "100.3", ThreadTimestamp: "100.1", AuthorID: "U3", Text: "One more thing",
	})
	second, err := e.ExportThread(changed, "100.1", nil, nil)
	if err != nil {
		t.Fatalf("second export failed: %v", err)
	}
	if second.Scaffold.Created {
		t.Error("rerun should report scaffold created: false")
	}

	scaffoldAfter, err := os.ReadFile(second.Scaffold.Path)
	if err != nil {
		t.Fatalf("read scaffold: %v", err)
	}
	if string(scaffoldAfter) != string(scaffoldBytes) {
		t.Error("scaffold bytes changed on resync; scaffold must be write-once")
	}

	transcriptAfter, err := os.ReadFile(second.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(transcriptAfter), "One more thing") {
		t.Error("transcript should be regenerated on resync")
	}
	if !strings.Contains(string(transcriptAfter), "## Reply 2") {
		t.Error("regenerated transcript missing new reply section")
	}
}

func TestExportMany_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, 4)

	threads := []ThreadExport{
		{Fingerprint: "100.1", Messages: launchThread()},
		{Fingerprint: "200.1"}, // empty message list: export fails
		{Fingerprint: "300.1", Messages: []thread.Message{
			{Timestamp: "300.1", Text: "Retro notes"},
		}},
	}

	outcomes := e.ExportMany(threads)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	if outcomes[0].Err != nil {
		t.Errorf("thread 100.1 export failed: %v", outcomes[0].Err)
	}
	if outcomes[1].Err == nil {
		t.Error("thread 200.1 should fail (no messages)")
	}
	if outcomes[2].Err != nil {
		t.Errorf("thread 300.1 export failed: %v", outcomes[2].Err)
	}

	// The failing thread didn't stop its siblings from hitting disk.
	for _, fp := range []string{"100.1", "300.1"} {
		found := false
		entries, _ := os.ReadDir(dir)
		for _, entry := range entries {
			if strings.Contains(entry.Name(), strings.ReplaceAll(fp, ".", "-")) && strings.HasSuffix(entry.Name(), ".md") {
				found = true
			}
		}
		if !found {
			t.Errorf("thread %s left no artifacts in %s", fp, dir)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Launch plan", "launch-plan"},
		{"  What's new?  ", "what-s-new"},
		{"", "untitled"},
		{strings.Repeat("x", 100), strings.Repeat("x", maxSlugChars)},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportThread_TranscriptPathUsesSlug(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, 1)

	result, err := e.ExportThread(launchThread(), "100.1", nil, nil)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	want := filepath.Join(dir, "launch-plan-100-1.md")
	if result.TranscriptPath != want {
		t.Errorf("TranscriptPath = %q, want %q", result.TranscriptPath, want)
	}
	if result.Scaffold.Path != filepath.Join(dir, "launch-plan-100-1.summary.md") {
		t.Errorf("Scaffold.Path = %q", result.Scaffold.Path)
	}
	if result.Title != "Launch plan" {
		t.Errorf("Title = %q, want %q", result.Title, "Launch plan")
	}
	if result.Transcript == "" {
		t.Error("ExportResult should carry the rendered transcript")
	}
}
