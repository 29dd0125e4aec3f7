// Package transcript renders threads into durable markdown artifacts.
//
// Each thread produces two artifacts in the output directory: a transcript,
// regenerated on every sync, and a summary scaffold, written exactly once and
// left untouched on every resync thereafter.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/media"
	"github.com/35services/slack-2-wordpress/internal/thread"
)

// maxTitleChars caps the title derived from the first message's first line.
// Longer titles are truncated with an ellipsis.
const maxTitleChars = 80

// maxSlugChars caps the title portion of generated filenames.
const maxSlugChars = 60

// Exporter writes transcript and scaffold artifacts under an output root.
type Exporter struct {
	outputDir   string
	concurrency int
}

// NewExporter creates an Exporter writing under outputDir. concurrency caps
// the ExportMany fan-out; values < 1 default to 8.
func NewExporter(outputDir string, concurrency int) *Exporter {
	if concurrency < 1 {
		concurrency = 8
	}
	return &Exporter{outputDir: outputDir, concurrency: concurrency}
}

// ScaffoldInfo reports the scaffold side of an export.
type ScaffoldInfo struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

// ExportResult is the outcome of one thread's export.
type ExportResult struct {
	Fingerprint    string       `json:"fingerprint"`
	Title          string       `json:"title"`
	TranscriptPath string       `json:"transcript_path"`
	Transcript     string       `json:"-"`
	Scaffold       ScaffoldInfo `json:"scaffold"`
}

// TitleFor derives the thread title from the first message: its first
// non-empty line, truncated with an ellipsis past maxTitleChars.
func TitleFor(messages []thread.Message) string {
	if len(messages) == 0 {
		return "Untitled thread"
	}
	for _, line := range strings.Split(messages[0].Text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncate(line, maxTitleChars)
		}
	}
	return "Untitled thread"
}

// RenderTranscript renders a thread's messages into markdown. The first
// message becomes the title and "Original" section; subsequent messages
// become numbered "Reply" sections. mediaByMessageIndex maps a message's
// position to its downloaded media, appended as inline image links.
// Fails only when the message list is empty.
func RenderTranscript(messages []thread.Message, fingerprint string, mediaByMessageIndex map[int][]media.Downloaded, userDisplayNames map[string]string) (string, error) {
	if len(messages) == 0 {
		return "", errors.NewInvalidRequest(fmt.Sprintf("thread %s has no messages to render", fingerprint))
	}

	title := TitleFor(messages)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)

	for i, msg := range messages {
		if i == 0 {
			b.WriteString("\n## Original\n\n")
		} else {
			fmt.Fprintf(&b, "\n## Reply %d\n\n", i)
		}

		fmt.Fprintf(&b, "*%s — %s*\n\n", displayName(msg, userDisplayNames), thread.Time(msg.Timestamp).Format("2006-01-02 15:04"))

		if text := strings.TrimSpace(msg.Text); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}

		for _, dl := range mediaByMessageIndex[i] {
			fmt.Fprintf(&b, "\n![%s](%s)\n", filepath.Base(dl.RelativePath), dl.RelativePath)
		}
	}

	return b.String(), nil
}

// RenderScaffold renders the companion summary scaffold: a metadata header,
// an empty Summary section, and a flat list of all media gathered across the
// thread.
func RenderScaffold(messages []thread.Message, fingerprint string, mediaByMessageIndex map[int][]media.Downloaded) (string, error) {
	if len(messages) == 0 {
		return "", errors.NewInvalidRequest(fmt.Sprintf("thread %s has no messages to render", fingerprint))
	}

	title := TitleFor(messages)
	mediaCount := 0
	for _, dls := range mediaByMessageIndex {
		mediaCount += len(dls)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Summary: %s\n\n", title)
	fmt.Fprintf(&b, "- Thread: %s\n", fingerprint)
	fmt.Fprintf(&b, "- Started: %s\n", thread.Time(messages[0].Timestamp).Format("2006-01-02"))
	fmt.Fprintf(&b, "- Messages: %d\n", len(messages))
	fmt.Fprintf(&b, "- Media: %d\n", mediaCount)

	b.WriteString("\n## Summary\n\n_To be written._\n")

	if mediaCount > 0 {
		b.WriteString("\n## Media\n\n")
		// Walk messages in order so the list is deterministic.
		for i := range messages {
			for _, dl := range mediaByMessageIndex[i] {
				fmt.Fprintf(&b, "- ![%s](%s)\n", filepath.Base(dl.RelativePath), dl.RelativePath)
			}
		}
	}

	return b.String(), nil
}

// FilenameFor derives the transcript filename from a sanitized, length-capped
// title plus the fingerprint. The fingerprint makes the name collision-proof
// across threads with identical titles.
func FilenameFor(title, fingerprint string) string {
	return fmt.Sprintf("%s-%s.md", slugify(title), slugFingerprint(fingerprint))
}

// scaffoldFilenameFor derives the scaffold's deterministic filename.
func scaffoldFilenameFor(title, fingerprint string) string {
	return fmt.Sprintf("%s-%s.summary.md", slugify(title), slugFingerprint(fingerprint))
}

// ExportThread writes both artifacts for one thread. The transcript is
// overwritten unconditionally; the scaffold is written only if no file exists
// at its deterministic path (checked immediately before writing).
func (e *Exporter) ExportThread(messages []thread.Message, fingerprint string, mediaByMessageIndex map[int][]media.Downloaded, userDisplayNames map[string]string) (*ExportResult, error) {
	transcript, err := RenderTranscript(messages, fingerprint, mediaByMessageIndex, userDisplayNames)
	if err != nil {
		return nil, err
	}

	title := TitleFor(messages)
	if err := os.MkdirAll(e.outputDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create output directory: %w", err))
	}

	transcriptPath := filepath.Join(e.outputDir, FilenameFor(title, fingerprint))
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0600); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("write transcript: %w", err))
	}

	result := &ExportResult{
		Fingerprint:    fingerprint,
		Title:          title,
		TranscriptPath: transcriptPath,
		Transcript:     transcript,
	}

	scaffoldPath := filepath.Join(e.outputDir, scaffoldFilenameFor(title, fingerprint))
	result.Scaffold = ScaffoldInfo{Path: scaffoldPath}

	// Write-once: an existing scaffold is left untouched forever.
	if _, err := os.Stat(scaffoldPath); err == nil {
		return result, nil
	}

	scaffold, err := RenderScaffold(messages, fingerprint, mediaByMessageIndex)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(scaffoldPath, []byte(scaffold), 0600); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("write scaffold: %w", err))
	}
	result.Scaffold.Created = true

	return result, nil
}

// ThreadExport is one thread's input to ExportMany.
type ThreadExport struct {
	Fingerprint         string
	Messages            []thread.Message
	MediaByMessageIndex map[int][]media.Downloaded
	UserDisplayNames    map[string]string
}

// ExportOutcome is the tagged result of one thread in a batch export.
type ExportOutcome struct {
	Fingerprint string
	Result      *ExportResult
	Err         error
}

// ExportMany exports a batch of threads with bounded fan-out. A failure in
// one thread's export never aborts the batch; every thread reports its own
// outcome, in input order.
func (e *Exporter) ExportMany(threads []ThreadExport) []ExportOutcome {
	outcomes := make([]ExportOutcome, len(threads))

	var eg errgroup.Group
	eg.SetLimit(e.concurrency)
	for i, te := range threads {
		eg.Go(func() error {
			result, err := e.ExportThread(te.Messages, te.Fingerprint, te.MediaByMessageIndex, te.UserDisplayNames)
			outcomes[i] = ExportOutcome{Fingerprint: te.Fingerprint, Result: result, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return outcomes
}

// displayName resolves a message's author to something printable.
func displayName(msg thread.Message, names map[string]string) string {
	if name, ok := names[msg.AuthorID]; ok && name != "" {
		return name
	}
	if msg.AuthorName != "" {
		return msg.AuthorName
	}
	if msg.AuthorID != "" {
		return msg.AuthorID
	}
	return "unknown"
}

// truncate cuts s to max runes, appending an ellipsis when it was longer.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// slugChars matches everything that may not appear in a filename slug.
var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases the title and collapses unsafe runs into hyphens,
// capped at maxSlugChars.
func slugify(title string) string {
	s := strings.ToLower(title)
	s = slugChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "untitled"
	}
	if len(s) > maxSlugChars {
		s = strings.Trim(s[:maxSlugChars], "-")
	}
	return s
}

// slugFingerprint makes a fingerprint filename-safe.
func slugFingerprint(fingerprint string) string {
	return strings.ReplaceAll(fingerprint, ".", "-")
}
