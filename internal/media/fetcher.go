// Package media downloads and validates image attachments.
//
// Downloads are cached by deterministic local path: if the file for a
// (fingerprint, message, index) triple already exists it is never re-fetched.
// This is name-based, not content-hash-based, so a changed remote asset with
// the same derived name is never picked up — a known weakness, kept because
// content hashing would require the very network fetch the cache avoids.
package media

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/35services/slack-2-wordpress/internal/thread"
)

// minImageBytes is the smallest payload accepted as an image. Anything under
// this is certainly an error body, not a picture.
const minImageBytes = 100

// sniffBytes is how much of the payload is inspected for error markers and
// image signatures.
const sniffBytes = 512

// Downloader streams the bytes of an authenticated attachment URL.
type Downloader interface {
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// Downloaded describes a locally stored asset.
type Downloaded struct {
	LocalPath    string `json:"local_path"`
	RelativePath string `json:"relative_path"`
	ByteSize     int64  `json:"byte_size"`
	Cached       bool   `json:"cached"`
}

// Result is the tagged outcome of one asset download. Err is data, never a
// control-flow signal: one failed asset never fails its siblings.
type Result struct {
	Asset      thread.File
	Downloaded *Downloaded
	Err        error
}

// OK reports whether the download succeeded.
func (r Result) OK() bool { return r.Err == nil }

// MessageResult groups the per-asset results of one message.
type MessageResult struct {
	MessageTimestamp string
	Results          []Result
	AllSucceeded     bool
}

// Fetcher downloads image attachments under a media root partitioned by
// thread fingerprint.
type Fetcher struct {
	downloader  Downloader
	root        string // absolute media directory
	relBase     string // prefix for RelativePath values, e.g. "media"
	concurrency int
}

// NewFetcher creates a Fetcher writing under root. RelativePath values are
// prefixed with relBase so transcripts can link media with paths relative to
// the output directory. concurrency caps parallel downloads; values < 1
// default to 8.
func NewFetcher(downloader Downloader, root, relBase string, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 8
	}
	return &Fetcher{
		downloader:  downloader,
		root:        root,
		relBase:     relBase,
		concurrency: concurrency,
	}
}

// ExtractAssets filters a message's attachments to those whose mime type
// indicates an image. Pure function, no I/O.
func ExtractAssets(msg thread.Message) []thread.File {
	var assets []thread.File
	for _, f := range msg.Files {
		if strings.HasPrefix(f.MimeType, "image/") {
			assets = append(assets, f)
		}
	}
	return assets
}

// Download fetches one asset to its deterministic local path. It never
// returns an error as control flow; failures are tagged in the Result.
func (f *Fetcher) Download(ctx context.Context, asset thread.File, fingerprint, messageTimestamp string, index int) Result {
	filename := fmt.Sprintf("%s-%02d-%s", sanitizeComponent(messageTimestamp), index, sanitizeComponent(asset.Name))
	fpDir := sanitizeComponent(fingerprint)
	localPath := filepath.Join(f.root, fpDir, filename)
	relPath := filepath.ToSlash(filepath.Join(f.relBase, fpDir, filename))

	// Cache hit: the path already exists, no network call.
	if info, err := os.Stat(localPath); err == nil {
		return Result{Asset: asset, Downloaded: &Downloaded{
			LocalPath:    localPath,
			RelativePath: relPath,
			ByteSize:     info.Size(),
			Cached:       true,
		}}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0700); err != nil {
		return Result{Asset: asset, Err: fmt.Errorf("create media directory: %w", err)}
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return Result{Asset: asset, Err: fmt.Errorf("generate temp file name: %w", err)}
	}
	tempPath := localPath + "." + hex.EncodeToString(randBytes) + ".tmp"

	size, prefix, err := f.streamToTemp(ctx, asset.DownloadURL, tempPath)
	if err != nil {
		os.Remove(tempPath)
		return Result{Asset: asset, Err: err}
	}

	// Auth failures and error pages arrive as 200s with HTML or JSON bodies.
	// Trusting them would cache garbage forever under the name-based policy.
	if marker := errorMarker(prefix); marker != "" {
		os.Remove(tempPath)
		return Result{Asset: asset, Err: fmt.Errorf("download of %q returned an error payload (%s), not image bytes", asset.Name, marker)}
	}

	if size < minImageBytes {
		os.Remove(tempPath)
		return Result{Asset: asset, Err: fmt.Errorf("download of %q is %d bytes, too small to be an image", asset.Name, size)}
	}

	// Best-effort signature sniff: an unknown signature alone is a warning,
	// not a hard gate.
	if !isKnownImage(prefix) {
		log.Printf("warning: %q does not match a known image signature, keeping anyway", asset.Name)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return Result{Asset: asset, Err: fmt.Errorf("finalize download: %w", err)}
	}

	return Result{Asset: asset, Downloaded: &Downloaded{
		LocalPath:    localPath,
		RelativePath: relPath,
		ByteSize:     size,
		Cached:       false,
	}}
}

// streamToTemp downloads url to tempPath and returns the byte count and the
// first sniffBytes of the payload.
func (f *Fetcher) streamToTemp(ctx context.Context, url, tempPath string) (int64, []byte, error) {
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, nil, fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	sink := &sniffWriter{w: file}
	if err := f.downloader.DownloadFile(ctx, url, sink); err != nil {
		return 0, nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if err := file.Sync(); err != nil {
		return 0, nil, fmt.Errorf("sync temp file: %w", err)
	}

	return sink.n, sink.prefix, nil
}

// sniffWriter tees the first sniffBytes of a stream while counting the total.
type sniffWriter struct {
	w      io.Writer
	n      int64
	prefix []byte
}

func (s *sniffWriter) Write(p []byte) (int, error) {
	if len(s.prefix) < sniffBytes {
		take := sniffBytes - len(s.prefix)
		if take > len(p) {
			take = len(p)
		}
		s.prefix = append(s.prefix, p[:take]...)
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	return n, err
}

// errorMarkers are payload prefixes that identify an authentication failure
// or HTML error page delivered in place of file bytes.
var errorMarkers = []string{
	"<!doctype",
	"<html",
	"<head",
	`{"ok":false`,
	"you are being redirected",
}

// errorMarker returns the matched marker, or "" if the prefix looks like a
// genuine binary payload.
func errorMarker(prefix []byte) string {
	head := strings.ToLower(string(bytes.TrimLeft(prefix, " \t\r\n")))
	for _, m := range errorMarkers {
		if strings.HasPrefix(head, m) {
			return m
		}
	}
	return ""
}

// isKnownImage checks for JPEG/PNG/GIF/WebP magic bytes.
func isKnownImage(prefix []byte) bool {
	switch {
	case bytes.HasPrefix(prefix, []byte{0xFF, 0xD8, 0xFF}): // JPEG
		return true
	case bytes.HasPrefix(prefix, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}): // PNG
		return true
	case bytes.HasPrefix(prefix, []byte("GIF87a")), bytes.HasPrefix(prefix, []byte("GIF89a")):
		return true
	case len(prefix) >= 12 && bytes.Equal(prefix[0:4], []byte("RIFF")) && bytes.Equal(prefix[8:12], []byte("WEBP")):
		return true
	}
	return false
}

// DownloadAllForMessage fans Download out over all image assets of one
// message. Results are ordered by asset index.
func (f *Fetcher) DownloadAllForMessage(ctx context.Context, msg thread.Message, fingerprint string) []Result {
	assets := ExtractAssets(msg)
	results := make([]Result, len(assets))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for i, asset := range assets {
		eg.Go(func() error {
			results[i] = f.Download(gctx, asset, fingerprint, msg.Timestamp, i)
			return nil
		})
	}
	// Goroutines never return an error; failures live in the results.
	_ = eg.Wait()

	return results
}

// DownloadAllForThread fans DownloadAllForMessage out over all messages of a
// thread. Only messages with at least one image asset appear in the output.
func (f *Fetcher) DownloadAllForThread(ctx context.Context, messages []thread.Message, fingerprint string) []MessageResult {
	var withAssets []thread.Message
	for _, msg := range messages {
		if len(ExtractAssets(msg)) > 0 {
			withAssets = append(withAssets, msg)
		}
	}

	results := make([]MessageResult, len(withAssets))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for i, msg := range withAssets {
		eg.Go(func() error {
			perAsset := f.DownloadAllForMessage(gctx, msg, fingerprint)
			all := true
			for _, r := range perAsset {
				if !r.OK() {
					all = false
					break
				}
			}
			results[i] = MessageResult{
				MessageTimestamp: msg.Timestamp,
				Results:          perAsset,
				AllSucceeded:     all,
			}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// unsafeChars matches everything that may not appear in a path component.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeComponent makes s safe to use as a single path component.
func sanitizeComponent(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "unnamed"
	}
	return s
}
