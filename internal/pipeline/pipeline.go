// Package pipeline orchestrates a sync run: fetch threads, download media,
// export local artifacts, publish to the target, report.
//
// The stage order is the pipeline's key correctness property: transcripts and
// scaffolds are committed to local storage before any remote publish is
// attempted, so a dead publish target never costs local durability.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/35services/slack-2-wordpress/internal/media"
	"github.com/35services/slack-2-wordpress/internal/state"
	"github.com/35services/slack-2-wordpress/internal/thread"
	"github.com/35services/slack-2-wordpress/internal/transcript"
	"github.com/35services/slack-2-wordpress/internal/wordpress"
)

// Source is the thread-source collaborator contract.
type Source interface {
	ValidateChannel(ctx context.Context, channelID string) error
	ListThreads(ctx context.Context, channelID string) ([]thread.Message, error)
	ListMessages(ctx context.Context, channelID, threadTimestamp string) ([]thread.Message, error)
	ResolveUserName(ctx context.Context, userID string) string
}

// Publisher is the publish-target collaborator contract.
type Publisher interface {
	Validate(ctx context.Context) error
	CreateDocument(ctx context.Context, title, markdown string) (wordpress.Post, error)
	UpdateDocument(ctx context.Context, id int, title, markdown string) (wordpress.Post, error)
}

// Report aggregates a run's outcome. Exported-artifact counts are kept
// separate from publish counts so a caller can tell local durability
// succeeded even when every remote publish failed.
type Report struct {
	Threads             int      `json:"threads"`
	Created             int      `json:"created"`
	Updated             int      `json:"updated"`
	Skipped             int      `json:"skipped"`
	Errored             int      `json:"errored"`
	TranscriptsExported int      `json:"transcripts_exported"`
	ScaffoldsCreated    int      `json:"scaffolds_created"`
	MediaDownloaded     int      `json:"media_downloaded"`
	MediaCached         int      `json:"media_cached"`
	MediaFailed         int      `json:"media_failed"`
	Errors              []string `json:"errors,omitempty"`
}

// Summary renders the one-line report used as the final progress message.
func (r *Report) Summary() string {
	return fmt.Sprintf("synced %d threads: %d created, %d updated, %d skipped, %d errored; %d transcripts, %d scaffolds, %d media downloaded",
		r.Threads, r.Created, r.Updated, r.Skipped, r.Errored, r.TranscriptsExported, r.ScaffoldsCreated, r.MediaDownloaded)
}

// Params wires a Pipeline.
type Params struct {
	Source      Source
	Publisher   Publisher
	Store       *state.Store
	Fetcher     *media.Fetcher
	Exporter    *transcript.Exporter
	Tracker     *Tracker
	ChannelID   string
	Concurrency int
}

// Pipeline drives the sync stages over one channel.
type Pipeline struct {
	source      Source
	publisher   Publisher
	store       *state.Store
	fetcher     *media.Fetcher
	exporter    *transcript.Exporter
	tracker     *Tracker
	channelID   string
	concurrency int
}

// New creates a Pipeline. Concurrency caps the fan-out stages; values < 1
// default to 8.
func New(p Params) *Pipeline {
	if p.Concurrency < 1 {
		p.Concurrency = 8
	}
	return &Pipeline{
		source:      p.Source,
		publisher:   p.Publisher,
		store:       p.Store,
		fetcher:     p.Fetcher,
		exporter:    p.Exporter,
		tracker:     p.Tracker,
		channelID:   p.ChannelID,
		concurrency: p.Concurrency,
	}
}

// threadSync carries one thread's state through the stages.
type threadSync struct {
	fingerprint  string
	messages     []thread.Message
	mediaByIndex map[int][]media.Downloaded
	export       *transcript.ExportResult
	failed       bool
}

// SyncAll runs the full stage sequence and returns the final report. Only an
// access/validation failure (or a second concurrent invocation) returns an
// error; every other failure degrades to partial results inside the report.
func (p *Pipeline) SyncAll(ctx context.Context) (*Report, error) {
	run, err := p.tracker.begin()
	if err != nil {
		return nil, err
	}
	defer p.tracker.release(run)
	return p.runStages(ctx, run)
}

// Start begins a run and executes the stages in the background. The SYNC_BUSY
// check happens before Start returns, so callers can surface the conflict
// immediately and poll the tracker for progress afterwards.
func (p *Pipeline) Start(ctx context.Context) (RunSnapshot, error) {
	run, err := p.tracker.begin()
	if err != nil {
		return RunSnapshot{}, err
	}
	snap := run.Snapshot()
	go func() {
		defer p.tracker.release(run)
		if _, err := p.runStages(ctx, run); err != nil {
			log.Printf("sync: run %s failed: %v", snap.ID, err)
		}
	}()
	return snap, nil
}

func (p *Pipeline) runStages(ctx context.Context, run *Run) (*Report, error) {
	report := &Report{}

	// Stage 1: validate access. Fatal on failure: no threads can be
	// processed without the channel.
	run.advance(StatusValidatingAccess, fmt.Sprintf("validating access to channel %s", p.channelID))
	if err := p.source.ValidateChannel(ctx, p.channelID); err != nil {
		run.fail(err.Error())
		return nil, err
	}

	// Stage 2: fetch thread list. Also fatal.
	run.advance(StatusFetchingThreadList, "fetching thread list")
	roots, err := p.source.ListThreads(ctx, p.channelID)
	if err != nil {
		run.fail(err.Error())
		return nil, err
	}
	report.Threads = len(roots)
	log.Printf("sync: channel %s has %d threads", p.channelID, len(roots))

	// Stage 3: fetch messages per thread, fan-out. A thread whose fetch
	// fails is excluded from all later stages without aborting siblings.
	run.advance(StatusFetchingThreadMessages, fmt.Sprintf("fetching messages for %d threads", len(roots)))
	threads := p.fetchMessages(ctx, roots, report)

	// Stage 4: download media for surviving threads, fan-out. A failed
	// download never drops its thread; transcripts render with whatever
	// media succeeded.
	run.advance(StatusDownloadingMedia, "downloading media")
	p.downloadMedia(ctx, threads, report)

	// Stage 5: export transcripts and scaffolds. This is the durability
	// checkpoint: after it, local artifacts exist no matter what stage 6
	// does.
	run.advance(StatusExportingTranscripts, "exporting transcripts")
	p.exportThreads(ctx, threads, report)

	// Stage 6: publish, strictly sequential. The mapping check and upsert
	// form a read-then-write against the store that must not race with
	// itself within a run.
	run.advance(StatusPublishing, "publishing to wordpress")
	p.publish(ctx, run, threads, report)

	// Stage 7: report.
	run.complete(report, report.Summary())
	log.Printf("sync: %s", report.Summary())
	return report, nil
}

func (p *Pipeline) fetchMessages(ctx context.Context, roots []thread.Message, report *Report) []*threadSync {
	threads := make([]*threadSync, len(roots))
	errs := make([]error, len(roots))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)
	for i, root := range roots {
		eg.Go(func() error {
			fp := root.Fingerprint()
			msgs, err := p.source.ListMessages(gctx, p.channelID, fp)
			if err != nil {
				errs[i] = err
				threads[i] = &threadSync{fingerprint: fp, failed: true}
				return nil
			}
			threads[i] = &threadSync{fingerprint: fp, messages: msgs}
			return nil
		})
	}
	_ = eg.Wait()

	for i, err := range errs {
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("fetch thread %s: %v", threads[i].fingerprint, err))
		}
	}
	return threads
}

func (p *Pipeline) downloadMedia(ctx context.Context, threads []*threadSync, report *Report) {
	type counts struct{ downloaded, cached, failed int }
	results := make([]counts, len(threads))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)
	for i, t := range threads {
		if t.failed {
			continue
		}
		eg.Go(func() error {
			indexByTimestamp := make(map[string]int, len(t.messages))
			for idx, msg := range t.messages {
				indexByTimestamp[msg.Timestamp] = idx
			}

			t.mediaByIndex = make(map[int][]media.Downloaded)
			for _, mr := range p.fetcher.DownloadAllForThread(gctx, t.messages, t.fingerprint) {
				idx, ok := indexByTimestamp[mr.MessageTimestamp]
				if !ok {
					continue
				}
				for _, res := range mr.Results {
					if !res.OK() {
						results[i].failed++
						log.Printf("sync: thread %s: media %q failed: %v", t.fingerprint, res.Asset.Name, res.Err)
						continue
					}
					if res.Downloaded.Cached {
						results[i].cached++
					} else {
						results[i].downloaded++
					}
					t.mediaByIndex[idx] = append(t.mediaByIndex[idx], *res.Downloaded)
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	for _, c := range results {
		report.MediaDownloaded += c.downloaded
		report.MediaCached += c.cached
		report.MediaFailed += c.failed
	}
}

func (p *Pipeline) exportThreads(ctx context.Context, threads []*threadSync, report *Report) {
	names := p.resolveNames(ctx, threads)

	var surviving []*threadSync
	var batch []transcript.ThreadExport
	for _, t := range threads {
		if t.failed {
			continue
		}
		surviving = append(surviving, t)
		batch = append(batch, transcript.ThreadExport{
			Fingerprint:         t.fingerprint,
			Messages:            t.messages,
			MediaByMessageIndex: t.mediaByIndex,
			UserDisplayNames:    names,
		})
	}

	for i, outcome := range p.exporter.ExportMany(batch) {
		t := surviving[i]
		if outcome.Err != nil {
			t.failed = true
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("export thread %s: %v", t.fingerprint, outcome.Err))
			continue
		}
		t.export = outcome.Result
		report.TranscriptsExported++
		if outcome.Result.Scaffold.Created {
			report.ScaffoldsCreated++
		}
	}
}

// resolveNames collects display names for every author across the surviving
// threads. The source caches lookups, so repeats are cheap.
func (p *Pipeline) resolveNames(ctx context.Context, threads []*threadSync) map[string]string {
	names := make(map[string]string)
	for _, t := range threads {
		if t.failed {
			continue
		}
		for _, msg := range t.messages {
			if msg.AuthorID == "" {
				continue
			}
			if _, ok := names[msg.AuthorID]; !ok {
				names[msg.AuthorID] = p.source.ResolveUserName(ctx, msg.AuthorID)
			}
		}
	}
	return names
}

func (p *Pipeline) publish(ctx context.Context, run *Run, threads []*threadSync, report *Report) {
	for _, t := range threads {
		if t.failed || t.export == nil {
			continue
		}
		run.setFingerprint(t.fingerprint)

		title := t.export.Title
		body := t.export.Transcript

		if postID, ok := p.store.GetPostID(t.fingerprint); ok {
			if _, err := p.publisher.UpdateDocument(ctx, postID, title, body); err != nil {
				report.Errored++
				report.Errors = append(report.Errors, fmt.Sprintf("update thread %s (post %d): %v", t.fingerprint, postID, err))
				continue
			}
			if err := p.store.Upsert(t.fingerprint, postID, title, nil); err != nil {
				report.Errored++
				report.Errors = append(report.Errors, fmt.Sprintf("record mapping for %s: %v", t.fingerprint, err))
				continue
			}
			report.Updated++
		} else {
			post, err := p.publisher.CreateDocument(ctx, title, body)
			if err != nil {
				report.Errored++
				report.Errors = append(report.Errors, fmt.Sprintf("create thread %s: %v", t.fingerprint, err))
				continue
			}
			if err := p.store.Upsert(t.fingerprint, post.ID, title, nil); err != nil {
				report.Errored++
				report.Errors = append(report.Errors, fmt.Sprintf("record mapping for %s: %v", t.fingerprint, err))
				continue
			}
			report.Created++
		}
	}
}
