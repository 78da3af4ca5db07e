// Package transfer executes batches of downloads and uploads under a
// bounded concurrency cap, digesting content as it streams. The engine
// never mutates shared state: jobs go in as owned descriptors, results
// come back over a channel, and the caller commits manifest updates and
// persistence once after the batch drains.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"scidataflow/internal/digest"
	"scidataflow/internal/remote"
)

// ErrChecksumMismatch indicates streamed bytes did not digest to the
// expected MD5. Downloads remove the partial destination.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// SkipIdentical is the skip reason for files already identical on both
// sides.
const SkipIdentical = "identical"

// Direction selects the transfer direction of a job.
type Direction int

const (
	// Download fetches URL into LocalPath.
	Download Direction = iota
	// Upload sends LocalPath to Remote.
	Upload
)

// Job is one transfer. RelPath keys the manifest entry the result should
// update; Name is the flat filename on the remote side.
type Job struct {
	ID          string
	Direction   Direction
	Name        string
	RelPath     string
	LocalPath   string
	URL         string        // download source
	Remote      remote.Remote // upload target
	ExpectedMD5 string
	Size        int64 // expected bytes; 0 when unknown
	Overwrite   bool
}

// Result is the outcome of one job. Exactly one of Skipped/Err/success
// holds: a skipped job carries its reason, a failed one its error, and a
// successful one the observed MD5 and size for the manifest commit.
type Result struct {
	Job     Job
	MD5     string
	Size    int64
	Skipped bool
	Reason  string
	Err     error
}

// Config bounds the engine.
type Config struct {
	MaxInFlight int
	BufferBytes int
}

// DefaultConfig returns the standard bounds: 8 transfers in flight,
// 64 KiB buffers.
func DefaultConfig() Config {
	return Config{MaxInFlight: 8, BufferBytes: 64 * 1024}
}

// Engine runs transfer batches.
type Engine struct {
	cfg      Config
	client   *http.Client
	reporter Reporter
}

// NewEngine creates an engine with the given bounds and progress
// reporter. A nil reporter disables progress.
func NewEngine(cfg Config, reporter Reporter) *Engine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = DefaultConfig().BufferBytes
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Engine{
		cfg:      cfg,
		reporter: reporter,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 30 * time.Second,
				Proxy:               http.ProxyFromEnvironment,
			},
		},
	}
}

// Run executes all jobs with at most MaxInFlight concurrent transfers.
// Per-job failures never abort the batch. Results are re-sorted by
// RelPath so reporting is deterministic regardless of completion order.
func (e *Engine) Run(ctx context.Context, jobs []Job) []Result {
	var total int64
	for i := range jobs {
		if jobs[i].ID == "" {
			jobs[i].ID = uuid.NewString()
		}
		total += jobs[i].Size
	}
	e.reporter.BatchStart(len(jobs), total)
	defer e.reporter.BatchEnd()

	sem := semaphore.NewWeighted(int64(e.cfg.MaxInFlight))
	results := make(chan Result, len(jobs))
	var wg sync.WaitGroup

	for _, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			results <- Result{Job: job, Err: fmt.Errorf("transfer cancelled: %w", err)}
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer sem.Release(1)
			results <- e.runJob(ctx, job)
		}(job)
	}

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(jobs))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.RelPath < out[j].Job.RelPath })
	return out
}

func (e *Engine) runJob(ctx context.Context, job Job) Result {
	var res Result
	switch job.Direction {
	case Download:
		res = e.download(ctx, job)
	case Upload:
		res = e.upload(ctx, job)
	default:
		res = Result{Job: job, Err: fmt.Errorf("unknown transfer direction %d", job.Direction)}
	}
	if !res.Skipped {
		e.reporter.Finish(job.ID, res.Err)
	}
	return res
}

// download streams job.URL into job.LocalPath via a temp file in the
// destination directory, hashing inline and committing by rename.
func (e *Engine) download(ctx context.Context, job Job) Result {
	if skip, ok := e.skipDownload(job); ok {
		return skip
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("building request for %s: %w", job.Name, err)}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("downloading %s: %w", job.Name, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{Job: job, Err: &remote.APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}}
	}

	size := job.Size
	if size == 0 && resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	e.reporter.Start(job.ID, job.Name, size)

	if err := os.MkdirAll(filepath.Dir(job.LocalPath), 0755); err != nil {
		return Result{Job: job, Err: fmt.Errorf("creating directory for %s: %w", job.LocalPath, err)}
	}
	tmpPath := job.LocalPath + ".sdf-tmp-" + uuid.NewString()
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("creating temp file for %s: %w", job.Name, err)}
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	src := digest.NewReader(resp.Body)
	buf := make([]byte, e.cfg.BufferBytes)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return Result{Job: job, Err: fmt.Errorf("writing %s: %w", job.Name, werr)}
			}
			e.reporter.Progress(job.ID, int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return Result{Job: job, Err: fmt.Errorf("reading %s: %w", job.Name, readErr)}
		}
	}
	if err := tmp.Close(); err != nil {
		return Result{Job: job, Err: fmt.Errorf("closing temp file for %s: %w", job.Name, err)}
	}

	sum := src.Sum()
	if job.ExpectedMD5 != "" && sum != job.ExpectedMD5 {
		return Result{Job: job, Err: fmt.Errorf("%w: %s downloaded as %s, expected %s",
			ErrChecksumMismatch, job.Name, sum, job.ExpectedMD5)}
	}
	if err := os.Rename(tmpPath, job.LocalPath); err != nil {
		return Result{Job: job, Err: fmt.Errorf("committing %s: %w", job.Name, err)}
	}
	success = true
	return Result{Job: job, MD5: sum, Size: src.BytesRead()}
}

// skipDownload applies the pre-check rule: with overwrite off and a
// destination present, identical content is skipped — by digest when the
// remote exposes one, by size otherwise.
func (e *Engine) skipDownload(job Job) (Result, bool) {
	if job.Overwrite {
		return Result{}, false
	}
	exists, size, _, err := digest.Stat(job.LocalPath)
	if err != nil || !exists {
		return Result{}, false
	}
	if job.ExpectedMD5 != "" {
		localMD5, localSize, err := digest.File(job.LocalPath)
		if err == nil && localMD5 == job.ExpectedMD5 {
			return Result{Job: job, Skipped: true, Reason: SkipIdentical, MD5: localMD5, Size: localSize}, true
		}
		return Result{}, false
	}
	if job.Size > 0 && size == job.Size {
		return Result{Job: job, Skipped: true, Reason: SkipIdentical, Size: size}, true
	}
	return Result{}, false
}

// upload delegates streaming to the remote adapter, which owns its
// native protocol; the engine provides the concurrency bound, progress
// wiring, and error normalization.
func (e *Engine) upload(ctx context.Context, job Job) Result {
	if job.Remote == nil {
		return Result{Job: job, Err: fmt.Errorf("upload job %s has no remote", job.Name)}
	}
	e.reporter.Start(job.ID, job.Name, job.Size)

	rf, err := job.Remote.Upload(ctx, remote.Upload{
		Name:     job.Name,
		Path:     job.LocalPath,
		MD5:      job.ExpectedMD5,
		Size:     job.Size,
		Progress: func(n int64) { e.reporter.Progress(job.ID, n) },
	}, job.Overwrite)
	if err != nil {
		if errors.Is(err, remote.ErrAlreadyExists) {
			return Result{Job: job, Err: err}
		}
		return Result{Job: job, Err: fmt.Errorf("uploading %s: %w", job.Name, err)}
	}

	md5sum := rf.MD5
	if md5sum == "" {
		md5sum = job.ExpectedMD5
	}
	return Result{Job: job, MD5: md5sum, Size: job.Size}
}
