// Package dedupe finds files with identical content and decides which
// copies to remove.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/tfm/pkg/digest"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/storage"
)

// Progress receives scan progress. *tasks.Reporter implements it.
type Progress interface {
	AddTotal(n int64)
	Start(item string)
	Advance(n int64)
}

// FileError reports a file that could not be hashed. The scan continues
// without it.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Options configures a Scanner
type Options struct {
	// Hasher computes digests (sha256 with a 64KB prefix by default)
	Hasher *digest.Hasher

	// Workers bounds parallel hashing (default: number of CPUs)
	Workers int

	// Exclude holds glob patterns of paths to ignore
	Exclude []string

	// MinSize skips files smaller than this many bytes
	MinSize int64

	// Skip drops matching paths before the size pass. The engine uses it
	// to keep quarantined files out of duplicate groups.
	Skip func(path string) bool

	Logger logging.Logger
}

// Scanner groups files by content in three passes: size, prefix digest,
// full digest. A file only reaches a pass if it still shares its key
// with another file.
type Scanner struct {
	hasher   *digest.Hasher
	workers  int
	exclude  []string
	minSize  int64
	skip     func(string) bool
	logger   logging.Logger
	progress Progress
}

// NewScanner creates a scanner
func NewScanner(opts Options) (*Scanner, error) {
	hasher := opts.Hasher
	if hasher == nil {
		var err error
		if hasher, err = digest.New(digest.Options{}); err != nil {
			return nil, err
		}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Scanner{
		hasher:  hasher,
		workers: workers,
		exclude: opts.Exclude,
		minSize: opts.MinSize,
		skip:    opts.Skip,
		logger:  logging.OrNull(opts.Logger),
	}, nil
}

// WithProgress returns a copy of the scanner reporting to p
func (s *Scanner) WithProgress(p Progress) *Scanner {
	c := *s
	c.progress = p
	return &c
}

// Groups lazily yields duplicate groups in ascending size, then prefix
// digest, then full digest order. Files that cannot be read are yielded
// as a *FileError with a nil group and the scan continues; any other
// error ends the sequence.
func (s *Scanner) Groups(ctx context.Context, root string, recursive bool) iter.Seq2[*models.DuplicateGroup, error] {
	return func(yield func(*models.DuplicateGroup, error) bool) {
		run := &scanRun{Scanner: s, stats: &models.ScanStats{}}
		err := run.execute(ctx, root, recursive, func(g *models.DuplicateGroup) bool {
			return yield(g, nil)
		}, func(fe *FileError) bool {
			return yield(nil, fe)
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// Scan collects every group into a report. When ctx is cancelled the
// report holds the groups found so far, Incomplete is set and ctx's
// error is returned alongside it.
func (s *Scanner) Scan(ctx context.Context, root string, recursive bool) (*models.ScanReport, error) {
	report := &models.ScanReport{
		Root:      root,
		Recursive: recursive,
		StartTime: time.Now(),
		Groups:    []*models.DuplicateGroup{},
	}

	run := &scanRun{Scanner: s, stats: &report.Stats}
	err := run.execute(ctx, root, recursive, func(g *models.DuplicateGroup) bool {
		report.Groups = append(report.Groups, g)
		return true
	}, func(fe *FileError) bool {
		report.Errors = append(report.Errors, models.TaskError{
			Path:      fe.Path,
			Operation: fe.Op,
			Error:     fe.Err.Error(),
			Timestamp: time.Now(),
		})
		return true
	})
	report.EndTime = time.Now()

	if err != nil {
		if ctx.Err() != nil {
			report.Incomplete = true
			s.logger.Info(ctx, "duplicate scan cancelled", logging.Fields{
				"root":   root,
				"groups": len(report.Groups),
			})
			return report, ctx.Err()
		}
		return nil, err
	}

	s.logger.Info(ctx, "duplicate scan complete", logging.Fields{
		"root":        root,
		"files":       report.Stats.FilesScanned,
		"groups":      report.Stats.Groups,
		"reclaimable": report.Stats.Reclaimable,
	})
	return report, nil
}

var errStopped = errors.New("consumer stopped")

// scanRun holds the state of one scan
type scanRun struct {
	*Scanner
	stats *models.ScanStats
}

func (r *scanRun) execute(ctx context.Context, root string, recursive bool, emit func(*models.DuplicateGroup) bool, fileErr func(*FileError) bool) error {
	backend, err := storage.NewLocal(root)
	if err != nil {
		return err
	}
	defer backend.Close()

	files, err := backend.List(ctx, storage.ListOptions{Recursive: recursive, Exclude: r.exclude})
	if err != nil {
		return err
	}

	// pass 1: size
	bySize := make(map[int64][]storage.FileInfo)
	for _, f := range files {
		if f.Size < r.minSize || (r.skip != nil && r.skip(f.Path)) {
			continue
		}
		r.stats.FilesScanned++
		r.stats.BytesScanned += f.Size
		bySize[f.Size] = append(bySize[f.Size], f)
	}

	sizes := make([]int64, 0, len(bySize))
	for size, bucket := range bySize {
		if len(bucket) > 1 {
			sizes = append(sizes, size)
			r.stats.SizeCandidates += len(bucket)
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	if r.progress != nil {
		r.progress.AddTotal(int64(r.stats.SizeCandidates))
	}

	for _, size := range sizes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.groupSize(ctx, size, bySize[size], emit, fileErr); err != nil {
			return err
		}
	}
	return nil
}

// groupSize runs passes 2 and 3 on one size bucket
func (r *scanRun) groupSize(ctx context.Context, size int64, bucket []storage.FileInfo, emit func(*models.DuplicateGroup) bool, fileErr func(*FileError) bool) error {
	// pass 2: prefix digest
	partials, err := r.hashAll(ctx, bucket, "partial hash", r.hasher.Partial, fileErr)
	if err != nil {
		return err
	}
	r.stats.PartialHashed += countHashed(partials)

	byPartial := bucketBy(bucket, partials)
	for _, partial := range sortedKeys(byPartial) {
		members := byPartial[partial]
		if len(members) < 2 {
			continue
		}

		// pass 3: full digest; the prefix already covers small files
		fulls := make([]string, len(members))
		if size <= r.hasher.PartialSize() {
			for i := range fulls {
				fulls[i] = partial
			}
		} else {
			if r.progress != nil {
				r.progress.AddTotal(int64(len(members)))
			}
			fulls, err = r.hashAll(ctx, members, "full hash", r.hasher.Full, fileErr)
			if err != nil {
				return err
			}
			r.stats.FullHashed += countHashed(fulls)
		}

		byFull := bucketBy(members, fulls)
		for _, full := range sortedKeys(byFull) {
			same := byFull[full]
			if len(same) < 2 {
				continue
			}
			group := &models.DuplicateGroup{
				Signature: models.ContentSignature{Size: size, PartialHash: partial, FullHash: full},
				Members:   make([]models.FileEntry, len(same)),
			}
			for i, f := range same {
				group.Members[i] = f.Entry()
			}
			r.stats.Groups++
			r.stats.Duplicates += len(same) - 1
			r.stats.Reclaimable += group.Reclaimable()
			if !emit(group) {
				return errStopped
			}
		}
	}
	return nil
}

// hashAll hashes files in parallel and returns digests in input order.
// Files that fail are reported through fileErr and get an empty digest.
func (r *scanRun) hashAll(ctx context.Context, files []storage.FileInfo, op string, hash func(context.Context, string) (string, error), fileErr func(*FileError) bool) ([]string, error) {
	sums := make([]string, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.progress != nil {
				r.progress.Start(f.Path)
			}
			sum, err := hash(ctx, f.Path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = err
				return nil
			}
			sums[i] = sum
			if r.progress != nil {
				r.progress.Advance(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		r.stats.Errors++
		r.logger.Warn(ctx, "skipping unreadable file", logging.Fields{"path": files[i].Path, "op": op, "error": err.Error()})
		if !fileErr(&FileError{Path: files[i].Path, Op: op, Err: err}) {
			return nil, errStopped
		}
	}
	return sums, nil
}

// bucketBy groups files by key, skipping empty keys. Input order is kept
// inside each bucket.
func bucketBy(files []storage.FileInfo, keys []string) map[string][]storage.FileInfo {
	out := make(map[string][]storage.FileInfo)
	for i, f := range files {
		if keys[i] == "" {
			continue
		}
		out[keys[i]] = append(out[keys[i]], f)
	}
	return out
}

func sortedKeys(m map[string][]storage.FileInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countHashed(sums []string) int {
	n := 0
	for _, s := range sums {
		if s != "" {
			n++
		}
	}
	return n
}
