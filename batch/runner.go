// Package batch validates many records with bounded parallelism, isolating
// per-record failures and streaming progress.
//
// Records are split into batches, and batches into groups. All records of a
// group are validated concurrently; groups run one after another with a
// short pause in between so the remote MX hosts are not hammered.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/studiocloud/mailverify/internal/metrics"
	"github.com/studiocloud/mailverify/types"
)

// ErrEmptyInput is reported when Run is given no records.
var ErrEmptyInput = errors.New("input is empty")

const (
	DefaultBatchSize  = 25
	DefaultGroupSize  = 4
	DefaultGroupPause = 100 * time.Millisecond
)

// Validator produces a verdict for one address.
type Validator interface {
	Validate(ctx context.Context, email string) (types.CheckResult, error)
}

// Options configures a Runner. Zero values select the defaults.
type Options struct {
	BatchSize  int
	GroupSize  int
	GroupPause time.Duration
	Logger     zerolog.Logger
}

// DefaultOptions returns the default pacing.
func DefaultOptions() Options {
	return Options{
		BatchSize:  DefaultBatchSize,
		GroupSize:  DefaultGroupSize,
		GroupPause: DefaultGroupPause,
		Logger:     zerolog.Nop(),
	}
}

// Runner drives a Validator over a record set. A Runner holds no per-run
// state and may run several sets at once.
type Runner struct {
	v    Validator
	opts Options
}

func NewRunner(v Validator, opts Options) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = DefaultGroupSize
	}
	if opts.GroupPause < 0 {
		opts.GroupPause = 0
	}
	return &Runner{v: v, opts: opts}
}

// Options returns the effective options.
func (r *Runner) Options() Options { return r.opts }

// Run validates rows and streams events on the returned channel. The last
// event is always EventComplete or EventError, after which the channel is
// closed. Cancelling ctx stops the run between groups, cancels the
// validations in flight and ends the stream with an EventError carrying the
// context error. The channel has room for every event of the run, so the
// runner never blocks on a consumer that has stopped reading.
func (r *Runner) Run(ctx context.Context, rows []map[string]string, headers []string) <-chan Event {
	events := make(chan Event, r.groups(len(rows))+1)
	go func() {
		defer close(events)
		r.run(ctx, rows, headers, events)
	}()
	return events
}

// Collect runs rows to completion and returns the ordered records.
func (r *Runner) Collect(ctx context.Context, rows []map[string]string, headers []string) ([]Record, error) {
	var last Event
	for ev := range r.Run(ctx, rows, headers) {
		last = ev
	}
	switch last.Type {
	case EventComplete:
		return last.Records, nil
	case EventError:
		return nil, last.Err
	default:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("batch run ended without a terminal event")
	}
}

func (r *Runner) run(ctx context.Context, rows []map[string]string, headers []string, events chan<- Event) {
	log := r.opts.Logger.With().Str("run_id", uuid.NewString()).Logger()
	total := len(rows)

	if total == 0 {
		metrics.BatchRunsTotal.WithLabelValues("error").Inc()
		events <- Event{Type: EventError, Headers: headers, Err: ErrEmptyInput}
		return
	}

	groupLen := r.opts.BatchSize * r.opts.GroupSize
	groups := r.groups(total)
	log.Info().Int("records", total).Int("groups", groups).Msg("batch run started")

	records := make([]Record, 0, total)
	for g := 0; g < groups; g++ {
		if err := ctx.Err(); err != nil {
			r.abort(log, events, headers, err)
			return
		}

		lo := g * groupLen
		hi := min(lo+groupLen, total)
		results := r.validateGroup(ctx, rows[lo:hi])
		for i, res := range results {
			records = append(records, Record{Index: lo + i, Fields: rows[lo+i], Result: res})
		}
		metrics.BatchRecordsTotal.Add(float64(len(results)))

		if err := ctx.Err(); err != nil {
			r.abort(log, events, headers, err)
			return
		}
		log.Info().Int("group", g+1).Int("processed", hi).Int("total", total).Msg("batch group done")
		events <- Event{
			Type:     EventProgress,
			Progress: Progress{Processed: hi, Total: total, Headers: headers},
		}

		if g < groups-1 && r.opts.GroupPause > 0 {
			t := time.NewTimer(r.opts.GroupPause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				r.abort(log, events, headers, ctx.Err())
				return
			}
		}
	}

	metrics.BatchRunsTotal.WithLabelValues("complete").Inc()
	log.Info().Int("records", total).Msg("batch run complete")
	events <- Event{Type: EventComplete, Records: records, Headers: headers}
}

// groups returns the number of groups a run over total records has.
func (r *Runner) groups(total int) int {
	groupLen := r.opts.BatchSize * r.opts.GroupSize
	return (total + groupLen - 1) / groupLen
}

// validateGroup validates rows concurrently and returns their verdicts in
// input order. Each row writes only its own slot.
func (r *Runner) validateGroup(ctx context.Context, rows []map[string]string) []types.CheckResult {
	results := make([]types.CheckResult, len(rows))
	var eg errgroup.Group
	for start := 0; start < len(rows); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(rows))
		for i := start; i < end; i++ {
			i := i
			eg.Go(func() error {
				metrics.BatchInFlight.Inc()
				defer metrics.BatchInFlight.Dec()
				results[i] = r.validateRow(ctx, rows[i])
				return nil
			})
		}
	}
	_ = eg.Wait()
	return results
}

func (r *Runner) validateRow(ctx context.Context, row map[string]string) (res types.CheckResult) {
	defer func() {
		if p := recover(); p != nil {
			metrics.BatchRecordPanicsTotal.Inc()
			r.opts.Logger.Warn().Interface("panic", p).Msg("recovered panic while validating record")
			res = types.Invalid(fmt.Sprint(p))
		}
	}()

	email := EmailField(row)
	if email == "" {
		return types.Invalid("No email address found")
	}
	res, err := r.v.Validate(ctx, email)
	if err != nil {
		reason := err.Error()
		if reason == "" {
			reason = "Validation failed"
		}
		return types.Invalid(reason)
	}
	if res.Reason == "" {
		res.Reason = "Unknown validation status"
	}
	return res
}

// abort emits the terminal error for a cancelled run.
func (r *Runner) abort(log zerolog.Logger, events chan<- Event, headers []string, err error) {
	metrics.BatchRunsTotal.WithLabelValues("cancelled").Inc()
	log.Info().Err(err).Msg("batch run cancelled")
	events <- Event{Type: EventError, Headers: headers, Err: err}
}
