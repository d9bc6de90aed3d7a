package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/cloudflare/circl/kem"
	kemschemes "github.com/cloudflare/circl/kem/schemes"
	"github.com/cloudflare/circl/sign"
	signschemes "github.com/cloudflare/circl/sign/schemes"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/pqbench/probe"
	"github.com/weiihann/pqbench/stats"
	"github.com/weiihann/pqbench/workload"
)

// stepClock advances by step on every reading.
type stepClock struct {
	now  time.Time
	step time.Duration
	log  *[]string
}

func (c *stepClock) Now() time.Time {
	if c.log != nil {
		*c.log = append(*c.log, "now")
	}
	c.now = c.now.Add(c.step)

	return c.now
}

type fakeCounter struct {
	cycles  uint64
	log     *[]string
	readErr error
	closed  int
}

func (c *fakeCounter) record(s string) {
	if c.log != nil {
		*c.log = append(*c.log, s)
	}
}

func (c *fakeCounter) Reset() error { c.record("reset"); return nil }
func (c *fakeCounter) Start() error { c.record("start"); return nil }
func (c *fakeCounter) Stop() error  { c.record("stop"); return nil }

func (c *fakeCounter) Read() (uint64, error) {
	c.record("read")
	c.cycles += 100

	return c.cycles, c.readErr
}

func (c *fakeCounter) Close() error {
	c.closed++

	return nil
}

type fakeOutput struct {
	committed *Result
	discarded int
	commitErr error
}

func (o *fakeOutput) Commit(res *Result) error {
	if o.commitErr != nil {
		return o.commitErr
	}
	o.committed = res

	return nil
}

func (o *fakeOutput) Discard() error {
	o.discarded++

	return nil
}

func newTestRunner(counter probe.Counter) *Runner {
	return &Runner{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  &stepClock{now: time.Unix(0, 0), step: 1500 * time.Nanosecond},
		OpenCounter: func() (probe.Counter, error) {
			if counter == nil {
				return nil, probe.ErrCounterUnavailable
			}

			return counter, nil
		},
		Host: func() probe.HostInfo { return probe.HostInfo{CPU: "test"} },
	}
}

func TestInvokeOrdering(t *testing.T) {
	var log []string

	inv := &Invoker{
		Clock:   &stepClock{now: time.Unix(0, 0), step: 2 * time.Microsecond, log: &log},
		Counter: &fakeCounter{log: &log},
	}

	s, err := inv.Invoke(func() { log = append(log, "op") })
	require.NoError(t, err)

	require.Equal(t,
		[]string{"reset", "start", "now", "op", "now", "stop", "read"},
		log,
	)
	require.True(t, s.HasCycles)
	require.Equal(t, uint64(100), s.Cycles)
	require.InDelta(t, 2.0, s.Micros, 1e-9)
}

func TestInvokeWithoutCounter(t *testing.T) {
	var log []string

	inv := &Invoker{
		Clock: &stepClock{now: time.Unix(0, 0), step: 1250 * time.Nanosecond, log: &log},
	}

	calls := 0
	s, err := inv.Invoke(func() { calls++ })
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, []string{"now", "now"}, log)
	require.False(t, s.HasCycles)
	require.Zero(t, s.Cycles)
	require.InDelta(t, 1.25, s.Micros, 1e-9)
}

func TestInvokeCounterError(t *testing.T) {
	inv := &Invoker{
		Clock:   probe.SystemClock{},
		Counter: &fakeCounter{readErr: errors.New("bad read")},
	}

	calls := 0
	_, err := inv.Invoke(func() { calls++ })
	require.ErrorContains(t, err, "bad read")
	require.Equal(t, 1, calls)
}

func TestRunWithoutCounter(t *testing.T) {
	w := workload.NewKEM(kemschemes.ByName("Kyber512"))
	out := &fakeOutput{}

	res, err := newTestRunner(nil).Run(
		context.Background(), w, RunConfig{Repeat: 5}, out,
	)
	require.NoError(t, err)
	require.Same(t, res, out.committed)
	require.Zero(t, out.discarded)

	require.False(t, res.HasCycles)
	require.Equal(t, 5, res.Repeat)
	require.NotEmpty(t, res.RunID)
	require.Len(t, res.Series, 3)

	for _, s := range res.Series {
		require.Len(t, s.Micros, 5)
		require.Nil(t, s.Cycles)
	}

	require.Len(t, res.Summary, 3)
	for i, row := range res.Summary {
		require.Equal(t, string(w.Phases()[i]), row.Operation)
		require.Equal(t, stats.MetricMicros, row.Metric)
		require.InDelta(t, 1.5, row.Summary.Average, 1e-9)
	}
}

func TestRunWithCounter(t *testing.T) {
	counter := &fakeCounter{}
	w := workload.NewKEM(kemschemes.ByName("Kyber512"))
	out := &fakeOutput{}

	res, err := newTestRunner(counter).Run(
		context.Background(), w, RunConfig{Repeat: 3}, out,
	)
	require.NoError(t, err)
	require.True(t, res.HasCycles)
	require.Equal(t, 1, counter.closed)

	for _, s := range res.Series {
		require.Len(t, s.Micros, 3)
		require.Len(t, s.Cycles, 3)
	}

	require.Len(t, res.Summary, 6)

	var metrics []string
	for _, row := range res.Summary {
		metrics = append(metrics, row.Operation+"/"+row.Metric)
	}
	require.Equal(t, []string{
		"keygen/us", "keygen/cycles",
		"encaps/us", "encaps/cycles",
		"decaps/us", "decaps/cycles",
	}, metrics)

	// Reads return 100, 200, ... in call order: keygen takes every third.
	require.Equal(t, []uint64{100, 400, 700}, res.Series[0].Cycles)
}

// corruptingKEM flips a bit of the decapsulated secret on one call.
type corruptingKEM struct {
	kem.Scheme
	corruptAt int
	keygens   int
	decaps    int
}

func (c *corruptingKEM) GenerateKeyPair() (kem.PublicKey, kem.PrivateKey, error) {
	c.keygens++

	return c.Scheme.GenerateKeyPair()
}

func (c *corruptingKEM) Decapsulate(sk kem.PrivateKey, ct []byte) ([]byte, error) {
	c.decaps++

	ss, err := c.Scheme.Decapsulate(sk, ct)
	if err != nil || c.decaps != c.corruptAt {
		return ss, err
	}

	out := slices.Clone(ss)
	out[len(out)-1] ^= 1

	return out, nil
}

func TestRunAbortsOnSecretMismatch(t *testing.T) {
	scheme := &corruptingKEM{Scheme: kemschemes.ByName("Kyber512"), corruptAt: 2}
	counter := &fakeCounter{}
	out := &fakeOutput{}

	res, err := newTestRunner(counter).Run(
		context.Background(), workload.NewKEM(scheme), RunConfig{Repeat: 10}, out,
	)
	require.ErrorIs(t, err, workload.ErrSecretMismatch)
	require.ErrorIs(t, err, workload.ErrCorrectness)
	require.ErrorContains(t, err, "repetition 2/10")
	require.Nil(t, res)

	require.Equal(t, 2, scheme.keygens, "run continued past the violation")
	require.Equal(t, 2, scheme.decaps)
	require.Nil(t, out.committed)
	require.Equal(t, 1, out.discarded)
	require.Equal(t, 1, counter.closed)
}

type rejectingScheme struct {
	sign.Scheme
}

func (rejectingScheme) Verify(sign.PublicKey, []byte, []byte, *sign.SignatureOpts) bool {
	return false
}

func TestRunAbortsOnVerifyFailure(t *testing.T) {
	w, err := workload.NewSignature(
		rejectingScheme{signschemes.ByName("Ed25519")}, 32,
	)
	require.NoError(t, err)

	out := &fakeOutput{}
	_, err = newTestRunner(nil).Run(
		context.Background(), w, RunConfig{Repeat: 4}, out,
	)
	require.ErrorIs(t, err, workload.ErrVerifyFailed)
	require.ErrorContains(t, err, "repetition 1/4")
	require.Nil(t, out.committed)
	require.Equal(t, 1, out.discarded)
}

// panickingScheme panics on its second Sign call, as circl does for a
// key of the wrong type.
type panickingScheme struct {
	sign.Scheme
	signs int
}

func (p *panickingScheme) Sign(sk sign.PrivateKey, msg []byte, opts *sign.SignatureOpts) []byte {
	p.signs++
	if p.signs == 2 {
		panic("sign: wrong key type")
	}

	return p.Scheme.Sign(sk, msg, opts)
}

func TestRunWorkloadPanic(t *testing.T) {
	w, err := workload.NewSignature(
		&panickingScheme{Scheme: signschemes.ByName("Ed25519")}, 32,
	)
	require.NoError(t, err)

	counter := &fakeCounter{}
	out := &fakeOutput{}

	res, err := newTestRunner(counter).Run(
		context.Background(), w, RunConfig{Repeat: 5}, out,
	)
	require.ErrorIs(t, err, workload.ErrCorrectness)
	require.ErrorContains(t, err, "repetition 2/5 sign")
	require.ErrorContains(t, err, "wrong key type")
	require.Nil(t, res)

	require.Nil(t, out.committed)
	require.Equal(t, 1, out.discarded)
	require.Equal(t, 1, counter.closed)
}

func TestRunSignature(t *testing.T) {
	w, err := workload.OpenSignature("Ed25519", 32)
	require.NoError(t, err)

	out := &fakeOutput{}
	res, err := newTestRunner(&fakeCounter{}).Run(
		context.Background(), w, RunConfig{Repeat: 2}, out,
	)
	require.NoError(t, err)
	require.Equal(t, workload.Signature, res.Family)

	var ops []string
	for _, s := range res.Series {
		ops = append(ops, string(s.Phase))
	}
	require.Equal(t, []string{"keygen", "sign", "verify"}, ops)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counter := &fakeCounter{}
	out := &fakeOutput{}

	_, err := newTestRunner(counter).Run(
		ctx, workload.NewKEM(kemschemes.ByName("Kyber512")),
		RunConfig{Repeat: 3}, out,
	)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, out.discarded)
	require.Equal(t, 1, counter.closed)
}

func TestRunCounterFailureIsFatal(t *testing.T) {
	counter := &fakeCounter{readErr: errors.New("counter vanished")}
	out := &fakeOutput{}

	_, err := newTestRunner(counter).Run(
		context.Background(), workload.NewKEM(kemschemes.ByName("Kyber512")),
		RunConfig{Repeat: 3}, out,
	)
	require.ErrorContains(t, err, "counter vanished")
	require.ErrorContains(t, err, "repetition 1/3 keygen")
	require.Equal(t, 1, out.discarded)
}

func TestRunCommitFailure(t *testing.T) {
	out := &fakeOutput{commitErr: errors.New("disk full")}

	_, err := newTestRunner(nil).Run(
		context.Background(), workload.NewKEM(kemschemes.ByName("Kyber512")),
		RunConfig{Repeat: 1}, out,
	)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, out.discarded)
}

func TestRunInvalidRepeat(t *testing.T) {
	for _, repeat := range []int{0, -3} {
		out := &fakeOutput{}

		_, err := newTestRunner(nil).Run(
			context.Background(), workload.NewKEM(kemschemes.ByName("Kyber512")),
			RunConfig{Repeat: repeat}, out,
		)
		require.Error(t, err)
		require.Equal(t, 1, out.discarded)
	}
}

func TestSummarizeRows(t *testing.T) {
	rows, err := summarize([]Series{
		{Phase: workload.PhaseKeygen, Micros: []float64{1, 2, 3}},
		{Phase: workload.PhaseSign, Micros: []float64{4}, Cycles: []uint64{10}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "keygen", rows[0].Operation)
	require.InDelta(t, 2.0, rows[0].Summary.Average, 1e-9)
	require.Equal(t, stats.MetricCycles, rows[2].Metric)
	require.InDelta(t, 10.0, rows[2].Summary.Max, 1e-9)

	_, err = summarize([]Series{{Phase: workload.PhaseKeygen}})
	require.ErrorIs(t, err, stats.ErrEmpty)
}
