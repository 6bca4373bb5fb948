package generate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veoctl/internal/storage"
	"veoctl/internal/veo"
)

// pollStep scripts one PollOperation response.
type pollStep struct {
	op  veo.Operation
	err error
}

// fakeService is a scripted veo.Service for exercising the workflow without
// the real SDK.
type fakeService struct {
	submitOp  veo.Operation
	submitErr error

	steps     []pollStep
	pollCalls int

	artifact      []byte
	downloadErr   error
	downloadCalls int
}

func (f *fakeService) Submit(_ context.Context, _ veo.SubmitRequest) (veo.Operation, error) {
	return f.submitOp, f.submitErr
}

func (f *fakeService) PollOperation(_ context.Context, op veo.Operation) (veo.Operation, error) {
	if f.pollCalls >= len(f.steps) {
		// Out of script: report the same unfinished state forever.
		f.pollCalls++
		return op, nil
	}
	step := f.steps[f.pollCalls]
	f.pollCalls++
	if step.err != nil {
		return veo.Operation{}, step.err
	}
	return step.op, nil
}

func (f *fakeService) UploadVideo(_ context.Context, _ string) (veo.FileHandle, error) {
	return veo.FileHandle{}, nil
}

func (f *fakeService) GetFile(_ context.Context, name string) (veo.FileHandle, error) {
	return veo.FileHandle{Name: name}, nil
}

func (f *fakeService) Download(_ context.Context, _ veo.ArtifactRef) ([]byte, error) {
	f.downloadCalls++
	return f.artifact, f.downloadErr
}

var _ veo.Service = (*fakeService)(nil)

// fakePublisher records Publish calls.
type fakePublisher struct {
	calls int
	key   string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, key string, _ io.Reader) (string, error) {
	p.calls++
	p.key = key
	if p.err != nil {
		return "", p.err
	}
	return "https://bucket.s3.region.amazonaws.com/" + key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService wires a Service with a fake clock: sleeping advances the
// clock instead of blocking, and the sleep count is returned by reference.
func newTestService(f *fakeService, opts ...Option) (*Service, *time.Duration, *int) {
	svc := NewService(f, "veo-test", discardLogger(), opts...)

	elapsed := new(time.Duration)
	sleeps := new(int)
	base := time.Unix(1700000000, 0)

	svc.now = func() time.Time { return base.Add(*elapsed) }
	svc.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps++
		*elapsed += d
		return nil
	}
	return svc, elapsed, sleeps
}

func validRequest(outputFile string) Request {
	return Request{
		Prompt:      "a red fox",
		OutputFile:  outputFile,
		Duration:    8,
		AspectRatio: "16:9",
	}
}

func doneOp(artifacts ...veo.ArtifactRef) veo.Operation {
	return veo.Operation{Name: "operations/op-1", Done: true, Artifacts: artifacts}
}

func runningOp() veo.Operation {
	return veo.Operation{Name: "operations/op-1"}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{30 * time.Second, 10 * time.Second},
		{59 * time.Second, 10 * time.Second},
		{60 * time.Second, 15 * time.Second},
		{90 * time.Second, 15 * time.Second},
		{119 * time.Second, 15 * time.Second},
		{120 * time.Second, 30 * time.Second},
		{300 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, pollInterval(tt.elapsed))
		})
	}
}

func TestService_Run_PollsUntilSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.mp4")
	fake := &fakeService{
		submitOp: runningOp(),
		steps: []pollStep{
			{op: runningOp()},
			{op: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"})},
		},
		artifact: []byte("mp4 bytes"),
	}
	svc, _, sleeps := newTestService(fake)

	entry, err := svc.Run(context.Background(), validRequest(out))
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, 2, fake.pollCalls, "expected exactly 2 re-queries")
	assert.Equal(t, 2, *sleeps, "expected exactly 2 sleeps")
	assert.Equal(t, out, entry.OutputFile)
	assert.Equal(t, "a red fox", entry.Prompt)
	assert.Equal(t, 8, entry.Duration)
	assert.Equal(t, "16:9", entry.AspectRatio)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4 bytes"), data)

	_, statErr := os.Stat(out + storage.PartSuffix)
	assert.True(t, os.IsNotExist(statErr), "sidecar must not survive a successful materialization")
}

func TestService_Run_Timeout(t *testing.T) {
	// The fake never reports done, the fake clock advances on every sleep.
	fake := &fakeService{submitOp: runningOp()}
	svc, elapsed, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), validRequest("unused.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Greater(t, *elapsed, 900*time.Second)
	assert.Positive(t, fake.pollCalls)
}

func TestService_Run_ExactTimeoutBoundaryStillPolls(t *testing.T) {
	// At elapsed == ceiling the loop must poll once more; the timeout fires
	// only when elapsed exceeds it.
	fake := &fakeService{
		submitOp: runningOp(),
		steps:    []pollStep{{op: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"})}},
		artifact: []byte("x"),
	}
	svc, elapsed, _ := newTestService(fake)
	svc.pollTimeout = 900 * time.Second
	*elapsed = 900 * time.Second

	out := filepath.Join(t.TempDir(), "edge.mp4")
	_, err := svc.Run(context.Background(), validRequest(out))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.pollCalls)
}

func TestService_Run_TransientPollErrorIsRetried(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.mp4")
	fake := &fakeService{
		submitOp: runningOp(),
		steps: []pollStep{
			{err: errors.New("connection reset")},
			{op: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"})},
		},
		artifact: []byte("mp4 bytes"),
	}
	svc, _, sleeps := newTestService(fake)

	entry, err := svc.Run(context.Background(), validRequest(out))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, fake.pollCalls)
	assert.Equal(t, 2, *sleeps)
}

func TestService_Run_SubmitError(t *testing.T) {
	fake := &fakeService{submitErr: errors.New("invalid argument")}
	svc, _, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), validRequest("unused.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
	assert.Zero(t, fake.pollCalls, "no poll loop after a rejected submission")
}

func TestService_Run_OperationFailure(t *testing.T) {
	op := doneOp()
	op.Failure = "quota exceeded"
	fake := &fakeService{submitOp: op}
	svc, _, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), validRequest("unused.mp4"))
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, fake.downloadCalls)
}

func TestService_Run_DoneWithoutArtifacts(t *testing.T) {
	fake := &fakeService{submitOp: doneOp()}
	svc, _, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), validRequest("unused.mp4"))
	assert.ErrorIs(t, err, ErrOperationFailed)
}

func TestService_Run_DownloadFailureLeavesNoFiles(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.mp4")
	fake := &fakeService{
		submitOp:    doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"}),
		downloadErr: errors.New("download failed"),
	}
	svc, _, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), validRequest(out))
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(out + storage.PartSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestService_Run_WriteFailureLeavesNoFiles(t *testing.T) {
	// The output directory does not exist, so the sidecar write fails.
	out := filepath.Join(t.TempDir(), "missing", "fox.mp4")
	fake := &fakeService{
		submitOp: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"}),
		artifact: []byte("mp4 bytes"),
	}
	svc, _, _ := newTestService(fake)

	entry, err := svc.Run(context.Background(), validRequest(out))
	require.Error(t, err)
	assert.Nil(t, entry)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(out + storage.PartSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestService_Run_ValidationFailureSkipsSubmission(t *testing.T) {
	fake := &fakeService{}
	svc, _, _ := newTestService(fake)

	_, err := svc.Run(context.Background(), Request{Duration: 8, AspectRatio: "16:9"})
	assert.ErrorIs(t, err, ErrPromptRequired)
}

func TestService_Run_PublishesArtifact(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.mp4")
	pub := &fakePublisher{}
	fake := &fakeService{
		submitOp: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"}),
		artifact: []byte("mp4 bytes"),
	}
	svc, _, _ := newTestService(fake, WithPublisher(pub))

	entry, err := svc.Run(context.Background(), validRequest(out))
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "fox.mp4", pub.key)
}

func TestService_Run_PublishFailureIsNonFatal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.mp4")
	pub := &fakePublisher{err: errors.New("access denied")}
	fake := &fakeService{
		submitOp: doneOp(veo.ArtifactRef{Kind: veo.RefNamed, Name: "files/vid-1"}),
		artifact: []byte("mp4 bytes"),
	}
	svc, _, _ := newTestService(fake, WithPublisher(pub))

	entry, err := svc.Run(context.Background(), validRequest(out))
	require.NoError(t, err)
	require.NotNil(t, entry)

	// The local artifact stays in place.
	_, statErr := os.Stat(out)
	assert.NoError(t, statErr)
}

func TestService_Run_CancelledDuringPoll(t *testing.T) {
	fake := &fakeService{submitOp: runningOp()}
	svc, _, _ := newTestService(fake)

	ctx, cancel := context.WithCancel(context.Background())
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := svc.Run(ctx, validRequest("unused.mp4"))
	assert.ErrorIs(t, err, context.Canceled)
}
