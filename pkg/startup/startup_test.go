package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	name       string
	failures   int
	startCalls int
	log        *[]string
}

func (w *fakeWorker) GetName() string { return w.name }

func (w *fakeWorker) Start(ctx context.Context) error {
	w.startCalls++
	if w.startCalls <= w.failures {
		return errors.New(w.name + " start failed")
	}
	*w.log = append(*w.log, "start:"+w.name)
	return nil
}

func (w *fakeWorker) Stop(ctx context.Context) error {
	*w.log = append(*w.log, "stop:"+w.name)
	return nil
}

func newTestStartup(maxAttempts int) *Startup {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewStartup(logger, maxAttempts)
}

func TestStartup_RetrySkipsStartedWorkers(t *testing.T) {
	var log []string
	a := &fakeWorker{name: "a", log: &log}
	b := &fakeWorker{name: "b", failures: 1, log: &log}

	boot := newTestStartup(3)
	boot.AddWorker(a)
	boot.AddWorker(b)

	require.NoError(t, boot.Start(context.Background()))
	assert.Equal(t, 1, a.startCalls, "a started once, not once per attempt")
	assert.Equal(t, 2, b.startCalls)
}

func TestStartup_FailsAfterMaxAttempts(t *testing.T) {
	var log []string
	b := &fakeWorker{name: "b", failures: 5, log: &log}

	boot := newTestStartup(2)
	boot.AddWorker(b)

	err := boot.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, b.startCalls)
}

func TestStartup_StopsInReverseOrderSkippingUnstarted(t *testing.T) {
	var log []string
	a := &fakeWorker{name: "a", log: &log}
	b := &fakeWorker{name: "b", log: &log}
	c := &fakeWorker{name: "c", failures: 5, log: &log}

	boot := newTestStartup(1)
	boot.AddWorker(a)
	boot.AddWorker(b)
	boot.AddWorker(c)

	require.Error(t, boot.Start(context.Background()))
	log = nil
	require.NoError(t, boot.Stop(context.Background()))
	assert.Equal(t, []string{"stop:b", "stop:a"}, log, "started workers stop in reverse order, failed one is skipped")
}
