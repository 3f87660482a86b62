package sftp

import (
	"context"
	"io"
	"time"

	"github.com/machinebox/progress"
)

type ProgressCallback func(remaining time.Duration, percent float64, estimated time.Time, complete bool)

// Progress reports the state of a transfer of filesize bytes every interval.
// The callback runs on its own goroutine; Finish waits for its last call.
type Progress struct {
	filesize int64
	interval time.Duration
	callback ProgressCallback

	cancel context.CancelFunc
	done   chan struct{}
}

func NewProgress(filesize int64, interval time.Duration, callback ProgressCallback) *Progress {
	pm := &Progress{
		filesize: filesize,
		interval: interval,
		callback: callback,
	}
	return pm
}

func (pm *Progress) watch(counter progress.Counter) {
	pm.Finish()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	pm.cancel, pm.done = cancel, done
	go func() {
		defer close(done)
		progressChan := progress.NewTicker(ctx, counter, pm.filesize, pm.interval)
		for p := range progressChan {
			pm.callback(p.Remaining(), p.Percent(), p.Estimated(), p.Complete())
		}
	}()
}

func (pm *Progress) StartReader(reader io.Reader) io.Reader {
	r2 := progress.NewReader(reader)
	pm.watch(r2)
	return r2
}

func (pm *Progress) StartWriter(writer io.Writer) io.Writer {
	w2 := progress.NewWriter(writer)
	pm.watch(w2)
	return w2
}

func (pm *Progress) Finish() {
	if pm.cancel == nil {
		return
	}
	pm.cancel()
	<-pm.done
	pm.cancel, pm.done = nil, nil
}
