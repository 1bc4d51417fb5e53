package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Brownie44l1/plant-identifier/internal/client"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by Submit when a newer selection or submission,
// or Close, replaced it before it resolved. Its outcome is discarded.
var ErrSuperseded = errors.New("submission superseded")

const (
	SubmitLabel     = "Identify Plant"
	SubmitLabelBusy = "Processing..."
)

// Submitter sends one image to the prediction endpoint.
type Submitter interface {
	Predict(ctx context.Context, name string, r io.Reader) (*client.Result, error)
}

// Form is the state of one upload form: at most one selected image, its
// preview handle, and the outcome of the last submission.
//
// A submission runs without holding the lock. Each one is tagged with a
// generation; anything that supersedes it bumps the generation and cancels
// its context, so a late outcome never overwrites newer state.
type Form struct {
	mu        sync.Mutex
	previews  *Previews
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time

	file       *File
	previewURL string
	result     *client.Result
	errMsg     string
	rejection  string
	loading    bool

	generation uint64
	cancel     context.CancelFunc
	lifetime   context.Context
	stop       context.CancelFunc
	closed     bool
	lastUsed   time.Time
}

func NewForm(previews *Previews, submitter Submitter, logger *zap.Logger) *Form {
	if logger == nil {
		logger = zap.NewNop()
	}
	lifetime, stop := context.WithCancel(context.Background())
	f := &Form{
		previews:  previews,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		lifetime:  lifetime,
		stop:      stop,
	}
	f.lastUsed = f.now()
	return f
}

// Select applies a drop or picker selection. Exactly one acceptable image
// replaces the current file; anything else is rejected and only the
// rejection notice changes.
func (f *Form) Select(files []File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	f.lastUsed = f.now()

	if len(files) > 1 {
		f.rejection = RejectionNotice
		f.logger.Debug("selection rejected", zap.Int("files", len(files)))
		return ErrTooManyFiles
	}
	if len(files) == 0 {
		f.rejection = RejectionNotice
		return ErrRejected
	}

	accepted, err := Accept(files[0])
	if err != nil {
		f.rejection = RejectionNotice
		f.logger.Debug("selection rejected",
			zap.String("name", files[0].Name),
			zap.String("content_type", files[0].ContentType))
		return err
	}

	f.supersede()
	if f.previewURL != "" {
		f.previews.Release(f.previewURL)
	}

	f.file = &accepted
	f.previewURL = f.previews.Acquire(accepted)
	f.result = nil
	f.errMsg = ""
	f.rejection = ""
	f.loading = false

	f.logger.Debug("file selected",
		zap.String("name", accepted.Name),
		zap.String("content_type", accepted.ContentType),
		zap.Int("bytes", len(accepted.Data)))
	return nil
}

// CanSubmit reports whether a file is selected and nothing is in flight.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSubmit()
}

func (f *Form) canSubmit() bool {
	return !f.closed && f.file != nil && !f.loading
}

// Submit sends the selected file and records the outcome. The request is
// cancelled when ctx ends, when the form is closed, or when a new selection
// supersedes it. Prediction failures are recorded in the form state, not
// returned; the returned error only reports why nothing was recorded.
func (f *Form) Submit(ctx context.Context) error {
	run, err := f.Start(ctx)
	if err != nil {
		return err
	}
	return run()
}

// Start checks the submit gate and enters the loading state. The returned
// function performs the request and must be called exactly once.
func (f *Form) Start(ctx context.Context) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.closed:
		return nil, ErrClosed
	case f.file == nil:
		return nil, ErrNoFile
	case f.loading:
		return nil, ErrBusy
	}

	f.supersede()
	gen := f.generation
	reqCtx, cancel := context.WithCancel(f.lifetime)
	f.cancel = cancel
	f.loading = true
	f.errMsg = ""
	f.lastUsed = f.now()
	file := *f.file

	return func() error {
		stopAfter := context.AfterFunc(ctx, cancel)
		res, err := f.submitter.Predict(reqCtx, file.Name, bytes.NewReader(file.Data))
		stopAfter()
		cancel()
		return f.finish(gen, file.Name, res, err)
	}, nil
}

func (f *Form) finish(gen uint64, name string, res *client.Result, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation {
		f.logger.Debug("discarding superseded submission", zap.String("name", name))
		return ErrSuperseded
	}

	f.cancel = nil
	f.loading = false
	f.lastUsed = f.now()

	if err != nil {
		f.result = nil
		f.errMsg = client.Message(err)
		f.logger.Info("prediction failed", zap.String("name", name), zap.Error(err))
		return nil
	}
	if res == nil || !res.Success {
		f.result = nil
		f.errMsg = client.MessagePredictionFailed
		return nil
	}

	f.result = res
	f.errMsg = ""
	f.logger.Info("prediction received",
		zap.String("name", name),
		zap.String("prediction", res.Prediction),
		zap.Float64("confidence", res.Confidence))
	return nil
}

// supersede cancels any in-flight submission. Callers hold f.mu.
func (f *Form) supersede() {
	f.generation++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Close cancels in-flight work and releases the preview handle.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.supersede()
	f.stop()

	if f.previewURL != "" {
		f.previews.Release(f.previewURL)
	}
	f.file = nil
	f.previewURL = ""
	f.loading = false
}

func (f *Form) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Loading reports whether a submission is in flight.
func (f *Form) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// IdleSince reports when the form was last touched.
func (f *Form) IdleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

// ResultView is the display form of a successful prediction.
type ResultView struct {
	Plant      string
	Confidence string
}

func (r ResultView) PlantLine() string { return "Plant: " + r.Plant }

func (r ResultView) ConfidenceLine() string { return "Confidence: " + r.Confidence }

// View is everything the page needs to render the form.
type View struct {
	FileName       string
	PreviewURL     string
	HasPreview     bool
	Error          string
	Rejection      string
	Result         *ResultView
	Loading        bool
	SubmitDisabled bool
	SubmitLabel    string
}

func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		PreviewURL:     f.previewURL,
		HasPreview:     f.previewURL != "",
		Error:          f.errMsg,
		Rejection:      f.rejection,
		Loading:        f.loading,
		SubmitDisabled: !f.canSubmit(),
		SubmitLabel:    SubmitLabel,
	}
	if f.file != nil {
		v.FileName = f.file.Name
	}
	if f.loading {
		v.SubmitLabel = SubmitLabelBusy
	}
	if f.result != nil {
		v.Result = &ResultView{
			Plant:      f.result.Prediction,
			Confidence: FormatConfidence(f.result.Confidence),
		}
	}
	return v
}

// FormatConfidence renders a [0,1] confidence as a percentage with two decimals.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c*100)
}
