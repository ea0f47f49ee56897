// Package deliver moves scan files to and raw data from the lidar.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/w1xm/lidar_scan/halo"
)

// RemoteFile describes a file on the lidar.
type RemoteFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Transport is a session to the lidar's filesystem. Put must not leave a
// partially written file at remotePath.
type Transport interface {
	Put(ctx context.Context, content []byte, remotePath string) error
	List(ctx context.Context, dir string) ([]RemoteFile, error)
	Get(ctx context.Context, remotePath string) ([]byte, error)
}

// Stage identifies the step of a delivery that failed.
type Stage string

const (
	StagePlan     Stage = "plan"
	StageSignal   Stage = "signal"
	StageRetrieve Stage = "retrieve"
)

// DeliveryError wraps a transport failure. A failure at StagePlan
// guarantees that no signal file was written.
type DeliveryError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Path, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ErrModeMismatch is returned when a command is delivered with the wrong
// method for its mode.
var ErrModeMismatch = errors.New("command mode does not match delivery")

// Adapter serializes deliveries and retrievals to one lidar. At most one
// delivery and one retrieval are in flight at any time.
type Adapter struct {
	transport Transport
	// Timeout bounds each transport call. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration

	deliveries *semaphore.Weighted
	retrievals *semaphore.Weighted
}

func NewAdapter(t Transport, timeout time.Duration) *Adapter {
	return &Adapter{
		transport:  t,
		Timeout:    timeout,
		deliveries: semaphore.NewWeighted(1),
		retrievals: semaphore.NewWeighted(1),
	}
}

func (a *Adapter) put(ctx context.Context, stage Stage, content []byte, remotePath string) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	if err := a.transport.Put(ctx, content, remotePath); err != nil {
		return &DeliveryError{Stage: stage, Path: remotePath, Err: err}
	}
	log.Printf("wrote %d bytes to %q", len(content), remotePath)
	return nil
}

func (a *Adapter) acquire(ctx context.Context, sem *semaphore.Weighted, stage Stage, p string) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return &DeliveryError{Stage: stage, Path: p, Err: err}
	}
	return nil
}

// DeliverStatic writes a static scan file.
func (a *Adapter) DeliverStatic(ctx context.Context, c halo.Command, planPath string) error {
	if c.Mode != halo.Static {
		return fmt.Errorf("delivering %v file as static: %w", c.Mode, ErrModeMismatch)
	}
	if err := a.acquire(ctx, a.deliveries, StagePlan, planPath); err != nil {
		return err
	}
	defer a.deliveries.Release(1)
	return a.put(ctx, StagePlan, c.Bytes(), planPath)
}

// DeliverDynamic writes a dynamic scan file and then arms it. The signal
// file is only written once the plan file has been confirmed, so a failed
// plan write leaves the scanner on its previous plan.
func (a *Adapter) DeliverDynamic(ctx context.Context, c halo.Command, planPath, signalPath string) error {
	if c.Mode != halo.Dynamic {
		return fmt.Errorf("delivering %v file as dynamic: %w", c.Mode, ErrModeMismatch)
	}
	if err := a.acquire(ctx, a.deliveries, StagePlan, planPath); err != nil {
		return err
	}
	defer a.deliveries.Release(1)
	if err := a.put(ctx, StagePlan, c.Bytes(), planPath); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Stage: StageSignal, Path: signalPath, Err: err}
	}
	return a.put(ctx, StageSignal, halo.ArmSignal(true), signalPath)
}

// Disarm reverts the scanner to its static scan.
func (a *Adapter) Disarm(ctx context.Context, signalPath string) error {
	if err := a.acquire(ctx, a.deliveries, StageSignal, signalPath); err != nil {
		return err
	}
	defer a.deliveries.Release(1)
	return a.put(ctx, StageSignal, halo.ArmSignal(false), signalPath)
}

// File is a retrieved raw data file.
type File struct {
	RemoteFile
	Content []byte
}

// Retrieve downloads the files in dir whose modification time is in
// [from, to) and whose base name matches pattern (path.Match syntax; empty
// matches everything). Files are returned oldest first.
func (a *Adapter) Retrieve(ctx context.Context, dir, pattern string, from, to time.Time) ([]File, error) {
	if err := a.acquire(ctx, a.retrievals, StageRetrieve, dir); err != nil {
		return nil, err
	}
	defer a.retrievals.Release(1)
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	list, err := a.transport.List(ctx, dir)
	if err != nil {
		return nil, &DeliveryError{Stage: StageRetrieve, Path: dir, Err: err}
	}
	var selected []RemoteFile
	for _, f := range list {
		if f.ModTime.Before(from) || !f.ModTime.Before(to) {
			continue
		}
		if pattern != "" {
			ok, err := path.Match(pattern, path.Base(f.Path))
			if err != nil {
				return nil, fmt.Errorf("matching %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		selected = append(selected, f)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].ModTime.Before(selected[j].ModTime) })
	files := make([]File, 0, len(selected))
	for _, f := range selected {
		content, err := a.transport.Get(ctx, f.Path)
		if err != nil {
			return nil, &DeliveryError{Stage: StageRetrieve, Path: f.Path, Err: err}
		}
		files = append(files, File{RemoteFile: f, Content: content})
	}
	return files, nil
}
