package stability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"hopper/internal/logging"
	"hopper/internal/services"
)

var (
	// ErrTimedOut indicates the size never settled within Policy.Timeout.
	ErrTimedOut = errors.New("file did not stabilize before timeout")
	// ErrDeleted indicates the path disappeared while being observed.
	ErrDeleted = errors.New("file deleted during stabilization")
	// ErrAccess indicates the file cannot be read by this process.
	ErrAccess = errors.New("file not accessible")
)

// Policy controls polling cadence and the stability criterion.
type Policy struct {
	PollInterval           time.Duration
	RequiredStableReadings int
	Timeout                time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:           500 * time.Millisecond,
		RequiredStableReadings: 2,
		Timeout:                30 * time.Second,
	}
}

// Detector polls file sizes. The zero value is ready to use.
type Detector struct {
	Logger *slog.Logger

	// Stat and Open default to the os package and are replaced in tests.
	Stat func(string) (fs.FileInfo, error)
	Open func(string) (*os.File, error)
}

// AwaitStable blocks until path is stable under policy using a default Detector.
func AwaitStable(ctx context.Context, path string, policy Policy) error {
	var d Detector
	return d.AwaitStable(ctx, path, policy)
}

// AwaitStable blocks until path has reported the same size for
// policy.RequiredStableReadings consecutive polls. The first reading only
// establishes a baseline, so a single unchanged poll is never sufficient.
func (d *Detector) AwaitStable(ctx context.Context, path string, policy Policy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	statFn := d.Stat
	if statFn == nil {
		statFn = os.Stat
	}

	start := time.Now()
	deadline := start.Add(policy.Timeout)
	ticker := time.NewTicker(policy.PollInterval)
	defer ticker.Stop()

	var (
		lastSize int64 = -1
		stable   int
		lastErr  error
	)

	for {
		info, err := statFn(path)
		switch {
		case err == nil && info.IsDir():
			return fmt.Errorf("%w: %s is a directory", ErrAccess, path)
		case err == nil:
			lastErr = nil
			size := info.Size()
			if size == lastSize {
				stable++
			} else {
				stable = 0
				lastSize = size
			}
			logger.Debug("stability reading",
				logging.String(logging.FieldFile, path),
				logging.Int64("size_bytes", size),
				logging.Int("stable_readings", stable),
			)
			if stable >= policy.RequiredStableReadings {
				if openErr := d.verifyReadable(path); openErr != nil {
					if !isTransient(openErr) {
						return openErr
					}
					stable = 0
					lastErr = openErr
					break
				}
				logger.Debug("file stable",
					logging.String(logging.FieldFile, path),
					logging.Int64("size_bytes", size),
					logging.Duration("elapsed", time.Since(start)),
				)
				return nil
			}
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrDeleted, path)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %s: %v", ErrAccess, path, err)
		default:
			// Locked or busy: start counting again.
			stable = 0
			lastSize = -1
			lastErr = err
			logger.Debug("transient stat failure",
				logging.String(logging.FieldFile, path),
				logging.Error(err),
			)
		}

		if !time.Now().Before(deadline) {
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %s (last error: %v)", ErrTimedOut, policy.Timeout, path, lastErr)
			}
			return fmt.Errorf("%w after %s: %s", ErrTimedOut, policy.Timeout, path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Detector) verifyReadable(path string) error {
	openFn := d.Open
	if openFn == nil {
		openFn = os.Open
	}
	f, err := openFn(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrDeleted, path)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %s: %v", ErrAccess, path, err)
		default:
			return err
		}
	}
	return f.Close()
}

func isTransient(err error) bool {
	return !errors.Is(err, ErrDeleted) && !errors.Is(err, ErrAccess)
}

func validatePolicy(policy Policy) error {
	if policy.PollInterval <= 0 {
		return services.Wrap(services.ErrValidation, "stability", "policy", "poll interval must be positive", nil)
	}
	if policy.RequiredStableReadings < 1 {
		return services.Wrap(services.ErrValidation, "stability", "policy", "required stable readings must be at least 1", nil)
	}
	if policy.Timeout <= 0 {
		return services.Wrap(services.ErrValidation, "stability", "policy", "timeout must be positive", nil)
	}
	return nil
}
