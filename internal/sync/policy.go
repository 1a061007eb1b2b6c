package sync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// action is the error policy's verdict for the latest batch failure.
type action int

const (
	// actionContinue skips the failed batch and carries on.
	actionContinue action = iota
	// actionRetry re-issues the same batch after the policy's pause.
	actionRetry
	// actionAbort stops the whole job.
	actionAbort
)

// Policy caps and pauses.
const (
	maxTotalErrors     = 5
	maxConflictRetries = 3
	maxTransferRetries = 3
	maxNetworkErrors   = 2
	pauseConflict      = 30 * time.Second
	pauseTransfer      = 30 * time.Second
	pauseNetwork       = 10 * time.Second
)

// errorClass buckets a provider failure for the decision table.
type errorClass int

const (
	classOther errorClass = iota
	classConflict
	classTransfer
	classDelete
	classNetwork
)

// errorPolicy is the per-job adaptive error state. It classifies each batch
// failure on the structured error kind the adapters attach and decides
// whether the engine continues, pauses and retries, or aborts.
type errorPolicy struct {
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error

	totalErrors         int
	consecutiveConflict int
	consecutiveTransfer int
	networkErrors       int
}

// decide consumes the latest error and returns the verdict. Retry verdicts
// have already slept the class pause when decide returns.
func (p *errorPolicy) decide(ctx context.Context, err error, path string) action {
	p.totalErrors++

	if p.totalErrors >= maxTotalErrors {
		p.logger.Error("aborting sync: too many errors",
			slog.Int("total", p.totalErrors), slog.String("path", path))
		return actionAbort
	}

	switch classify(err) {
	case classConflict:
		p.consecutiveConflict++
		p.consecutiveTransfer = 0

		if p.consecutiveConflict >= maxConflictRetries {
			p.logger.Error("aborting sync: repeated provider conflicts",
				slog.Int("consecutive", p.consecutiveConflict), slog.String("path", path))
			return actionAbort
		}

		return p.pauseThenRetry(ctx, pauseConflict, "provider conflict", path, err)

	case classTransfer:
		p.consecutiveTransfer++
		p.consecutiveConflict = 0

		if p.consecutiveTransfer >= maxTransferRetries {
			p.logger.Error("aborting sync: repeated transfer failures",
				slog.Int("consecutive", p.consecutiveTransfer), slog.String("path", path))
			return actionAbort
		}

		return p.pauseThenRetry(ctx, pauseTransfer, "transfer failure", path, err)

	case classNetwork:
		p.resetConsecutive()
		p.networkErrors++

		if p.networkErrors >= maxNetworkErrors {
			p.logger.Error("aborting sync: repeated network failures",
				slog.Int("total", p.networkErrors), slog.String("path", path))
			return actionAbort
		}

		return p.pauseThenRetry(ctx, pauseNetwork, "network failure", path, err)

	case classDelete:
		p.resetConsecutive()
		p.logger.Warn("skipping failed delete batch",
			slog.String("path", path), slog.String("error", err.Error()))

		return actionContinue

	default:
		p.resetConsecutive()
		p.logger.Warn("continuing after unclassified error",
			slog.String("path", path), slog.String("error", err.Error()))

		return actionContinue
	}
}

// recordSuccess resets the consecutive-failure counters after a batch that
// went through.
func (p *errorPolicy) recordSuccess() {
	p.resetConsecutive()
}

func (p *errorPolicy) resetConsecutive() {
	p.consecutiveConflict = 0
	p.consecutiveTransfer = 0
}

func (p *errorPolicy) pauseThenRetry(ctx context.Context, pause time.Duration, reason, path string, err error) action {
	p.logger.Warn("pausing before retry",
		slog.String("reason", reason),
		slog.Duration("pause", pause),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)

	if sleepErr := p.sleepFunc(ctx, pause); sleepErr != nil {
		return actionAbort
	}

	return actionRetry
}

// classify buckets an error by its structured kind, falling back to message
// substrings for errors that lost their type on the way through rendering.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, drive.ErrConflict):
		return classConflict
	case errors.Is(err, drive.ErrNetwork), errors.Is(err, drive.ErrRateLimit):
		return classNetwork
	case errors.Is(err, drive.ErrDeleteFailed):
		return classDelete
	case errors.Is(err, drive.ErrTransferFailed),
		errors.Is(err, drive.ErrQuotaExceeded),
		errors.Is(err, drive.ErrBatchLimit):
		return classTransfer
	}

	return classifyMessage(err.Error())
}

// classifyMessage is the substring fallback, matching the provider phrases
// observed in the wild.
func classifyMessage(msg string) errorClass {
	switch {
	case strings.Contains(msg, "error_code: 111"), strings.Contains(msg, "未完成的任务"):
		return classConflict
	case strings.Contains(msg, "批量删除失败"), strings.Contains(msg, "删除失败"),
		strings.Contains(msg, "error_code: 31066"):
		return classDelete
	case strings.Contains(msg, "批量转存失败"), strings.Contains(msg, "转存失败"):
		return classTransfer
	case strings.Contains(msg, "error_code: 6"), strings.Contains(msg, "网络"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "Expecting value"):
		return classNetwork
	}

	return classOther
}
