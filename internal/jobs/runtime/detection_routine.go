package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"kestrel/internal/config"
	"kestrel/internal/database"
	"kestrel/internal/detector"
	"kestrel/internal/support"
)

const (
	detectionLockKey        = "kestrel:leader:anomaly_detection"
	detectionFallbackTicker = time.Hour
)

// StartDetectionRoutine runs the anomaly detector on its configured cadence.
// The redis leadership lock keeps a single instance analysing at a time;
// interval changes from the settings surface reschedule the ticker live.
func StartDetectionRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initialInterval := config.GetDetectionInterval()
	if initialInterval <= 0 {
		initialInterval = detectionFallbackTicker
	}
	intervalValue.Store(initialInterval)

	updateSignal := make(chan struct{}, 1)
	updates := config.DetectionIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = detectionFallbackTicker
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, detectionLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runDetectionLoop(leaderCtx, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Anomaly detection routine stopped", "error", err)
	}
}

func runDetectionLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	currentInterval := intervalValue.Load().(time.Duration)
	if currentInterval <= 0 {
		currentInterval = detectionFallbackTicker
	}

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	detectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			detectOnce(ctx)
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = detectionFallbackTicker
			}
			if newInterval == currentInterval {
				continue
			}
			drainTicker(ticker)
			currentInterval = newInterval
			ticker.Reset(currentInterval)
		}
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

func detectOnce(ctx context.Context) {
	start := time.Now()

	report, err := RunDetection(ctx, start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Anomaly detection canceled", "duration", time.Since(start))
		} else {
			log.Error("Anomaly detection failed", "error", err)
		}
		return
	}

	log.Info("Anomaly detection completed",
		"flagged", len(report.Flagged),
		"promoted", len(report.Promoted),
		"completed_heuristics", len(report.Completed),
		"failed_heuristics", len(report.Failures),
		"duration", time.Since(start),
	)

	deactivateStale(ctx)
}

// RunDetection builds a detector from the current configuration and analyses
// the window ending at windowEnd. Shared by the scheduled loop and the manual
// trigger endpoint.
func RunDetection(ctx context.Context, windowEnd time.Time) (*detector.Report, error) {
	cfg := config.GetConfig()

	d := detector.New(detector.Settings{
		Window:                 config.GetDetectionWindow(),
		HighFrequencyThreshold: int(cfg.Detector.HighFrequencyThreshold),
		SensitivePaths:         cfg.Detector.SensitivePaths,
		NotFoundThreshold:      int(cfg.Detector.NotFoundThreshold),
		AutoBlock:              cfg.Detector.AutoBlock,
		AutoBlockThreshold:     int(cfg.Detector.AutoBlockThreshold),
	})

	return d.Run(ctx, windowEnd)
}

func deactivateStale(ctx context.Context) {
	days := config.GetConfig().Detector.DeactivateAfterDays
	if days == 0 {
		return
	}

	maxAge := time.Duration(days) * 24 * time.Hour
	deactivated, err := database.DeactivateStaleSuspiciousIPs(ctx, time.Now(), maxAge)
	if err != nil {
		log.Warn("Stale suspicious sweep failed", "error", err)
		return
	}
	if deactivated > 0 {
		log.Info("Deactivated stale suspicious entries", "count", deactivated)
	}
}
