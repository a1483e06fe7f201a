package service

import (
	"github.com/okian/concord/internal/adapters/cache"
	"github.com/okian/concord/internal/adapters/repository"
	"github.com/okian/concord/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the evaluation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the evaluation store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithReportCache sets the report cache. The service closes it on Stop.
func WithReportCache(c cache.ReportCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCalibrationThreshold sets the ICC below which a panel needs calibration.
func WithCalibrationThreshold(v float64) Option {
	return func(s *Service) {
		if v >= 0 && v <= 1 {
			s.thresholds.Calibration = v
		}
	}
}

// WithDivergenceThreshold sets the mean absolute deviation above which a
// rater is flagged.
func WithDivergenceThreshold(v float64) Option {
	return func(s *Service) {
		if v > 0 {
			s.thresholds.Divergence = v
		}
	}
}

// WithMaxScoreAbs bounds the magnitude of accepted scores.
func WithMaxScoreAbs(v float64) Option {
	return func(s *Service) {
		if v > 0 {
			s.maxScoreAbs = v
		}
	}
}
