package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// lockSampleRate feeds the mutex and block profiles: one in five events.
const lockSampleRate = 5

type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// profileTypes are the profiles pushed to Pyroscope.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockDuration,
}

// Profiler pushes continuous profiles to Pyroscope. The zero value, and the
// profiler returned for a disabled config, do nothing.
type Profiler struct {
	session  *pyroscope.Profiler
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
}

func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return &Profiler{logger: logger}, nil
	}
	var problems []error
	if cfg.ServerAddress == "" {
		problems = append(problems, errors.New("profiler server address is required"))
	}
	if cfg.ApplicationName == "" {
		problems = append(problems, errors.New("profiler application name is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}

	runtime.SetMutexProfileFraction(lockSampleRate)
	runtime.SetBlockProfileRate(lockSampleRate)

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            logger.Named("pyroscope").Sugar(),
		Tags:              hostTags(),
		ProfileTypes:      profileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope: %w", err)
	}
	logger.Info("Continuous profiling enabled",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
	)
	return &Profiler{session: session, logger: logger}, nil
}

func hostTags() map[string]string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return nil
	}
	return map[string]string{"hostname": host}
}

func (p *Profiler) IsEnabled() bool {
	return p != nil && p.session != nil
}

// Stop flushes the last profiles. Later calls return the first result.
func (p *Profiler) Stop() error {
	if !p.IsEnabled() {
		return nil
	}
	p.stopOnce.Do(func() {
		if err := p.session.Stop(); err != nil {
			p.stopErr = fmt.Errorf("stop pyroscope: %w", err)
			return
		}
		p.logger.Info("Continuous profiling stopped")
	})
	return p.stopErr
}
