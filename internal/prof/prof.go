// Package prof runs the pyroscope continuous profiler.
package prof

import (
	"context"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	TenantID      string
	Tags          map[string]string
	// mutex and block profiles are only collected when these are > 0
	ProfileMutexFraction int
	BlockProfileRate     int
}

func (o Options) profileTypes() []pyroscope.ProfileType {
	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if o.ProfileMutexFraction > 0 {
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if o.BlockProfileRate > 0 {
		types = append(types, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return types
}

// Start launches the profiler. The returned stop is always non-nil and safe to
// call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}
	if opts.ServerAddress == "" {
		return noop, xerrors.New("pyroscope server address is empty")
	}
	if opts.AppName == "" {
		return noop, xerrors.New("pyroscope app name is empty")
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    opts.profileTypes(),
	})
	if err != nil {
		return noop, xerrors.Wrap(err, "start pyroscope")
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := profiler.Stop(); err != nil {
				L.Error(context.Background(), err, "pyroscope stop")
				return
			}
			L.Info(context.Background(), "pyroscope stopped")
		})
	}, nil
}
