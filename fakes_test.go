package mt_migrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves an empty DataSource for every configured name.
type fakeProvider struct {
	sources map[string]*DataSource
	active  []string
}

func newFakeProvider(active []string, names ...string) *fakeProvider {
	p := &fakeProvider{sources: make(map[string]*DataSource), active: active}
	for _, name := range names {
		p.sources[name] = &DataSource{Name: name, Driver: "fake"}
	}
	return p
}

func (p *fakeProvider) DataSource(name string) (*DataSource, error) {
	ds, ok := p.sources[name]
	if !ok {
		return nil, DataSourceNotConfigured.New("data source %s is not configured", name)
	}
	return ds, nil
}

func (p *fakeProvider) ActiveDataSourceNames() []string {
	return p.active
}

// fakeEngine records every runner command as "<target>:<command>".
type fakeEngine struct {
	mutex         sync.Mutex
	calls         []string
	configured    []RunnerOptions
	historyExists bool
	fail          func(target Target, command string) error
	failConfigure func(target Target) error
}

func (e *fakeEngine) Configure(_ context.Context, opts RunnerOptions) (Runner, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.failConfigure != nil {
		if err := e.failConfigure(opts.Target); err != nil {
			return nil, err
		}
	}
	e.configured = append(e.configured, opts)
	return &fakeRunner{engine: e, target: opts.Target}, nil
}

func (e *fakeEngine) record(target Target, command string) error {
	e.mutex.Lock()
	e.calls = append(e.calls, fmt.Sprintf("%s:%s", target, command))
	fail := e.fail
	e.mutex.Unlock()

	if fail != nil {
		return fail(target, command)
	}
	return nil
}

func (e *fakeEngine) Calls() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) ConfigureCount() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.configured)
}

type fakeRunner struct {
	engine *fakeEngine
	target Target
}

func (r *fakeRunner) Clean(context.Context) error    { return r.engine.record(r.target, "clean") }
func (r *fakeRunner) Validate(context.Context) error { return r.engine.record(r.target, "validate") }
func (r *fakeRunner) Baseline(context.Context) error { return r.engine.record(r.target, "baseline") }
func (r *fakeRunner) Repair(context.Context) error   { return r.engine.record(r.target, "repair") }
func (r *fakeRunner) Migrate(context.Context) error  { return r.engine.record(r.target, "migrate") }

func (r *fakeRunner) Info(context.Context) (Info, error) {
	if err := r.engine.record(r.target, "info"); err != nil {
		return Info{}, err
	}
	return Info{Target: r.target, CurrentVersion: "1", Applied: 1}, nil
}

func (r *fakeRunner) HistoryExists(context.Context) (bool, error) {
	if err := r.engine.record(r.target, "historyExists"); err != nil {
		return false, err
	}
	return r.engine.historyExists, nil
}

func memFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, name := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte("-- "+name), 0o644))
	}
	return fs
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func boolPtr(v bool) *bool {
	return &v
}
