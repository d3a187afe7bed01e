package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndAnalyze(t *testing.T) {
	probes := []Probe{
		{Name: "ok", Check: func(ctx context.Context) error { return nil }, Critical: true},
		{Name: "soft-fail", Check: func(ctx context.Context) error { return errors.New("minor issue") }},
	}

	results := Run(context.Background(), probes)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Error)
	assert.Error(t, results[1].Error)

	// Only critical failures block startup.
	assert.NoError(t, AnalyzeResults(results))
}

func TestAnalyzeCriticalFailure(t *testing.T) {
	boom := errors.New("mirror unreachable")
	results := Run(context.Background(), []Probe{
		{Name: "street tiles", Check: func(ctx context.Context) error { return boom }, Critical: true},
	})

	err := AnalyzeResults(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type fakeGetter struct {
	body []byte
	err  error
	url  string
}

func (g *fakeGetter) Get(ctx context.Context, u string) ([]byte, error) {
	g.url = u
	return g.body, g.err
}

func TestTileMirror(t *testing.T) {
	g := &fakeGetter{body: []byte{0x89, 0x50}}
	p := TileMirror("street tiles", "https://a.example/{z}/{x}/{y}.png", g, true)

	require.NoError(t, p.Check(context.Background()))
	assert.Equal(t, "https://a.example/0/0/0.png", g.url)

	g.body = nil
	assert.Error(t, p.Check(context.Background()))

	g.err = errors.New("dial failed")
	assert.Error(t, p.Check(context.Background()))
}
