package proxy

import (
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/authgate/internal/config"
)

func mustUpstream(t *testing.T, name, rawURL string, weight int) *Upstream {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &Upstream{Name: name, URL: u, Weight: weight}
}

func TestRoundRobinCycles(t *testing.T) {
	b := NewRoundRobinBalancer([]*Upstream{
		mustUpstream(t, "a", "http://10.0.0.1:8080", 1),
		mustUpstream(t, "b", "http://10.0.0.2:8080", 1),
		mustUpstream(t, "c", "http://10.0.0.3:8080", 1),
	})

	var names []string
	for i := 0; i < 6; i++ {
		names = append(names, b.Pick().Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, names)
}

func TestRoundRobinEmpty(t *testing.T) {
	b := NewRoundRobinBalancer(nil)
	assert.Nil(t, b.Pick())
}

func TestRoundRobinFairUnderConcurrency(t *testing.T) {
	b := NewRoundRobinBalancer([]*Upstream{
		mustUpstream(t, "a", "http://10.0.0.1:8080", 1),
		mustUpstream(t, "b", "http://10.0.0.2:8080", 1),
	})

	const workers = 10
	const picksPerWorker = 100

	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for j := 0; j < picksPerWorker; j++ {
				local[b.Pick().Name]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// A shared counter splits the total exactly in half.
	assert.Equal(t, workers*picksPerWorker/2, counts["a"])
	assert.Equal(t, workers*picksPerWorker/2, counts["b"])
}

func TestRoundRobinSetUpstreams(t *testing.T) {
	b := NewRoundRobinBalancer([]*Upstream{
		mustUpstream(t, "a", "http://10.0.0.1:8080", 1),
	})
	assert.Equal(t, "a", b.Pick().Name)

	b.SetUpstreams([]*Upstream{
		mustUpstream(t, "b", "http://10.0.0.2:8080", 1),
	})
	assert.Equal(t, "b", b.Pick().Name)

	b.SetUpstreams(nil)
	assert.Nil(t, b.Pick())
}

func TestRandomRespectsWeights(t *testing.T) {
	b := NewRandomBalancer([]*Upstream{
		mustUpstream(t, "heavy", "http://10.0.0.1:8080", 9),
		mustUpstream(t, "light", "http://10.0.0.2:8080", 1),
	})

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		counts[b.Pick().Name]++
	}

	assert.Greater(t, counts["heavy"], counts["light"])
	assert.Greater(t, counts["light"], 0)
}

func TestRandomEmpty(t *testing.T) {
	b := NewRandomBalancer(nil)
	assert.Nil(t, b.Pick())
}

func TestNewBalancerStrategies(t *testing.T) {
	upstreams := []*Upstream{mustUpstream(t, "a", "http://10.0.0.1:8080", 1)}

	b, err := NewBalancer(config.StrategyRoundRobin, upstreams)
	require.NoError(t, err)
	assert.IsType(t, &RoundRobinBalancer{}, b)

	b, err = NewBalancer(config.StrategyRandom, upstreams)
	require.NoError(t, err)
	assert.IsType(t, &RandomBalancer{}, b)

	b, err = NewBalancer("", upstreams)
	require.NoError(t, err)
	assert.IsType(t, &RoundRobinBalancer{}, b)

	_, err = NewBalancer("least_conn", upstreams)
	assert.Error(t, err)
}

func TestUpstreamsFromConfig(t *testing.T) {
	upstreams, err := UpstreamsFromConfig(config.UpstreamsConfig{
		Strategy: config.StrategyRoundRobin,
		Targets: []config.UpstreamConfig{
			{Name: "orders", Address: "10.0.0.1", Port: 8080, Weight: 2},
			{Name: "users", Address: "10.0.0.2", Port: 9090},
		},
	})
	require.NoError(t, err)
	require.Len(t, upstreams, 2)

	assert.Equal(t, "http://10.0.0.1:8080", upstreams[0].URL.String())
	assert.Equal(t, 2, upstreams[0].Weight)

	// Missing weight defaults to 1.
	assert.Equal(t, 1, upstreams[1].Weight)
}
