package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const areasJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"Hier_lvl":4,"MapName":"Alps"},"geometry":{"type":"Polygon","coordinates":[[[6,44],[16,44],[16,48],[6,44]]]}},
 {"type":"Feature","properties":{"MapName":"NoLevel"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}
]}`

const peaksJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"Mont Blanc","elevation":4808,"MapName":"Alps","Hier_lvl":"4"},"geometry":{"type":"Point","coordinates":[6.865,45.832]}}
]}`

// atlasServer serves the two resources and counts requests.
type atlasServer struct {
	*httptest.Server
	areaHits  atomic.Int32
	peakHits  atomic.Int32
	peaksCode atomic.Int32
	delay     time.Duration
	areasBody atomic.Value
}

func newAtlasServer(t *testing.T) *atlasServer {
	t.Helper()
	s := &atlasServer{}
	s.peaksCode.Store(http.StatusOK)
	s.areasBody.Store(areasJSON)

	mux := http.NewServeMux()
	mux.HandleFunc("/areas.geojson", func(w http.ResponseWriter, r *http.Request) {
		s.areaHits.Add(1)
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		_, _ = w.Write([]byte(s.areasBody.Load().(string)))
	})
	mux.HandleFunc("/peaks.geojson", func(w http.ResponseWriter, r *http.Request) {
		s.peakHits.Add(1)
		code := int(s.peaksCode.Load())
		if code != http.StatusOK {
			http.Error(w, "unavailable", code)
			return
		}
		_, _ = w.Write([]byte(peaksJSON))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *atlasServer) store(timeout time.Duration) *Store {
	return NewStore(StoreConfig{
		AreasURL: s.URL + "/areas.geojson",
		PeaksURL: s.URL + "/peaks.geojson",
		Fetcher:  NewFetcher(s.Client(), "mountainatlas-test"),
		Timeout:  timeout,
	})
}

func TestStoreLoad(t *testing.T) {
	srv := newAtlasServer(t)
	store := srv.store(5 * time.Second)

	assert.Equal(t, StatePending, store.State())

	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Areas, 2)
	assert.Len(t, ds.Peaks, 1)
	assert.Equal(t, uint64(1), ds.Generation)
	assert.Equal(t, StateLoaded, store.State())
	assert.Positive(t, ds.Bytes)

	again, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, ds, again, "load is idempotent after success")
	assert.Equal(t, int32(1), srv.areaHits.Load())
	assert.Equal(t, int32(1), srv.peakHits.Load())
}

func TestStoreConcurrentLoadSharesFetch(t *testing.T) {
	srv := newAtlasServer(t)
	srv.delay = 50 * time.Millisecond
	store := srv.store(5 * time.Second)

	var wg sync.WaitGroup
	results := make([]*Dataset, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := store.Load(context.Background())
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
	assert.Equal(t, int32(1), srv.areaHits.Load())
}

func TestStoreLoadFailsAsUnit(t *testing.T) {
	srv := newAtlasServer(t)
	srv.peaksCode.Store(http.StatusServiceUnavailable)
	store := srv.store(5 * time.Second)

	ds, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Nil(t, store.Current(), "no partial state may be published")
	assert.Equal(t, StateFailed, store.State())

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ResourcePeaks, loadErr.Resource)
	assert.Contains(t, loadErr.Error(), "503")

	// Retrying is a manual action and succeeds once the resource is back.
	srv.peaksCode.Store(http.StatusOK)
	ds, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Peaks, 1)
	assert.Equal(t, StateLoaded, store.State())
	assert.NoError(t, store.Err())
}

func TestStoreLoadRejectsInvalidPayload(t *testing.T) {
	srv := newAtlasServer(t)
	srv.areasBody.Store(`<html>not geojson</html>`)
	store := srv.store(5 * time.Second)

	_, err := store.Load(context.Background())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ResourceAreas, loadErr.Resource)
	assert.Nil(t, store.Current())
}

func TestStoreLoadTimeout(t *testing.T) {
	srv := newAtlasServer(t)
	srv.delay = 2 * time.Second
	store := srv.store(50 * time.Millisecond)

	start := time.Now()
	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateFailed, store.State())
}

func TestStoreReload(t *testing.T) {
	srv := newAtlasServer(t)
	store := srv.store(5 * time.Second)

	first, err := store.Load(context.Background())
	require.NoError(t, err)

	srv.peaksCode.Store(http.StatusInternalServerError)
	_, err = store.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, first, store.Current(), "failed reload keeps the previous dataset")
	assert.Equal(t, StateLoaded, store.State())

	srv.peaksCode.Store(http.StatusOK)
	second, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation)
	assert.Same(t, second, store.Current())

	st := store.Status()
	assert.Equal(t, int64(3), st.TotalLoads)
	assert.Equal(t, int64(1), st.TotalFailed)
	assert.Equal(t, 2, st.Areas)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	areas := filepath.Join(dir, "areas.geojson")
	peaks := filepath.Join(dir, "peaks.geojson")
	require.NoError(t, os.WriteFile(areas, []byte(areasJSON), 0o644))
	require.NoError(t, os.WriteFile(peaks, []byte(peaksJSON), 0o644))

	store := NewStore(StoreConfig{AreasURL: areas, PeaksURL: "file://" + peaks})
	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Areas, 2)

	_, err = FileFetcher{}.Fetch(context.Background(), filepath.Join(dir, "missing.geojson"))
	assert.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data/areas.geojson", "data/areas.geojson"},
		{"file:///srv/atlas/areas.geojson", "/srv/atlas/areas.geojson"},
		{"https://example.com/areas.geojson", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalPath(tt.in))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "loaded", StateLoaded.String())
	assert.Equal(t, "failed", StateFailed.String())
	text, err := StateFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}
