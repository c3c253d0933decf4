package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/registry-crawler/internal/progress"
)

func testBaseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := ParseBaseURL("http://registry.test/freedom-fighter-list")
	require.NoError(t, err)
	return u
}

// pageFetcher serves canned bodies by URL and tracks concurrency.
type pageFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	errs     map[string]error
	calls    map[string]int
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newPageFetcher() *pageFetcher {
	return &pageFetcher{
		bodies: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *pageFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, NewNetworkError(u, ctx.Err())
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[u]++
	if err, ok := f.errs[u]; ok {
		return nil, err
	}
	body, ok := f.bodies[u]
	if !ok {
		return nil, NewStatusError(u, 404)
	}
	if body == "" {
		return nil, nil
	}
	return []byte(body), nil
}

func (f *pageFetcher) count(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

// scriptedExtractor maps bodies to canned extraction results.
type scriptedExtractor struct {
	pageCount map[string]int
	pageState map[string]Structure
	listings  map[string][]RowRecord
	listState map[string]Structure
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{
		pageCount: make(map[string]int),
		pageState: make(map[string]Structure),
		listings:  make(map[string][]RowRecord),
		listState: make(map[string]Structure),
	}
}

func (e *scriptedExtractor) Listing(body []byte) ([]RowRecord, Structure) {
	if s, ok := e.listState[string(body)]; ok {
		return e.listings[string(body)], s
	}
	return e.listings[string(body)], StructureFound
}

func (e *scriptedExtractor) DetailImage([]byte) (string, Structure) {
	return "", StructureAbsent
}

func (e *scriptedExtractor) PageCount(body []byte) (int, Structure) {
	n, ok := e.pageCount[string(body)]
	if !ok {
		return 1, StructureAbsent
	}
	return n, e.pageState[string(body)]
}

// recordingProcessor records every processed row and optionally spawns work.
type recordingProcessor struct {
	mu        sync.Mutex
	processed []RowRecord
	errs      map[string]error
	spawn     func(ctx context.Context)
}

func (p *recordingProcessor) Process(_ context.Context, _ Category, rec RowRecord, spawn Spawner) error {
	p.mu.Lock()
	p.processed = append(p.processed, rec)
	err := p.errs[rec.Fields[0]]
	p.mu.Unlock()
	if err == nil && p.spawn != nil {
		spawn.Go(p.spawn)
	}
	return err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) count(stage progress.Stage) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, evt := range l.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func (l *eventLog) find(stage progress.Stage) []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []progress.Event
	for _, evt := range l.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func rows(page int, n int) []RowRecord {
	out := make([]RowRecord, n)
	for i := range out {
		out[i].Fields[0] = fmt.Sprintf("p%d-r%d", page, i)
		out[i].DetailURL = fmt.Sprintf("/freedom-fighter/%d%02d", page, i)
	}
	return out
}
