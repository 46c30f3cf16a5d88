package evidence

import (
	"sync"
	"testing"

	"researchagent.dev/core/internal/model"
)

func rawFor(id, url, title, content string) *model.RawResult {
	return &model.RawResult{ID: id, SourceID: "source_a", URL: url, Title: title, RawContent: content}
}

func TestInsertRawDedupesByFingerprint(t *testing.T) {
	t.Parallel()

	idx := NewIndex()

	id1, inserted1 := idx.InsertRaw(rawFor("raw-1", "https://example.com/a", "Title", "content"))
	if !inserted1 {
		t.Fatalf("expected first insert to succeed")
	}

	id2, inserted2 := idx.InsertRaw(rawFor("raw-2", "https://example.com/a?utm_source=x", "Title", "content"))
	if inserted2 {
		t.Fatalf("expected duplicate (same canonical url) to be rejected")
	}
	if id1 != id2 {
		t.Fatalf("duplicate insert returned different id: %q vs %q", id1, id2)
	}

	if got := idx.RawCount(); got != 1 {
		t.Fatalf("raw count = %d, want 1 (I1 dedup)", got)
	}
}

func TestInsertRawIsIdempotentForIdenticalRaw(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	raw := rawFor("raw-1", "https://example.com/a", "Title", "content")

	id1, _ := idx.InsertRaw(raw)
	id2, inserted := idx.InsertRaw(raw)

	if inserted {
		t.Fatalf("L1: repeat insert of identical fingerprint must not grow the index")
	}
	if id1 != id2 {
		t.Fatalf("L1: repeat insert must yield the same raw id")
	}
	if idx.RawCount() != 1 {
		t.Fatalf("L1: index must not grow on repeat insert")
	}
}

func TestAssociateIsIdempotent(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	id, _ := idx.InsertRaw(rawFor("raw-1", "", "Title", "content"))

	idx.Associate("goal-1", id)
	idx.Associate("goal-1", id)
	idx.Associate("goal-1", id)

	raws := idx.ListForGoal("goal-1")
	if len(raws) != 1 {
		t.Fatalf("L2: associate must be idempotent, got %d raws", len(raws))
	}
}

func TestInsertRawNeverTruncatesContent(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	longContent := make([]byte, 10000)
	for i := range longContent {
		longContent[i] = 'x'
	}

	id, _ := idx.InsertRaw(rawFor("raw-1", "", "Title", string(longContent)))
	raws := idx.ListForGoal("goal-1")
	idx.Associate("goal-1", id)
	raws = idx.ListForGoal("goal-1")

	if len(raws) != 1 || len(raws[0].RawContent) != len(longContent) {
		t.Fatalf("I2: raw_content must never be truncated by the index")
	}
}

func TestConcurrentInsertsSameFingerprintYieldOneRaw(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	var wg sync.WaitGroup
	const n = 50

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx.InsertRaw(rawFor("raw-concurrent", "https://example.com/same", "Same", "content"))
		}(i)
	}
	wg.Wait()

	if got := idx.RawCount(); got != 1 {
		t.Fatalf("concurrent inserts of the same fingerprint produced %d raws, want 1", got)
	}
}
