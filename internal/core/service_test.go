package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu      sync.Mutex
	raw     map[string][]byte
	cleaned map[string][]byte
	failRaw bool
	panicOn string
}

func newMemStore() *memStore {
	return &memStore{raw: map[string][]byte{}, cleaned: map[string][]byte{}}
}

func (m *memStore) SaveRaw(_ context.Context, filename string, data []byte) (string, error) {
	if m.failRaw {
		return "", errors.New("disk full")
	}
	if filename == m.panicOn {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := filename
	for n := 1; ; n++ {
		if _, taken := m.raw[name]; !taken {
			break
		}
		name = strings.TrimSuffix(filename, ".csv") + fmt.Sprintf("_%d.csv", n)
	}
	m.raw[name] = data
	return name, nil
}

func (m *memStore) SaveCleaned(_ context.Context, stored string, t *Table) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := "cleaned_" + stored
	m.cleaned[name] = buf.Bytes()
	return name, nil
}

func (m *memStore) Preview(_ context.Context, name string, n int) ([]Record, error) {
	m.mu.Lock()
	data, ok := m.cleaned[name]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return ToRecords(t, n), nil
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

func (m *memStore) Open(_ context.Context, name string) (io.ReadSeekCloser, ArtifactInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.cleaned[name]
	if !ok {
		return nil, ArtifactInfo{}, ErrNotFound
	}
	return nopSeekCloser{bytes.NewReader(data)}, ArtifactInfo{Name: name, Size: int64(len(data))}, nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cleaned[name]; !ok {
		return ErrNotFound
	}
	delete(m.cleaned, name)
	return nil
}

func (m *memStore) ListCleaned(context.Context) ([]ArtifactInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ArtifactInfo
	for name, data := range m.cleaned {
		out = append(out, ArtifactInfo{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

// memRecorder is an in-memory Recorder.
type memRecorder struct {
	mu       sync.Mutex
	attempts []UploadAttempt
	fail     bool
}

func (r *memRecorder) Record(_ context.Context, p AttemptParams) (*UploadAttempt, error) {
	if r.fail {
		return nil, errors.New("database is locked")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := UploadAttempt{
		ID:               fmt.Sprintf("%d", len(r.attempts)+1),
		Username:         p.Username,
		OriginalFilename: p.OriginalFilename,
		StoredFilename:   p.StoredFilename,
		Outcome:          p.Outcome,
		CreatedAt:        time.Now(),
	}
	r.attempts = append(r.attempts, a)
	return &a, nil
}

func (r *memRecorder) History(_ context.Context, username string) ([]UploadAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []UploadAttempt
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].Username == username {
			out = append(out, r.attempts[i])
		}
	}
	return out, nil
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func newTestService() (*Service, *memStore, *memRecorder) {
	store := newMemStore()
	rec := &memRecorder{}
	return NewService(store, rec, Options{MaxConcurrent: 2, MaxWait: 50 * time.Millisecond}), store, rec
}

var alice = Identity{Username: "alice"}

func TestService_UploadOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		body        string
		wantOutcome Outcome
		wantStored  bool
		wantCleaned bool
	}{
		{"success", "data.csv", "a,b\n1,2\n", OutcomeSuccess, true, true},
		{"pipe delimited", "pipes.csv", "a|b\n1|2\n", OutcomeSuccess, true, true},
		{"empty file", "empty.csv", "", OutcomeEmpty, true, false},
		{"single column", "one.csv", "a\n1\n", OutcomeInvalidStructure, true, false},
		{"no headers", "blank.csv", ",\n1,2\n", OutcomeNoHeaders, true, false},
		{"malformed", "bad.csv", "a,b\n1,2,3\n", OutcomeParseError, true, false},
		{"wrong extension", "notes.txt", "a,b\n1,2\n", OutcomeParseError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, rec := newTestService()
			res, err := svc.Upload(context.Background(), alice, tt.filename, strings.NewReader(tt.body))

			if got := OutcomeOf(err); got != tt.wantOutcome {
				t.Fatalf("outcome = %q (err %v), want %q", got, err, tt.wantOutcome)
			}
			if tt.wantOutcome == OutcomeSuccess && (res == nil || res.AttemptID == "") {
				t.Fatalf("success result = %+v, want attempt id", res)
			}
			if rec.count() != 1 {
				t.Fatalf("recorded %d attempts, want 1", rec.count())
			}

			a := rec.attempts[0]
			if a.Outcome != tt.wantOutcome || a.Username != "alice" || a.OriginalFilename != tt.filename {
				t.Errorf("attempt = %+v", a)
			}
			if (a.StoredFilename != "") != tt.wantStored {
				t.Errorf("stored filename = %q, wantStored %v", a.StoredFilename, tt.wantStored)
			}
			if (len(store.cleaned) == 1) != tt.wantCleaned {
				t.Errorf("cleaned artifacts = %d, wantCleaned %v", len(store.cleaned), tt.wantCleaned)
			}
		})
	}
}

func TestService_UploadResult(t *testing.T) {
	svc, _, _ := newTestService()
	res, err := svc.Upload(context.Background(), alice, "people.csv", strings.NewReader("Name,Age\n ann ,30\nann,30\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.StoredFilename != "people.csv" || res.CleanedFilename != "cleaned_people.csv" {
		t.Errorf("names = %q, %q", res.StoredFilename, res.CleanedFilename)
	}
	if len(res.Records) != 1 || res.Records[0]["name"] != "ann" || res.Records[0]["age"] != int64(30) {
		t.Errorf("records = %#v", res.Records)
	}
}

func TestService_SameFilenameTwice(t *testing.T) {
	svc, _, _ := newTestService()
	var stored []string
	for i := 0; i < 2; i++ {
		res, err := svc.Upload(context.Background(), alice, "name.csv", strings.NewReader("a,b\n1,2\n"))
		if err != nil {
			t.Fatalf("Upload %d: %v", i, err)
		}
		stored = append(stored, res.StoredFilename)
	}
	if stored[0] != "name.csv" || stored[1] != "name_1.csv" {
		t.Errorf("stored = %q, want [name.csv name_1.csv]", stored)
	}
}

func TestService_ServerErrorsRecorded(t *testing.T) {
	t.Run("storage failure", func(t *testing.T) {
		svc, store, rec := newTestService()
		store.failRaw = true
		_, err := svc.Upload(context.Background(), alice, "a.csv", strings.NewReader("a,b\n1,2\n"))
		if !errors.Is(err, ErrStorage) || OutcomeOf(err) != OutcomeServerError {
			t.Fatalf("err = %v, want storage failure", err)
		}
		if rec.count() != 1 || rec.attempts[0].Outcome != OutcomeServerError {
			t.Errorf("attempts = %+v", rec.attempts)
		}
	})

	t.Run("panic recovered", func(t *testing.T) {
		svc, store, rec := newTestService()
		store.panicOn = "boom.csv"
		res, err := svc.Upload(context.Background(), alice, "boom.csv", strings.NewReader("a,b\n1,2\n"))
		if res != nil || OutcomeOf(err) != OutcomeServerError {
			t.Fatalf("res = %v, err = %v, want server error", res, err)
		}
		if rec.count() != 1 || rec.attempts[0].Outcome != OutcomeServerError {
			t.Errorf("attempts = %+v", rec.attempts)
		}
	})

	t.Run("limiter busy", func(t *testing.T) {
		svc, _, rec := newTestService()
		for i := 0; i < svc.Limiter().MaxConcurrent(); i++ {
			if !svc.Limiter().TryAcquire() {
				t.Fatal("TryAcquire failed")
			}
		}
		defer func() {
			for i := 0; i < svc.Limiter().MaxConcurrent(); i++ {
				svc.Limiter().Release()
			}
		}()

		_, err := svc.Upload(context.Background(), alice, "a.csv", strings.NewReader("a,b\n1,2\n"))
		if !errors.Is(err, ErrTooManyUploads) || StatusCode(err) != 503 {
			t.Fatalf("err = %v, want ErrTooManyUploads", err)
		}
		if rec.count() != 1 || rec.attempts[0].Outcome != OutcomeServerError {
			t.Errorf("attempts = %+v", rec.attempts)
		}
	})

	t.Run("waits for a freed slot", func(t *testing.T) {
		svc, _, rec := newTestService()
		for i := 0; i < svc.Limiter().MaxConcurrent(); i++ {
			if !svc.Limiter().TryAcquire() {
				t.Fatal("TryAcquire failed")
			}
		}
		go func() {
			time.Sleep(5 * time.Millisecond)
			svc.Limiter().Release()
		}()
		defer svc.Limiter().Release()

		res, err := svc.Upload(context.Background(), alice, "a.csv", strings.NewReader("a,b\n1,2\n"))
		if err != nil || res == nil {
			t.Fatalf("res = %v, err = %v, want success", res, err)
		}
		if rec.count() != 1 || rec.attempts[0].Outcome != OutcomeSuccess {
			t.Errorf("attempts = %+v", rec.attempts)
		}
		if got := svc.Limiter().ActiveCount(); got != 1 {
			t.Errorf("active = %d, want 1", got)
		}
	})

	t.Run("recorder failure fails upload", func(t *testing.T) {
		svc, _, rec := newTestService()
		rec.fail = true
		res, err := svc.Upload(context.Background(), alice, "a.csv", strings.NewReader("a,b\n1,2\n"))
		if res != nil || !errors.Is(err, ErrServer) {
			t.Fatalf("res = %v, err = %v, want server error", res, err)
		}
	})
}

func TestService_ConcurrentUploadsRecordedOnce(t *testing.T) {
	svc, _, rec := newTestService()
	svc.limiter = NewUploadLimiter(4, 5*time.Second)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := Identity{Username: fmt.Sprintf("user%d", i%3)}
			_, _ = svc.Upload(context.Background(), id, "same.csv", strings.NewReader("a,b\n1,2\n"))
		}(i)
	}
	wg.Wait()

	if got := rec.count(); got != n {
		t.Errorf("recorded %d attempts, want %d", got, n)
	}
	if err := svc.WaitForUploads(context.Background()); err != nil {
		t.Errorf("WaitForUploads: %v", err)
	}
}

func TestService_ArtifactOperations(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	var body strings.Builder
	body.WriteString("id,v\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&body, "%d,x%d\n", i, i)
	}
	res, err := svc.Upload(ctx, alice, "big.csv", strings.NewReader(body.String()))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	recs, err := svc.Preview(ctx, alice, res.CleanedFilename)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(recs) != DefaultPreviewRows {
		t.Errorf("preview rows = %d, want %d", len(recs), DefaultPreviewRows)
	}

	files, err := svc.ListCleaned(ctx, alice)
	if err != nil || len(files) != 1 {
		t.Fatalf("ListCleaned = %v, %v", files, err)
	}

	if err := svc.Delete(ctx, alice, res.CleanedFilename); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	err = svc.Delete(ctx, alice, res.CleanedFilename)
	if !errors.Is(err, ErrNotFound) || StatusCode(err) != 404 {
		t.Errorf("second Delete = %v, want not found", err)
	}
	if _, err := svc.Preview(ctx, alice, res.CleanedFilename); !errors.Is(err, ErrNotFound) {
		t.Errorf("Preview after delete = %v, want not found", err)
	}
	if _, _, err := svc.Open(ctx, alice, res.CleanedFilename); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after delete = %v, want not found", err)
	}
	if _, _, err := svc.ExportParquet(ctx, alice, res.CleanedFilename); OutcomeOf(err) != OutcomeServerError {
		t.Errorf("ExportParquet on non-exporting store = %v, want server error", err)
	}
}

func TestService_HistoryNewestFirst(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"one.csv", "two.txt", "three.csv"} {
		_, _ = svc.Upload(ctx, alice, name, strings.NewReader("a,b\n1,2\n"))
	}
	_, _ = svc.Upload(ctx, Identity{Username: "bob"}, "bob.csv", strings.NewReader("a,b\n1,2\n"))

	hist, err := svc.History(ctx, alice)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[0].OriginalFilename != "three.csv" || hist[2].OriginalFilename != "one.csv" {
		t.Errorf("history order = %+v", hist)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].CreatedAt.After(hist[i-1].CreatedAt) {
			t.Errorf("history not newest first at %d", i)
		}
	}
}

func TestService_Reject(t *testing.T) {
	svc, store, rec := newTestService()

	if err := svc.Reject(context.Background(), alice, "", errors.New("no file provided")); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("attempts = %d, want 1", rec.count())
	}
	got := rec.attempts[0]
	if got.Outcome != OutcomeParseError || got.OriginalFilename != "" || got.StoredFilename != "" {
		t.Errorf("attempt = %+v, want parse_error without filenames", got)
	}
	if len(store.raw) != 0 {
		t.Errorf("raw files = %d, want none", len(store.raw))
	}

	rec.fail = true
	if err := svc.Reject(context.Background(), alice, "a.csv", errors.New("file too large")); !errors.Is(err, ErrServer) {
		t.Errorf("Reject with failing recorder = %v, want ErrServer", err)
	}
}
