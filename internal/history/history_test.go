package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

// recorderSuite runs the same behavioural checks against any backend.
func recorderSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("record assigns id and timestamp", func(t *testing.T) {
		s := open(t)
		before := time.Now().Add(-time.Second)
		a, err := s.Record(context.Background(), core.AttemptParams{
			Username:         "alice",
			OriginalFilename: "data.csv",
			StoredFilename:   "data_1.csv",
			Outcome:          core.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if a.ID == "" {
			t.Error("empty id")
		}
		if a.CreatedAt.Before(before) {
			t.Errorf("CreatedAt = %v, want after %v", a.CreatedAt, before)
		}

		hist, err := s.History(context.Background(), "alice")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != 1 {
			t.Fatalf("history len = %d, want 1", len(hist))
		}
		got := hist[0]
		if got.ID != a.ID || got.StoredFilename != "data_1.csv" || got.Outcome != core.OutcomeSuccess {
			t.Errorf("history[0] = %+v, want %+v", got, *a)
		}
		if !got.CreatedAt.Equal(a.CreatedAt) {
			t.Errorf("CreatedAt round trip = %v, want %v", got.CreatedAt, a.CreatedAt)
		}
	})

	t.Run("history newest first per user", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		outcomes := []core.Outcome{core.OutcomeEmpty, core.OutcomeSuccess, core.OutcomeParseError}
		for i, o := range outcomes {
			if _, err := s.Record(ctx, core.AttemptParams{
				Username:         "bob",
				OriginalFilename: fmt.Sprintf("f%d.csv", i),
				Outcome:          o,
			}); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
		if _, err := s.Record(ctx, core.AttemptParams{Username: "carol", OriginalFilename: "c.csv", Outcome: core.OutcomeSuccess}); err != nil {
			t.Fatalf("Record: %v", err)
		}

		hist, err := s.History(ctx, "bob")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != 3 {
			t.Fatalf("history len = %d, want 3", len(hist))
		}
		if hist[0].OriginalFilename != "f2.csv" || hist[2].OriginalFilename != "f0.csv" {
			t.Errorf("order = %s, %s, %s", hist[0].OriginalFilename, hist[1].OriginalFilename, hist[2].OriginalFilename)
		}
		for i := 1; i < len(hist); i++ {
			if hist[i].CreatedAt.After(hist[i-1].CreatedAt) {
				t.Errorf("timestamps increase at %d", i)
			}
		}
	})

	t.Run("unknown user has empty history", func(t *testing.T) {
		s := open(t)
		hist, err := s.History(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if hist == nil || len(hist) != 0 {
			t.Errorf("History = %#v, want empty non-nil slice", hist)
		}
	})

	t.Run("concurrent appends all recorded", func(t *testing.T) {
		s := open(t)
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Record(context.Background(), core.AttemptParams{
					Username:         "dave",
					OriginalFilename: fmt.Sprintf("%d.csv", i),
					Outcome:          core.OutcomeSuccess,
				})
				if err != nil {
					t.Errorf("Record: %v", err)
				}
			}(i)
		}
		wg.Wait()

		hist, err := s.History(context.Background(), "dave")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != n {
			t.Errorf("history len = %d, want %d", len(hist), n)
		}
	})

	t.Run("invalid params rejected", func(t *testing.T) {
		s := open(t)
		if _, err := s.Record(context.Background(), core.AttemptParams{OriginalFilename: "x.csv", Outcome: core.OutcomeEmpty}); err == nil {
			t.Error("Record without username succeeded")
		}
	})
}

func TestSQLiteRecorder(t *testing.T) {
	recorderSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"), time.Second)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteRecorder_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path, time.Second)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := s.Record(ctx, core.AttemptParams{Username: "eve", OriginalFilename: "a.csv", Outcome: core.OutcomeNoHeaders}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path, time.Second)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	hist, err := s.History(ctx, "eve")
	if err != nil || len(hist) != 1 || hist[0].Outcome != core.OutcomeNoHeaders {
		t.Errorf("after reopen History = %+v, %v", hist, err)
	}
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	recorderSuite(t, func(t *testing.T) Store {
		s, err := OpenPostgres(context.Background(), Options{URL: dsn, MaxConns: 4})
		if err != nil {
			t.Fatalf("OpenPostgres: %v", err)
		}
		if _, err := s.pool.Exec(context.Background(), `TRUNCATE upload_attempts`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "oracle"}); err == nil {
		t.Error("Open with unknown driver succeeded")
	}
}
