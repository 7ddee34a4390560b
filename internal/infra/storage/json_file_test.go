package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nepse_watch/internal/domain"

	"github.com/shopspring/decimal"
)

func TestJSONFileStore_MissingFile(t *testing.T) {
	s := NewJSONFileStore(filepath.Join(t.TempDir(), "absent.json"))

	w := s.Load(context.Background())
	if w == nil || w.Users == nil || len(w.Users) != 0 {
		t.Errorf("expected empty watchlist, got %+v", w)
	}
}

func TestJSONFileStore_Unparseable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	s := NewJSONFileStore(path)
	if w := s.Load(context.Background()); len(w.Users) != 0 {
		t.Errorf("expected empty watchlist, got %+v", w)
	}

	// A mutation after a failed load starts over from empty
	if err := s.AddGoal(context.Background(), "100", "NABIL", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}
}

func TestJSONFileStore_ReadsExistingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	doc := `{
    "users": {
        "100": {"NABIL": 500, "NICA": 899.5},
        "200": {}
    }
}`
	os.WriteFile(path, []byte(doc), 0644)

	w := NewJSONFileStore(path).Load(context.Background())
	if len(w.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(w.Users))
	}
	if !w.Users["100"]["NICA"].Equal(decimal.RequireFromString("899.5")) {
		t.Errorf("expected 899.5, got %s", w.Users["100"]["NICA"])
	}
	if len(w.Users["200"]) != 0 {
		t.Errorf("expected empty goals for 200")
	}
}

func TestJSONFileStore_BadPriceSkipsOnlyThatGoal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	doc := `{"users":{"100":{"NABIL":null,"NICA":"cheap","ADBL":-3,"SCB":700},"200":{"NICA":500}}}`
	os.WriteFile(path, []byte(doc), 0644)

	s := NewJSONFileStore(path)
	ctx := context.Background()
	if err := s.AddGoal(ctx, "300", "ADBL", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	w := s.Load(ctx)
	if len(w.Users) != 3 {
		t.Fatalf("expected 3 users, got %+v", w.Users)
	}
	if got := w.Users["200"]["NICA"]; !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("user 200 lost NICA goal, got %s", got)
	}
	if goals := w.Users["100"]; len(goals) != 1 || !goals["SCB"].Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected only SCB for user 100, got %+v", goals)
	}
}

func TestJSONFileStore_MalformedUserIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	os.WriteFile(path, []byte(`{"users":{"100":[1,2],"200":{"NICA":500},"300":null}}`), 0644)

	w := NewJSONFileStore(path).Load(context.Background())
	if _, ok := w.Users["100"]; ok {
		t.Error("user with non-object goals should be skipped")
	}
	if !w.Users["200"]["NICA"].Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected NICA 500 for user 200, got %+v", w.Users["200"])
	}
	if goals, ok := w.Users["300"]; !ok || len(goals) != 0 {
		t.Errorf("expected empty goals for user 300, got %+v", goals)
	}
}

func TestJSONFileStore_NormalizesStoredSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	os.WriteFile(path, []byte(`{"users":{"100":{"nabil":500," nica ":900}}}`), 0644)

	s := NewJSONFileStore(path)
	ctx := context.Background()

	goals, _ := s.ListGoals(ctx, "100")
	if len(goals) != 2 || !goals["NABIL"].Equal(decimal.NewFromInt(500)) || !goals["NICA"].Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected NABIL and NICA, got %+v", goals)
	}

	if err := s.RemoveGoal(ctx, "100", "nabil"); err != nil {
		t.Fatalf("RemoveGoal failed: %v", err)
	}
	goals, _ = s.ListGoals(ctx, "100")
	if _, ok := goals["NABIL"]; ok || len(goals) != 1 {
		t.Errorf("expected only NICA left, got %+v", goals)
	}
}

func TestJSONFileStore_CanonicalSymbolWinsCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	os.WriteFile(path, []byte(`{"users":{"100":{"nabil":1,"NABIL":2,"Nabil":3}}}`), 0644)

	goals, _ := NewJSONFileStore(path).ListGoals(context.Background(), "100")
	if len(goals) != 1 {
		t.Fatalf("expected one goal, got %+v", goals)
	}
	if !goals["NABIL"].Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected the NABIL entry to win, got %s", goals["NABIL"])
	}
}

func TestJSONFileStore_WritesNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	s := NewJSONFileStore(path)

	if err := s.AddGoal(context.Background(), "100", "nabil", decimal.RequireFromString("500.25")); err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var raw map[string]map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not valid JSON: %v", err)
	}
	v, ok := raw["users"]["100"]["NABIL"].(float64)
	if !ok {
		t.Fatalf("expected numeric price, got %T", raw["users"]["100"]["NABIL"])
	}
	if v != 500.25 {
		t.Errorf("expected 500.25, got %v", v)
	}
}

func TestJSONFileStore_RemoveMissingLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	s := NewJSONFileStore(path)
	ctx := context.Background()

	s.AddGoal(ctx, "100", "NABIL", decimal.NewFromInt(500))
	before, _ := os.ReadFile(path)

	if err := s.RemoveGoal(ctx, "100", "NICA"); !errors.Is(err, domain.ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file must be unchanged after a not-found remove")
	}
}

func TestJSONFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes the rename fail
	path := filepath.Join(dir, "watchlist.json")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s := NewJSONFileStore(path)
	err := s.AddGoal(context.Background(), "100", "NABIL", decimal.NewFromInt(1))

	var se *domain.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "save" {
		t.Errorf("expected save op, got %s", se.Op)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".watchlist.json.*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestEncodeDocument_EmptyWatchlist(t *testing.T) {
	data, err := encodeDocument(domain.NewWatchlist())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var doc map[string]map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if users, ok := doc["users"]; !ok || len(users) != 0 {
		t.Errorf("expected {\"users\": {}}, got %s", data)
	}
}
