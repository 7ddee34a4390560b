package domain

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestGoalReached(t *testing.T) {
	goal := decimal.NewFromInt(500)

	t.Run("reached at goal", func(t *testing.T) {
		if !GoalReached(goal, decimal.NewFromInt(500)) {
			t.Error("Should be reached at goal price")
		}
	})

	t.Run("reached above goal", func(t *testing.T) {
		if !GoalReached(goal, decimal.NewFromFloat(500.1)) {
			t.Error("Should be reached above goal price")
		}
	})

	t.Run("not reached below goal", func(t *testing.T) {
		if GoalReached(goal, decimal.NewFromFloat(499.9)) {
			t.Error("Should not be reached below goal price")
		}
	})
}

func TestEvaluate_SingleGoalFires(t *testing.T) {
	w := NewWatchlist()
	w.SetGoal("100", "NABIL", decimal.NewFromInt(500))
	quotes := []Quote{{Symbol: "NABIL", LastTradedPrice: price(520)}}

	events, err := Evaluate(w, quotes)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.UserID != "100" || ev.Symbol != "NABIL" {
		t.Errorf("Unexpected event identity: %+v", ev)
	}
	if !ev.GoalPrice.Equal(decimal.NewFromInt(500)) || !ev.LastTradedPrice.Equal(decimal.NewFromInt(520)) {
		t.Errorf("Unexpected event prices: goal=%s ltp=%s", ev.GoalPrice, ev.LastTradedPrice)
	}
	if ev.Message() != "📈 **NABIL** reached **520** (Goal: 500)" {
		t.Errorf("Message = %q", ev.Message())
	}
}

func TestEvaluate_Matching(t *testing.T) {
	tests := []struct {
		name   string
		goals  map[string]int64
		quotes []Quote
		want   []string
	}{
		{
			name:   "below goal does not fire",
			goals:  map[string]int64{"NABIL": 500},
			quotes: []Quote{{Symbol: "NABIL", LastTradedPrice: price(499)}},
			want:   nil,
		},
		{
			name:   "case-insensitive symbol match",
			goals:  map[string]int64{"NABIL": 500},
			quotes: []Quote{{Symbol: "nabil", LastTradedPrice: price(600)}},
			want:   []string{"NABIL"},
		},
		{
			name:   "absent symbol is skipped",
			goals:  map[string]int64{"NABIL": 500, "NICA": 100},
			quotes: []Quote{{Symbol: "NICA", LastTradedPrice: price(100)}},
			want:   []string{"NICA"},
		},
		{
			name:  "first duplicate wins",
			goals: map[string]int64{"NABIL": 500},
			quotes: []Quote{
				{Symbol: "NABIL", LastTradedPrice: price(400)},
				{Symbol: "NABIL", LastTradedPrice: price(900)},
			},
			want: nil,
		},
		{
			name:  "several goals in sorted order",
			goals: map[string]int64{"UPPER": 1, "ADBL": 1, "NABIL": 1},
			quotes: []Quote{
				{Symbol: "NABIL", LastTradedPrice: price(2)},
				{Symbol: "UPPER", LastTradedPrice: price(2)},
				{Symbol: "ADBL", LastTradedPrice: price(2)},
			},
			want: []string{"ADBL", "NABIL", "UPPER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatchlist()
			for sym, p := range tt.goals {
				w.SetGoal("1", sym, decimal.NewFromInt(p))
			}

			events, err := Evaluate(w, tt.quotes)
			if err != nil {
				t.Fatalf("Evaluate returned error: %v", err)
			}

			var got []string
			for _, ev := range events {
				got = append(got, ev.Symbol)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_MultipleUsers(t *testing.T) {
	w := NewWatchlist()
	w.SetGoal("200", "NABIL", decimal.NewFromInt(510))
	w.SetGoal("100", "NABIL", decimal.NewFromInt(500))
	w.SetGoal("300", "NABIL", decimal.NewFromInt(530))
	quotes := []Quote{{Symbol: "NABIL", LastTradedPrice: price(520)}}

	events, _ := Evaluate(w, quotes)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].UserID != "100" || events[1].UserID != "200" {
		t.Errorf("Unexpected users: %s, %s", events[0].UserID, events[1].UserID)
	}
}

func TestEvaluate_MissingPrice(t *testing.T) {
	w := NewWatchlist()
	w.SetGoal("100", "NABIL", decimal.NewFromInt(500))
	w.SetGoal("100", "NICA", decimal.NewFromInt(100))
	quotes := []Quote{
		{Symbol: "NABIL"},
		{Symbol: "NICA", LastTradedPrice: price(150)},
	}

	events, err := Evaluate(w, quotes)
	if err == nil {
		t.Fatal("Expected error for quote without price")
	}
	var mpe *MissingPriceError
	if !errors.As(err, &mpe) || mpe.Symbol != "NABIL" {
		t.Errorf("Expected MissingPriceError for NABIL, got %v", err)
	}
	if len(events) != 1 || events[0].Symbol != "NICA" {
		t.Errorf("Other goals should still be evaluated, got %+v", events)
	}
}

func TestEvaluate_Pure(t *testing.T) {
	w := NewWatchlist()
	w.SetGoal("100", "NABIL", decimal.NewFromInt(500))
	w.SetGoal("200", "NICA", decimal.NewFromInt(900))
	quotes := []Quote{
		{Symbol: "nica", LastTradedPrice: price(950)},
		{Symbol: "NABIL", LastTradedPrice: price(520)},
	}

	first, _ := Evaluate(w, quotes)
	second, _ := Evaluate(w, quotes)
	if !reflect.DeepEqual(first, second) {
		t.Error("Repeated evaluation should yield identical output")
	}

	if quotes[0].Symbol != "nica" {
		t.Error("Quotes must not be mutated")
	}
	if len(w.Users) != 2 || len(w.Users["100"]) != 1 {
		t.Error("Watchlist must not be mutated")
	}
}

func TestEvaluate_NilWatchlist(t *testing.T) {
	events, err := Evaluate(nil, []Quote{{Symbol: "NABIL", LastTradedPrice: price(1)}})
	if err != nil || events != nil {
		t.Errorf("Expected no events and no error, got %v, %v", events, err)
	}
}
