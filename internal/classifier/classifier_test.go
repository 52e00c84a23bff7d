package classifier

import "testing"

func TestLookup(t *testing.T) {
	table := LoadCodeTable()
	if code, ok := Lookup(table, "L-DD-G-C"); !ok || code != 2 {
		t.Fatalf("expected code 2, got %d ok=%v", code, ok)
	}
	if code, ok := Lookup(table, "M-UU-G-N"); !ok || code != 81 {
		t.Fatalf("expected code 81, got %d ok=%v", code, ok)
	}
	if _, ok := Lookup(table, "INVALID"); ok {
		t.Fatalf("expected no match for invalid descriptor")
	}
}

func TestDecideFirstMatchElseIdle(t *testing.T) {
	table := Table{Entries: []TradeSignalEntry{
		{StatusCode: 2, Action: Call},
		{StatusCode: 2, Action: Put}, // unreachable: first match wins
		{StatusCode: 81, Action: Put},
	}}

	code2 := uint32(2)
	if a := table.Decide(&code2, nil, false); a != Call {
		t.Fatalf("expected Call from first-match rule, got %s", a)
	}

	code99 := uint32(99)
	if a := table.Decide(&code99, nil, false); a != Idle {
		t.Fatalf("expected Idle for unmatched code, got %s", a)
	}

	if a := table.Decide(nil, nil, false); a != Idle {
		t.Fatalf("expected Idle for nil status code, got %s", a)
	}
}

func TestDecideWithConditions(t *testing.T) {
	minRSI := 50.0
	table := Table{Entries: []TradeSignalEntry{
		{StatusCode: 2, Action: Call, Conditions: Condition{MinRSI: &minRSI}},
	}}

	code2 := uint32(2)
	low := 40.0
	if a := table.Decide(&code2, &low, false); a != Idle {
		t.Fatalf("expected Idle when RSI below condition floor, got %s", a)
	}

	high := 60.0
	if a := table.Decide(&code2, &high, false); a != Call {
		t.Fatalf("expected Call when RSI satisfies condition, got %s", a)
	}
}
