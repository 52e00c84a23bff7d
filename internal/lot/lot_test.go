package lot

import "testing"

func TestMartingaleLadderSteps(t *testing.T) {
	c := New()
	c.Start(Config{
		Policy:       Martingale,
		InitialStake: 1,
		Ladder:       []float64{1, 2, 6, 8, 16, 54, 162},
		TargetProfit: 1000,
		TargetWin:    1000,
	})

	// L, L, W, L, L, L, L, L -> stakes requested before each result:
	// 1, 2, 6, 1, 2, 6, 8, 16
	wantStakes := []float64{1, 2, 6, 1, 2, 6, 8, 16}
	results := []float64{-1, -2, 6, -1, -2, -6, -8, -16}

	for i, want := range wantStakes {
		amount, denied := c.RequestStake(nil, "R_100")
		if denied {
			t.Fatalf("step %d: unexpectedly denied", i)
		}
		if amount != want {
			t.Errorf("step %d: stake = %v, want %v", i, amount, want)
		}
		c.OnResult("R_100", results[i])
	}
}

func TestLotStopsOnTargetProfit(t *testing.T) {
	c := New()
	c.Start(Config{
		Policy:       Fixed,
		InitialStake: 1,
		TargetProfit: 10,
		TargetWin:    1000,
	})

	for i := 0; i < 10; i++ {
		amount, denied := c.RequestStake(nil, "R_100")
		if denied {
			t.Fatalf("win %d: unexpectedly denied before target reached", i)
		}
		if amount != 1 {
			t.Errorf("win %d: stake = %v, want 1 (fixed policy)", i, amount)
		}
		c.OnResult("R_100", 1)
	}

	if _, denied := c.RequestStake(nil, "R_100"); !denied {
		t.Fatal("expected lot to deny stake requests once grandProfit >= targetProfit")
	}
}

func TestLotStopsOnTargetWin(t *testing.T) {
	c := New()
	c.Start(Config{Policy: Fixed, InitialStake: 5, TargetProfit: 1000, TargetWin: 2})

	c.RequestStake(nil, "R_100")
	c.OnResult("R_100", 1)
	c.RequestStake(nil, "R_100")
	c.OnResult("R_100", 1)

	if _, denied := c.RequestStake(nil, "R_100"); !denied {
		t.Fatal("expected lot to deny stake requests once winCount >= targetWin")
	}
}
