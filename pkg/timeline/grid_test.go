package timeline

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestGridForLevel(t *testing.T) {
	tests := []struct {
		name    string
		tpq     int
		level   int
		want    int64
		wantErr bool
	}{
		{"level 0 disables", 480, 0, 0, false},
		{"quarter/2", 480, 1, 240, false},
		{"quarter/16", 480, 4, 30, false},
		{"quarter/64", 480, 6, 7, false},
		{"grid of one tick disables", 48, 6, 0, false},
		{"negative level", 480, -1, 0, true},
		{"level too high", 480, 7, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := GridForLevel(tt.tpq, tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if g.Ticks != tt.want {
				t.Errorf("Ticks = %d, want %d", g.Ticks, tt.want)
			}
		})
	}
}

func TestGridSnap(t *testing.T) {
	g := Grid{Ticks: 120}
	tests := []struct {
		tick int64
		want int64
	}{
		{0, 0},
		{59, 0},
		{60, 120},
		{119, 120},
		{185, 240},
		{179, 120},
	}
	for _, tt := range tests {
		if got := g.Snap(tt.tick); got != tt.want {
			t.Errorf("Snap(%d) = %d, want %d", tt.tick, got, tt.want)
		}
	}
	if got := NoGrid.Snap(77); got != 77 {
		t.Errorf("NoGrid.Snap(77) = %d", got)
	}
}

// TestQuantizationIdempotenceProperty: snapping twice equals snapping once.
func TestQuantizationIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("snap is idempotent", prop.ForAll(
		func(tpq, level, tick int) bool {
			g, err := GridForLevel(tpq, level)
			if err != nil {
				return false
			}
			once := g.Snap(int64(tick))
			return g.Snap(once) == once
		},
		gen.IntRange(24, 1920),
		gen.IntRange(0, MaxQuantizationLevel),
		gen.IntRange(0, 10000000),
	))

	properties.TestingRun(t)
}
