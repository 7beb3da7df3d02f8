package plan

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	tests := []struct {
		tier Tier
		want int64
	}{
		{TierFree, 100},
		{TierBasic, 500},
		{TierPremium, 2000},
		{TierEnterprise, 10000},
		{Tier("platinum"), 100}, // unknown tier falls back to free allotment
		{Tier(""), 100},
	}

	for _, tt := range tests {
		if got := c.Ceiling(tt.tier); got != tt.want {
			t.Errorf("Ceiling(%q): got %d, want %d", tt.tier, got, tt.want)
		}
	}

	if len(c.Tiers()) != 4 {
		t.Errorf("Tiers: got %d, want 4", len(c.Tiers()))
	}
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(map[Tier]int64{TierFree: 50}, 25)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if got := c.Ceiling(TierFree); got != 50 {
		t.Errorf("Ceiling(free): got %d, want 50", got)
	}
	if got := c.Ceiling(TierBasic); got != 25 {
		t.Errorf("Ceiling(basic): got %d, want fallback 25", got)
	}

	if _, err := NewCatalog(map[Tier]int64{TierFree: 0}, 25); err == nil {
		t.Error("expected error for zero ceiling")
	}
	if _, err := NewCatalog(nil, -1); err == nil {
		t.Error("expected error for non-positive fallback")
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"free", TierFree, false},
		{"Basic", TierBasic, false},
		{" PREMIUM ", TierPremium, false},
		{"enterprise", TierEnterprise, false},
		{"platinum", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTier(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTier(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q): got %s, want %s", tt.input, got, tt.want)
		}
	}
}
