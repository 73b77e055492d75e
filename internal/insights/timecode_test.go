package insights

import "testing"

func TestTimecodeToMs(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0:00:02.500", 2500},
		{"1:02:03.000", 3723000},
		{"0:00:00", 0},
		{"0:00:07", 7000},
		{"100:00:00.0", 360_000_000},
		{"0:00:01.2346", 1235},
		{"bad", 0},
		{"", 0},
		{"1:2", 0},
		{"1:2:3:4", 0},
		{"a:00:01", 0},
		{"0:00:-1", 0},
	}
	for _, tt := range tests {
		if got := TimecodeToMs(tt.in); got != tt.want {
			t.Errorf("TimecodeToMs(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimecodeRejectsMalformed(t *testing.T) {
	if _, ok := ParseTimecode("bad"); ok {
		t.Fatal("expected malformed timecode to be rejected")
	}
	if ms, ok := ParseTimecode("0:01:00.250"); !ok || ms != 60250 {
		t.Fatalf("ParseTimecode = %d, %v", ms, ok)
	}
}

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00:00.000"},
		{2500, "0:00:02.500"},
		{3723000, "1:02:03.000"},
		{36_000_007, "10:00:00.007"},
	}
	for _, tt := range tests {
		if got := FormatTimecode(tt.ms); got != tt.want {
			t.Errorf("FormatTimecode(%d) = %q, want %q", tt.ms, got, tt.want)
		}
		if back := TimecodeToMs(tt.want); back != tt.ms {
			t.Errorf("round trip %q = %d, want %d", tt.want, back, tt.ms)
		}
	}
}
