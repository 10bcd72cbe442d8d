package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want int }{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{10, 10},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSequenceCursorRoundtrip(t *testing.T) {
	t.Parallel()

	cursor := EncodeSequenceCursor(42)
	got, err := DecodeSequenceCursor(cursor)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestDecodeSequenceCursorRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, cursor := range []string{"not-base64!!", "c2VxfC01", "Zm9vfDQy", ""} {
		if _, err := DecodeSequenceCursor(cursor); err == nil {
			t.Fatalf("expected error for cursor %q", cursor)
		}
	}
}
