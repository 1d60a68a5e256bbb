package media

import "testing"

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.345000\n", 12345, false},
		{"0.000000", 0, false},
		{" 3.0005 \n", 3001, false},
		{"61.2\nextra\n", 61200, false},
		{"N/A\n", 0, true},
		{"", 0, true},
		{"-1.5", 0, true},
	}
	for _, tc := range cases {
		got, err := parseDuration(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseDuration(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("parseDuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCaptureConfigValidate(t *testing.T) {
	if err := SpeechConfig("/tmp/a.m4a").Validate(); err != nil {
		t.Fatalf("speech config invalid: %v", err)
	}
	bad := SpeechConfig("")
	if err := bad.Validate(); err == nil {
		t.Error("missing output path should fail")
	}
	bad = SpeechConfig("/tmp/a.m4a")
	bad.Encoder = "opus"
	if err := bad.Validate(); err == nil {
		t.Error("unsupported encoder should fail")
	}
	bad = SpeechConfig("/tmp/a.m4a")
	bad.SampleRate = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero sample rate should fail")
	}
}

func TestPeakLevel(t *testing.T) {
	// little-endian int16 samples: 100, -2000, 32767, -32768
	pcm := []byte{100, 0, 0x30, 0xf8, 0xff, 0x7f, 0x00, 0x80}
	if got := peakLevel(pcm); got != 32767 {
		t.Fatalf("peakLevel = %d, want 32767", got)
	}
	if got := peakLevel(pcm[:4]); got != 2000 {
		t.Fatalf("peakLevel = %d, want 2000", got)
	}
}

func TestBytesToMillis(t *testing.T) {
	// one second of 44.1 kHz stereo s16le
	if got := bytesToMillis(44100 * 4); got != 1000 {
		t.Fatalf("bytesToMillis = %d, want 1000", got)
	}
	if got := millisToBytes(500); got != 44100*2 {
		t.Fatalf("millisToBytes = %d, want %d", got, 44100*2)
	}
}
