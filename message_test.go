package sserelay

import "testing"

var messageTests = []struct {
	payload     string
	expected    string
	description string
}{
	{"hello", "data: hello\n\n", "SingleLine"},
	{"a\nb", "data: a\ndata: b\n\n", "TwoLines"},
	{"", "data: \n\n", "Empty"},
	{"a\n", "data: a\ndata: \n\n", "TrailingNewline"},
	{"\n\n", "data: \ndata: \ndata: \n\n", "OnlyNewlines"},
	{"a\r\nb", "data: a\r\ndata: b\n\n", "CarriageReturnKept"},
}

func TestFormatData(t *testing.T) {
	for _, test := range messageTests {
		observed := FormatData([]byte(test.payload))
		if string(observed) != test.expected {
			t.Errorf("%s: Expected: %q, Actual: %q", test.description, test.expected, observed)
		}
	}
}

// the detached frame outlives its pooled storage being handed out again
func TestFormatDataDetached(t *testing.T) {
	first := FormatData([]byte("first"))
	FormatData([]byte("XXXXXXXXXXXXXXXX"))
	if string(first) != "data: first\n\n" {
		t.Errorf("frame changed after reuse of the pool: %q", first)
	}
}

func TestNewFrame(t *testing.T) {
	for _, test := range messageTests {
		frame, err := newFrame([]byte(test.payload))
		if err != nil {
			t.Fatalf("%s: %v", test.description, err)
		}
		if string(frame.Bytes()) != test.expected {
			t.Errorf("%s: Expected: %q, Actual: %q", test.description, test.expected, frame.Bytes())
		}
		frame.Release()
	}
}

func BenchmarkFormatData(b *testing.B) {
	for _, test := range messageTests {
		b.Run(test.description, func(b *testing.B) {
			payload := []byte(test.payload)
			for i := 0; i < b.N; i++ {
				FormatData(payload)
			}
		})
	}
}
