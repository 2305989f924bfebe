package ride

import (
	"strconv"
	"testing"
)

func TestNewSafeCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := newSafeCode()
		if err != nil {
			t.Fatalf("newSafeCode: %v", err)
		}
		if len(code) != 4 {
			t.Fatalf("code %q is not 4 digits", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < 1000 || n > 9999 {
			t.Fatalf("code %q outside [1000, 9999]", code)
		}
	}
}

func TestSafeCodesMatch(t *testing.T) {
	if !safeCodesMatch("1234", "1234") {
		t.Error("equal codes should match")
	}
	if safeCodesMatch("1234", "4321") || safeCodesMatch("1234", "") || safeCodesMatch("1234", "12345") {
		t.Error("different codes should not match")
	}
}
