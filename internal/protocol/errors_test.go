package protocol

import "testing"

func TestKnownCodes(t *testing.T) {
	for _, code := range []int{CodeMalformedRequest, CodeNotFound, CodeInvalidParams, CodeInternal} {
		if !IsKnownCode(code) {
			t.Fatalf("code %d should be known", code)
		}
	}
	if IsKnownCode(418) {
		t.Fatalf("418 is not a known code")
	}
}
