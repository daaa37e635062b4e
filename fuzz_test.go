package pickle

import "testing"

// FuzzDecodeNeverPanics checks the one property that survives without an
// encoder to round-trip through: decoding arbitrary bytes either returns a
// Value or a taxonomy *Error, and never panics.
func FuzzDecodeNeverPanics(f *testing.F) {
	seeds := [][]byte{
		{},
		{opStop},
		{opProto, 2, opEmptyDict, opStop},
		{opMark, opBinint1, 1, opList, opStop},
		{opFrame, 2, 0, 0, 0, 0, 0, 0, 0, opBinint1, 9, 9, opStop},
		{opBinget, 0},
		{opLong1, 0x02, 0xFF, 0xFF, opStop},
		{opShortBinUnicode, 1, 'x', opBinpersid, opStop},
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("UnpickleBytes panicked on %x: %v", data, r)
			}
		}()
		_, _ = UnpickleBytes(data)
	})
}
