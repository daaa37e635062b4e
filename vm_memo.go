package pickle

import (
	"encoding/binary"
	"strconv"
)

// loadPut implements PUT: store top-of-stack at an operand-provided
// decimal-text index.
func (v *VM) loadPut() error {
	line, err := v.readline()
	if err != nil {
		return err
	}
	idx, err := strconv.ParseInt(string(trimNL(line)), 10, 64)
	if err != nil {
		return errKind(Malformed, "PUT: "+err.Error())
	}
	return v.memoize(idx)
}

// loadBinput implements BINPUT: store top-of-stack at a 1-byte index.
func (v *VM) loadBinput() error {
	b, err := v.readN(1)
	if err != nil {
		return err
	}
	return v.memoize(int64(b[0]))
}

// loadLongBinput implements LONG_BINPUT: store top-of-stack at a 4-byte
// little-endian index.
func (v *VM) loadLongBinput() error {
	b, err := v.readN(4)
	if err != nil {
		return err
	}
	return v.memoize(int64(binary.LittleEndian.Uint32(b)))
}

// doMemoize implements MEMOIZE: store top-of-stack at an index equal to
// the current memo size.
func (v *VM) doMemoize() error {
	return v.memoize(int64(len(v.memo)))
}

func (v *VM) memoize(idx int64) error {
	if idx < 0 {
		return errKind(NegativeArgument, "memo index must be non-negative")
	}
	t, err := v.top()
	if err != nil {
		return err
	}
	v.memo[idx] = t
	return nil
}

// loadGet implements GET: push the memoized value named by an
// operand-provided decimal-text index.
func (v *VM) loadGet() error {
	line, err := v.readline()
	if err != nil {
		return err
	}
	idx, err := strconv.ParseInt(string(trimNL(line)), 10, 64)
	if err != nil {
		return errKind(Malformed, "GET: "+err.Error())
	}
	return v.pushMemo(idx)
}

// loadBinget implements BINGET: push the memoized value named by a 1-byte index.
func (v *VM) loadBinget() error {
	b, err := v.readN(1)
	if err != nil {
		return err
	}
	return v.pushMemo(int64(b[0]))
}

// loadLongBinget implements LONG_BINGET: push the memoized value named by
// a 4-byte little-endian index.
func (v *VM) loadLongBinget() error {
	b, err := v.readN(4)
	if err != nil {
		return err
	}
	return v.pushMemo(int64(binary.LittleEndian.Uint32(b)))
}

func (v *VM) pushMemo(idx int64) error {
	val, ok := v.memo[idx]
	if !ok {
		return errKindArg(MemoNotFound, idx, "")
	}
	v.push(val)
	return nil
}
