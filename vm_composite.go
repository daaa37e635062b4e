package pickle

// loadTupleFromMark implements TUPLE: pop items back to the last MARK,
// push a tuple preserving pop order (first pushed → first in sequence).
func (v *VM) loadTupleFromMark() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	v.push(MakeTuple(items...))
	return nil
}

// loadTupleN implements TUPLE1/2/3: pop exactly n items, push a tuple.
func (v *VM) loadTupleN(n int) error {
	if len(v.stack) < n {
		return errKind(Malformed, "TUPLE: stack underflow")
	}
	split := len(v.stack) - n
	items := append([]Value(nil), v.stack[split:]...)
	v.stack = v.stack[:split]
	v.push(MakeTuple(items...))
	return nil
}

// loadListFromMark implements LIST: pop items back to the last MARK, push
// a list preserving pop order.
func (v *VM) loadListFromMark() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	v.push(List(items...))
	return nil
}

// loadDictFromMark implements DICT: pop key/value pairs back to the last
// MARK, building a dict. An odd trailing item is dropped, per the format's
// documented behavior.
func (v *VM) loadDictFromMark() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	d := NewDictWithSizeHint(len(items) / 2)
	for i := 0; i+1 < len(items); i += 2 {
		if err := d.Set(items[i], items[i+1]); err != nil {
			return err
		}
	}
	v.push(FromDict(d))
	return nil
}

// loadFrozensetFromMark implements FROZENSET: pop items back to the last
// MARK, building an (immutable in name only, here) Set.
func (v *VM) loadFrozensetFromMark() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	s := NewSet()
	for _, it := range items {
		if err := s.Add(it); err != nil {
			return err
		}
	}
	v.push(FromSet(s))
	return nil
}

// loadAppend implements APPEND: pop top-of-stack, append it to the list
// now exposed below it.
func (v *VM) loadAppend() error {
	item, err := v.pop()
	if err != nil {
		return err
	}
	lst, err := v.top()
	if err != nil {
		return err
	}
	if !lst.AppendList(item) {
		return errKind(Malformed, "APPEND: target is not a List")
	}
	return nil
}

// loadAppends implements APPENDS: pop items back to the last MARK, extend
// the list now exposed below the mark.
func (v *VM) loadAppends() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	lst, err := v.top()
	if err != nil {
		return err
	}
	if !lst.AppendList(items...) {
		return errKind(Malformed, "APPENDS: target is not a List")
	}
	return nil
}

// loadSetitem implements SETITEM: pop (value, key), set key→value on the
// dict now exposed below them.
func (v *VM) loadSetitem() error {
	value, err := v.pop()
	if err != nil {
		return err
	}
	key, err := v.pop()
	if err != nil {
		return err
	}
	d, err := v.dictTop()
	if err != nil {
		return err
	}
	return d.Set(key, value)
}

// loadSetitems implements SETITEMS: pop key/value pairs back to the last
// MARK, set each on the dict now exposed below the mark. An odd trailing
// item is dropped.
func (v *VM) loadSetitems() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	d, err := v.dictTop()
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(items); i += 2 {
		if err := d.Set(items[i], items[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// loadAdditems implements ADDITEMS: pop items back to the last MARK, add
// each to the set now exposed below the mark.
func (v *VM) loadAdditems() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	top, err := v.top()
	if err != nil {
		return err
	}
	s, ok := top.Set()
	if !ok {
		return errKind(Malformed, "ADDITEMS: target is not a Set")
	}
	for _, it := range items {
		if err := s.Add(it); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) dictTop() (*Dict, error) {
	t, err := v.top()
	if err != nil {
		return nil, err
	}
	d, ok := t.Dict()
	if !ok {
		return nil, errKind(Malformed, "expected a Dict on top of stack")
	}
	return d, nil
}
