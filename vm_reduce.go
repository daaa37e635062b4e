package pickle

import "encoding/binary"

// applyReduction is the shared path REDUCE, NEWOBJ, NEWOBJ_EX, INST and OBJ
// all resolve to: look up the target class via the instantiator registry,
// create an empty host object, initialize it with the argument value. The
// tensor reconstructor is special-cased here because its callable
// (_rebuild_tensor_v2) is never registered as a Tag-keyed handler — it is
// resolved by the fully-qualified class name GLOBAL already stamped onto
// the callable's Object as its Tag when no other handler claimed it.
func (v *VM) applyReduction(callable, args Value) (Value, error) {
	if obj, ok := callable.AsObject(); ok && obj.Tag == "torch._utils._rebuild_tensor_v2" {
		return buildTensor(args)
	}
	return v.registry.initialize(callable, args)
}

// doReduce implements REDUCE: pop (args, callable), apply, push the result.
func (v *VM) doReduce() error {
	args, err := v.pop()
	if err != nil {
		return err
	}
	callable, err := v.pop()
	if err != nil {
		return err
	}
	result, err := v.applyReduction(callable, args)
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

// doNewobj implements NEWOBJ: pop (args, cls), apply, push the result.
func (v *VM) doNewobj() error {
	args, err := v.pop()
	if err != nil {
		return err
	}
	cls, err := v.pop()
	if err != nil {
		return err
	}
	result, err := v.applyReduction(cls, args)
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

// doNewobjEx implements NEWOBJ_EX: pop (kwargs, args, cls). kwargs is
// discarded — none of the three built-in handlers accept keyword
// arguments, and the framework's checkpoint format never populates it.
func (v *VM) doNewobjEx() error {
	_, err := v.pop() // kwargs
	if err != nil {
		return err
	}
	args, err := v.pop()
	if err != nil {
		return err
	}
	cls, err := v.pop()
	if err != nil {
		return err
	}
	result, err := v.applyReduction(cls, args)
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

// doInst implements INST: read module and class name as text lines, pop
// positional args back to the last MARK, apply, push the result.
func (v *VM) doInst() error {
	module, err := v.readTextLine()
	if err != nil {
		return err
	}
	name, err := v.readTextLine()
	if err != nil {
		return err
	}
	args, err := v.popToMark()
	if err != nil {
		return err
	}
	cls := v.registry.create(Class{Module: module, Name: name})
	result, err := v.applyReduction(cls, MakeTuple(args...))
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

// doObj implements OBJ: pop back to the last MARK; the first item pushed
// after the MARK is the class reference, the rest are positional args.
func (v *VM) doObj() error {
	items, err := v.popToMark()
	if err != nil {
		return err
	}
	if len(items) < 1 {
		return errKind(Malformed, "OBJ: expected a class reference before MARK")
	}
	result, err := v.applyReduction(items[0], MakeTuple(items[1:]...))
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

// doBuild implements BUILD: pop (state, object), re-enter the registry to
// run the object's initializer with state as argument.
func (v *VM) doBuild() error {
	state, err := v.pop()
	if err != nil {
		return err
	}
	obj, err := v.pop()
	if err != nil {
		return err
	}
	if o, ok := obj.AsObject(); ok {
		if _, handled := v.registry.byTag[o.Tag]; !handled {
			if _, isDict := o.Payload.(*Dict); isDict && state.Kind() == KindDict {
				v.log.Warn("pickle: BUILD with no registered handler; merging state into Dict", "tag", o.Tag)
			}
		}
	}
	result, err := v.registry.initialize(obj, state)
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

func (v *VM) readTextLine() (string, error) {
	line, err := v.readline()
	if err != nil {
		return "", err
	}
	return string(trimNL(line)), nil
}

// loadGlobal implements GLOBAL: read module and class name as text lines,
// push whatever the registry's create step returns.
func (v *VM) loadGlobal() error {
	module, err := v.readTextLine()
	if err != nil {
		return err
	}
	name, err := v.readTextLine()
	if err != nil {
		return err
	}
	v.push(v.registry.create(Class{Module: module, Name: name}))
	return nil
}

// loadStackGlobal implements STACK_GLOBAL: same as GLOBAL but module/name
// come from the stack as Strings.
func (v *VM) loadStackGlobal() error {
	name, err := v.pop()
	if err != nil {
		return err
	}
	module, err := v.pop()
	if err != nil {
		return err
	}
	nameS, ok := name.Str()
	if !ok {
		return errKind(Malformed, "STACK_GLOBAL: name is not a String")
	}
	moduleS, ok := module.Str()
	if !ok {
		return errKind(Malformed, "STACK_GLOBAL: module is not a String")
	}
	v.push(v.registry.create(Class{Module: moduleS, Name: nameS}))
	return nil
}

// loadExt implements EXT1/2/4: resolve an integer code through the
// inverted extension registry, then proceed as for GLOBAL.
func (v *VM) loadExt(widthBytes int) error {
	b, err := v.readN(widthBytes)
	if err != nil {
		return err
	}
	var code int64
	switch widthBytes {
	case 1:
		code = int64(b[0])
	case 2:
		code = int64(binary.LittleEndian.Uint16(b))
	case 4:
		code = int64(binary.LittleEndian.Uint32(b))
	}
	class, ok := v.registry.resolveExtension(code)
	if !ok {
		return errKindArg(UnregisteredExtension, code, "")
	}
	v.push(v.registry.create(class))
	return nil
}

// loadPersid implements PERSID: read an ASCII line, invoke the
// persistent-load callback with it.
func (v *VM) loadPersid() error {
	line, err := v.readTextLine()
	if err != nil {
		return err
	}
	return v.handlePersistentID(Str(line))
}

// loadBinPersid implements BINPERSID: pop the top of the stack as the id.
func (v *VM) loadBinPersid() error {
	pid, err := v.pop()
	if err != nil {
		return err
	}
	return v.handlePersistentID(pid)
}

// handlePersistentID invokes the persistent-load callback, or, if none is
// installed, logs and pushes None — the one documented soft-failure path.
func (v *VM) handlePersistentID(pid Value) error {
	if v.persistentLoad == nil {
		v.log.Warn("pickle: persistent id encountered with no loader installed", "pid", pid.GoString())
		v.push(None)
		return nil
	}
	result, err := v.persistentLoad(pid)
	if err != nil {
		return errKind(UnsupportedPersistentID, err.Error())
	}
	v.push(result)
	return nil
}

// loadBytearray8 implements BYTEARRAY8: read an 8-byte length prefix, push
// the following bytes as a Bytes Value (the Value model has no separate
// mutable-bytearray variant).
func (v *VM) loadBytearray8() error {
	b, err := v.readN(8)
	if err != nil {
		return err
	}
	n := binary.LittleEndian.Uint64(b)
	if n > maxSaneAlloc {
		return errKind(ExceedsMaxSize, "BYTEARRAY8")
	}
	raw, err := v.readN(int(n))
	if err != nil {
		return err
	}
	v.push(Bytes(raw))
	return nil
}

// loadNextBuffer implements NEXT_BUFFER: consume the next element of the
// configured out-of-band buffer iterator.
func (v *VM) loadNextBuffer() error {
	if v.oobIndex >= len(v.oobBuffers) {
		return errKind(Malformed, "NEXT_BUFFER: no out-of-band buffer available")
	}
	buf := v.oobBuffers[v.oobIndex]
	v.oobIndex++
	v.push(buf)
	return nil
}

const maxSaneAlloc = 1 << 34
