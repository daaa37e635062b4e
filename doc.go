// Package pickle decodes Python pickle streams (protocols 0 through 5) into
// a closed Value union, without ever executing arbitrary code: object
// construction goes through a pluggable instantiator Registry rather than
// Python's import-and-call machinery, so a malicious pickle can at most ask
// for a class that isn't registered and get back an empty Object.
//
// Decode an archive's object graph with Unpickle or UnpickleBytes:
//
//	v, err := pickle.UnpickleBytes(data, pickle.WithRegistry(pickle.NewDefaultRegistry()))
//
// Values are inspected through typed accessors (Int, Float, Str, Bytes,
// List, Tuple, Dict, Set, AsObject) rather than type assertions on
// interface{} — Value already knows its own Kind, so callers never need to
// reflect over it.
//
//	Python           Value accessor
//	------           --------------
//	None             IsNone()
//	bool             Bool()
//	int / long       Int()
//	float            Float()
//	str              Str()
//	bytes            Bytes()
//	list             List() / AppendList()
//	tuple            Tuple()
//	dict             Dict()
//	set / frozenset  Set()
//	instance         AsObject()
//
// # Instantiator registry
//
// Pickle's REDUCE, NEWOBJ, BUILD, GLOBAL and INST opcodes normally resolve
// a class by importing a Python module and calling into it. Here they
// resolve through a Registry instead: a Handler is registered for a set of
// fully-qualified class names and/or symbolic type tags, and supplies a
// Create/Initialize pair. A class with no matching Handler still decodes —
// it becomes a generic Object wrapping an empty Dict, and BUILD falls back
// to merging state into that Dict — it just never runs host code.
// NewDefaultRegistry wires the three handlers a PyTorch-style checkpoint
// needs: tensor storages, _rebuild_tensor_v2, and collections.OrderedDict.
//
// # Persistent references and out-of-band buffers
//
// A pickle stream can reference data that lives outside the stream itself
// — PERSIstent ID opcodes name something a calling application must resolve
// (the checkpoint package resolves these against a ZIP archive's per-tensor
// storage entries), and protocol 5's NEXT_BUFFER opcode draws from an
// out-of-band buffer list supplied via WithOOBBuffers. Absent a
// WithPersistentLoader callback, a persistent ID is logged and resolved to
// None rather than failing the whole decode — the one documented
// soft-failure path.
//
// # Framing
//
// Protocol 4 introduced FRAME opcodes that declare how many bytes follow
// until the next frame boundary or stream end; this package's unframer
// enforces that no read crosses a declared frame boundary, surfacing a
// violation as a FrameExhausted error rather than silently reading past it.
//
// # Errors
//
// All decode failures are *Error values from a closed ErrorKind taxonomy
// (see errors.go), compatible with errors.Is. Decoding a stream either
// returns a Value or a taxonomy error — it never panics.
package pickle
