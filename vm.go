// Package pickle implements a stack-based virtual machine for the Python
// pickle binary format, protocols 0 through 5, together with a pluggable
// instantiator registry for reconstructing foreign objects into host
// values. It is built to load the dominant deep-learning framework's
// checkpoint pickles, not to be a general-purpose pickle library: reduction
// requests are routed through the registry or refused, never executed as
// arbitrary code.
package pickle

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"math/big"
	"strconv"
)

// Opcodes, following the teacher's naming (op<Name>) and byte values.
const (
	// Protocol 0
	opMark    byte = '('
	opStop    byte = '.'
	opPop     byte = '0'
	opPopMark byte = '1'
	opDup     byte = '2'
	opFloat   byte = 'F'
	opInt     byte = 'I'
	opLong    byte = 'L'
	opNone    byte = 'N'
	opPersid  byte = 'P'
	opReduce  byte = 'R'
	opString  byte = 'S'
	opUnicode byte = 'V'
	opAppend  byte = 'a'
	opBuild   byte = 'b'
	opGlobal  byte = 'c'
	opDict    byte = 'd'
	opGet     byte = 'g'
	opInst    byte = 'i'
	opList    byte = 'l'
	opPut     byte = 'p'
	opSetitem byte = 's'
	opTuple   byte = 't'

	// Protocol 1
	opBinint         byte = 'J'
	opBinint1        byte = 'K'
	opBinint2        byte = 'M'
	opBinpersid      byte = 'Q'
	opBinstring      byte = 'T'
	opShortBinstring byte = 'U'
	opBinunicode     byte = 'X'
	opAppends        byte = 'e'
	opBinget         byte = 'h'
	opLongBinget     byte = 'j'
	opEmptyList      byte = ']'
	opEmptyTuple     byte = ')'
	opEmptyDict      byte = '}'
	opObj            byte = 'o'
	opBinput         byte = 'q'
	opLongBinput     byte = 'r'
	opSetitems       byte = 'u'
	opBinfloat       byte = 'G'

	// Protocol 2
	opProto    byte = '\x80'
	opNewobj   byte = '\x81'
	opExt1     byte = '\x82'
	opExt2     byte = '\x83'
	opExt4     byte = '\x84'
	opTuple1   byte = '\x85'
	opTuple2   byte = '\x86'
	opTuple3   byte = '\x87'
	opNewtrue  byte = '\x88'
	opNewfalse byte = '\x89'
	opLong1    byte = '\x8a'
	opLong4    byte = '\x8b'

	// Protocol 3
	opBinbytes      byte = 'B'
	opShortBinbytes byte = 'C'

	// Protocol 4
	opShortBinUnicode byte = '\x8c'
	opBinunicode8     byte = '\x8d'
	opBinbytes8       byte = '\x8e'
	opEmptySet        byte = '\x8f'
	opAdditems        byte = '\x90'
	opFrozenset       byte = '\x91'
	opNewobjEx        byte = '\x92'
	opStackGlobal     byte = '\x93'
	opMemoize         byte = '\x94'
	opFrame           byte = '\x95'

	// Protocol 5
	opBytearray8      byte = '\x96'
	opNextBuffer      byte = '\x97'
	opReadonlyBuffer  byte = '\x98'
)

// StringEncoding selects how the legacy 8-bit string opcodes (STRING,
// SHORT_BINSTRING, BINSTRING) decode their payload.
type StringEncoding int

const (
	// EncodingASCII is the default: payload must be valid ASCII.
	EncodingASCII StringEncoding = iota
	// EncodingUTF8 decodes the payload as UTF-8.
	EncodingUTF8
	// EncodingBytesHex renders the payload as a hex string instead of
	// attempting text decoding, for archives with non-ASCII 8-bit strings.
	EncodingBytesHex
)

const divider = "."

// PersistentLoader resolves a persistent-id record (the argument list or
// scalar pushed by PERSID/BINPERSID) into a Value. It may be absent, in
// which case persistent-id opcodes push None and log.
type PersistentLoader func(pid Value) (Value, error)

// Option configures a VM at construction time.
type Option func(*VM)

// WithRegistry installs the instantiator registry a VM consults for
// REDUCE/NEWOBJ/NEWOBJ_EX/INST/OBJ/BUILD/GLOBAL/STACK_GLOBAL/EXT handling.
// Defaults to NewDefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(v *VM) { v.registry = r }
}

// WithPersistentLoader installs the persistent-id callback.
func WithPersistentLoader(p PersistentLoader) Option {
	return func(v *VM) { v.persistentLoad = p }
}

// WithStringEncoding selects the legacy 8-bit string codec. Default ascii.
func WithStringEncoding(enc StringEncoding) Option {
	return func(v *VM) { v.stringEncoding = enc }
}

// WithOOBBuffers installs the out-of-band buffer iterator NEXT_BUFFER
// consumes from. Absent by default; NEXT_BUFFER fails if needed and absent.
func WithOOBBuffers(buffers []Value) Option {
	return func(v *VM) { v.oobBuffers = buffers }
}

// WithLogger overrides the logger used for the two documented soft paths
// (absent PersistentLoad, BUILD-without-handler Dict merge). Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *VM) { v.log = l }
}

type vmState int

const (
	stateFresh vmState = iota
	stateRunning
	stateTerminated
)

// VM is a one-shot stack-based interpreter for a single pickle stream.
// Construct one per Load call; state is not reset, matching the source
// format's "VM is single-shot" invariant.
type VM struct {
	fr  frameReader
	src byteSource

	stack     []Value
	metastack [][]Value
	memo      map[int64]Value

	registry       *Registry
	persistentLoad PersistentLoader
	stringEncoding StringEncoding
	oobBuffers     []Value
	oobIndex       int
	log            *slog.Logger

	protocol int
	state    vmState
}

// NewVM constructs a VM reading opcodes from r.
func NewVM(r io.Reader, opts ...Option) *VM {
	src := newReaderSource(r)
	return newVM(src, opts...)
}

// NewVMFromBytes constructs a VM reading opcodes from an in-memory buffer,
// avoiding the bufio indirection NewVM uses.
func NewVMFromBytes(b []byte, opts ...Option) *VM {
	src := newBytesSource(b)
	return newVM(src, opts...)
}

func newVM(src byteSource, opts ...Option) *VM {
	v := &VM{
		src:            src,
		fr:             newUnframer(src),
		memo:           make(map[int64]Value),
		registry:       NewDefaultRegistry(),
		stringEncoding: EncodingASCII,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Unpickle is the package-level one-shot convenience function: construct a
// VM over r and run it to completion.
func Unpickle(r io.Reader, opts ...Option) (Value, error) {
	return NewVM(r, opts...).Load()
}

// UnpickleBytes is Unpickle over an in-memory buffer.
func UnpickleBytes(b []byte, opts ...Option) (Value, error) {
	return NewVMFromBytes(b, opts...).Load()
}

// Load consumes opcodes until STOP and returns the value left on the
// stack. A VM is single-shot: calling Load a second time fails.
func (v *VM) Load() (Value, error) {
	if v.state == stateTerminated {
		return Value{}, errKind(Malformed, "VM already terminated; construct a new one")
	}
	v.state = stateRunning

	result, err := v.run()
	v.state = stateTerminated
	if err != nil {
		return Value{}, err
	}
	return result, nil
}

func (v *VM) run() (Value, error) {
	for {
		op, err := v.readByte()
		if err != nil {
			return Value{}, err
		}

		switch op {
		case opMark:
			v.doMark()
		case opStop:
			return v.pop()
		case opPop:
			if err := v.doPop(); err != nil {
				return Value{}, err
			}
		case opPopMark:
			if err := v.doPopMark(); err != nil {
				return Value{}, err
			}
		case opDup:
			if err := v.doDup(); err != nil {
				return Value{}, err
			}
		case opFloat:
			if err := v.loadFloat(); err != nil {
				return Value{}, err
			}
		case opBinfloat:
			if err := v.loadBinFloat(); err != nil {
				return Value{}, err
			}
		case opInt:
			if err := v.loadInt(); err != nil {
				return Value{}, err
			}
		case opBinint:
			if err := v.loadBinInt(); err != nil {
				return Value{}, err
			}
		case opBinint1:
			if err := v.loadBinInt1(); err != nil {
				return Value{}, err
			}
		case opBinint2:
			if err := v.loadBinInt2(); err != nil {
				return Value{}, err
			}
		case opLong:
			if err := v.loadLong(); err != nil {
				return Value{}, err
			}
		case opLong1:
			if err := v.loadLong1(); err != nil {
				return Value{}, err
			}
		case opLong4:
			if err := v.loadLong4(); err != nil {
				return Value{}, err
			}
		case opNone:
			v.push(None)
		case opNewtrue:
			v.push(Bool(true))
		case opNewfalse:
			v.push(Bool(false))
		case opString:
			if err := v.loadString(); err != nil {
				return Value{}, err
			}
		case opBinstring:
			if err := v.loadBinString(); err != nil {
				return Value{}, err
			}
		case opShortBinstring:
			if err := v.loadShortBinString(); err != nil {
				return Value{}, err
			}
		case opUnicode:
			if err := v.loadUnicode(); err != nil {
				return Value{}, err
			}
		case opBinunicode:
			if err := v.loadBinUnicode(4); err != nil {
				return Value{}, err
			}
		case opBinunicode8:
			if err := v.loadBinUnicode(8); err != nil {
				return Value{}, err
			}
		case opShortBinUnicode:
			if err := v.loadShortBinUnicode(); err != nil {
				return Value{}, err
			}
		case opBinbytes:
			if err := v.loadBinBytes(4); err != nil {
				return Value{}, err
			}
		case opShortBinbytes:
			if err := v.loadShortBinBytes(); err != nil {
				return Value{}, err
			}
		case opBinbytes8:
			if err := v.loadBinBytes(8); err != nil {
				return Value{}, err
			}
		case opEmptyTuple:
			v.push(MakeTuple())
		case opEmptyList:
			v.push(List())
		case opEmptyDict:
			v.push(FromDict(NewDict()))
		case opEmptySet:
			v.push(FromSet(NewSet()))
		case opTuple:
			if err := v.loadTupleFromMark(); err != nil {
				return Value{}, err
			}
		case opTuple1:
			if err := v.loadTupleN(1); err != nil {
				return Value{}, err
			}
		case opTuple2:
			if err := v.loadTupleN(2); err != nil {
				return Value{}, err
			}
		case opTuple3:
			if err := v.loadTupleN(3); err != nil {
				return Value{}, err
			}
		case opList:
			if err := v.loadListFromMark(); err != nil {
				return Value{}, err
			}
		case opDict:
			if err := v.loadDictFromMark(); err != nil {
				return Value{}, err
			}
		case opFrozenset:
			if err := v.loadFrozensetFromMark(); err != nil {
				return Value{}, err
			}
		case opAppend:
			if err := v.loadAppend(); err != nil {
				return Value{}, err
			}
		case opAppends:
			if err := v.loadAppends(); err != nil {
				return Value{}, err
			}
		case opSetitem:
			if err := v.loadSetitem(); err != nil {
				return Value{}, err
			}
		case opSetitems:
			if err := v.loadSetitems(); err != nil {
				return Value{}, err
			}
		case opAdditems:
			if err := v.loadAdditems(); err != nil {
				return Value{}, err
			}
		case opPut:
			if err := v.loadPut(); err != nil {
				return Value{}, err
			}
		case opBinput:
			if err := v.loadBinput(); err != nil {
				return Value{}, err
			}
		case opLongBinput:
			if err := v.loadLongBinput(); err != nil {
				return Value{}, err
			}
		case opMemoize:
			if err := v.doMemoize(); err != nil {
				return Value{}, err
			}
		case opGet:
			if err := v.loadGet(); err != nil {
				return Value{}, err
			}
		case opBinget:
			if err := v.loadBinget(); err != nil {
				return Value{}, err
			}
		case opLongBinget:
			if err := v.loadLongBinget(); err != nil {
				return Value{}, err
			}
		case opGlobal:
			if err := v.loadGlobal(); err != nil {
				return Value{}, err
			}
		case opStackGlobal:
			if err := v.loadStackGlobal(); err != nil {
				return Value{}, err
			}
		case opExt1:
			if err := v.loadExt(1); err != nil {
				return Value{}, err
			}
		case opExt2:
			if err := v.loadExt(2); err != nil {
				return Value{}, err
			}
		case opExt4:
			if err := v.loadExt(4); err != nil {
				return Value{}, err
			}
		case opReduce:
			if err := v.doReduce(); err != nil {
				return Value{}, err
			}
		case opNewobj:
			if err := v.doNewobj(); err != nil {
				return Value{}, err
			}
		case opNewobjEx:
			if err := v.doNewobjEx(); err != nil {
				return Value{}, err
			}
		case opInst:
			if err := v.doInst(); err != nil {
				return Value{}, err
			}
		case opObj:
			if err := v.doObj(); err != nil {
				return Value{}, err
			}
		case opBuild:
			if err := v.doBuild(); err != nil {
				return Value{}, err
			}
		case opPersid:
			if err := v.loadPersid(); err != nil {
				return Value{}, err
			}
		case opBinpersid:
			if err := v.loadBinPersid(); err != nil {
				return Value{}, err
			}
		case opBytearray8:
			if err := v.loadBytearray8(); err != nil {
				return Value{}, err
			}
		case opNextBuffer:
			if err := v.loadNextBuffer(); err != nil {
				return Value{}, err
			}
		case opReadonlyBuffer:
			// no-op: the host has no mutability distinction at this layer.
		case opProto:
			if err := v.loadProto(); err != nil {
				return Value{}, err
			}
		case opFrame:
			if err := v.loadFrameOp(); err != nil {
				return Value{}, err
			}
		default:
			return Value{}, errKindArg(UnknownOpcode, int64(op), "")
		}
	}
}

// --- byte source plumbing ---

func (v *VM) readByte() (byte, error) {
	b, err := v.fr.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v *VM) readN(n int) ([]byte, error) {
	return v.fr.read(n)
}

func (v *VM) readline() ([]byte, error) {
	line, err := v.fr.readline()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, EOF.Err()
	}
	return line, nil
}

// --- stack & metastack discipline ---

func (v *VM) push(val Value) { v.stack = append(v.stack, val) }

func (v *VM) pop() (Value, error) {
	n := len(v.stack) - 1
	if n < 0 {
		return Value{}, errKind(Malformed, "stack underflow")
	}
	val := v.stack[n]
	v.stack = v.stack[:n]
	return val, nil
}

func (v *VM) top() (Value, error) {
	n := len(v.stack) - 1
	if n < 0 {
		return Value{}, errKind(Malformed, "stack underflow")
	}
	return v.stack[n], nil
}

func (v *VM) doMark() {
	v.metastack = append(v.metastack, v.stack)
	v.stack = nil
}

func (v *VM) doPop() error {
	if len(v.stack) > 0 {
		_, err := v.pop()
		return err
	}
	n := len(v.metastack) - 1
	if n < 0 {
		return errKind(Malformed, "POP on empty stack with no mark")
	}
	v.stack = v.metastack[n]
	v.metastack = v.metastack[:n]
	return nil
}

// popToMark pops and returns everything pushed since the last MARK, in
// push order, restoring the stack to what it held before MARK.
func (v *VM) popToMark() ([]Value, error) {
	items := v.stack
	n := len(v.metastack) - 1
	if n < 0 {
		return nil, errKind(Malformed, "opcode requires a MARK but none is active")
	}
	v.stack = v.metastack[n]
	v.metastack = v.metastack[:n]
	return items, nil
}

func (v *VM) doPopMark() error {
	_, err := v.popToMark()
	return err
}

func (v *VM) doDup() error {
	t, err := v.top()
	if err != nil {
		return err
	}
	v.push(t)
	return nil
}

// --- protocol & framing ---

func (v *VM) loadProto() error {
	b, err := v.readN(1)
	if err != nil {
		return err
	}
	ver := int(b[0])
	if ver < 0 || ver > 5 {
		return errKindArg(UnsupportedProtocol, int64(ver), "")
	}
	v.protocol = ver
	return nil
}

func (v *VM) loadFrameOp() error {
	b, err := v.readN(8)
	if err != nil {
		return err
	}
	size := binary.LittleEndian.Uint64(b)
	if size > math.MaxInt32 {
		return errKind(ExceedsMaxSize, "FRAME size exceeds host capacity")
	}
	uf, ok := v.fr.(*unframer)
	if !ok {
		return errKind(Malformed, "FRAME opcode requires an unframer")
	}
	return uf.loadFrame(int(size))
}

// --- primitives: numbers ---

func (v *VM) loadFloat() error {
	line, err := v.readline()
	if err != nil {
		return err
	}
	f, err := strconv.ParseFloat(string(trimNL(line)), 64)
	if err != nil {
		return errKind(Malformed, "FLOAT: "+err.Error())
	}
	v.push(Float(f))
	return nil
}

func (v *VM) loadBinFloat() error {
	b, err := v.readN(8)
	if err != nil {
		return err
	}
	bits := binary.BigEndian.Uint64(b)
	v.push(Float(math.Float64frombits(bits)))
	return nil
}

func (v *VM) loadInt() error {
	raw, err := v.readline()
	if err != nil {
		return err
	}
	line := trimNL(raw)
	switch string(line) {
	case "00":
		v.push(Bool(false))
		return nil
	case "01":
		v.push(Bool(true))
		return nil
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return errKind(Malformed, "INT: "+err.Error())
	}
	v.push(Int(n))
	return nil
}

func mustLine(line []byte, err error) []byte {
	if err != nil {
		return nil
	}
	return line
}

func trimNL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		return line[:n-1]
	}
	return line
}

func (v *VM) loadBinInt() error {
	b, err := v.readN(4)
	if err != nil {
		return err
	}
	v.push(Int(int64(int32(binary.LittleEndian.Uint32(b)))))
	return nil
}

func (v *VM) loadBinInt1() error {
	b, err := v.readN(1)
	if err != nil {
		return err
	}
	v.push(Int(int64(b[0])))
	return nil
}

func (v *VM) loadBinInt2() error {
	b, err := v.readN(2)
	if err != nil {
		return err
	}
	v.push(Int(int64(binary.LittleEndian.Uint16(b))))
	return nil
}

func (v *VM) loadLong() error {
	raw, err := v.readline()
	if err != nil {
		return err
	}
	line := trimNL(raw)
	if len(line) < 1 || line[len(line)-1] != 'L' {
		return errKind(Malformed, "LONG: missing trailing L")
	}
	n := new(big.Int)
	if _, ok := n.SetString(string(line[:len(line)-1]), 10); !ok {
		return errKind(Malformed, "LONG: invalid integer text")
	}
	return v.pushBigInt(n)
}

func (v *VM) loadLong1() error {
	b, err := v.readN(1)
	if err != nil {
		return err
	}
	return v.loadLongBody(int(b[0]))
}

func (v *VM) loadLong4() error {
	b, err := v.readN(4)
	if err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n < 0 {
		return errKind(NegativeByteCount, "LONG4")
	}
	return v.loadLongBody(int(n))
}

func (v *VM) loadLongBody(n int) error {
	if n == 0 {
		v.push(Int(0))
		return nil
	}
	body, err := v.readN(n)
	if err != nil {
		return err
	}
	return v.pushBigInt(decodeTwosComplementLE(body))
}

func (v *VM) pushBigInt(n *big.Int) error {
	if !n.IsInt64() {
		return errKind(ExceedsMaxSize, "integer exceeds host width")
	}
	v.push(Int(n.Int64()))
	return nil
}

// decodeTwosComplementLE decodes a little-endian two's-complement integer,
// the format LONG1/LONG4 bodies use. Ported from the teacher's decodeLong.
func decodeTwosComplementLE(data []byte) *big.Int {
	decoded := big.NewInt(0)
	negative := false
	switch n := len(data); {
	case n < 1:
		return decoded
	case n > 1:
		if data[n-1] > 127 {
			negative = true
		}
		for i := n - 1; i >= 0; i-- {
			term := big.NewInt(int64(data[i]))
			term.Lsh(term, uint(8*i))
			decoded.Add(decoded, term)
		}
	default:
		if data[0] > 127 {
			negative = true
		}
		decoded = big.NewInt(int64(data[0]))
	}
	if negative {
		modulus := new(big.Int).Lsh(big.NewInt(1), uint(8*len(data)))
		decoded.Sub(decoded, modulus)
	}
	return decoded
}
