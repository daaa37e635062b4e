package pickle

import "github.com/goptorch/ptpickle/ndarray"

// Class is a resolved foreign class reference, as produced by GLOBAL and
// STACK_GLOBAL (and, indirectly, by the extension opcodes which resolve a
// code to one of these). It mirrors the teacher's ogorek.go Class{Module,
// Name} pair so host code can pattern-match on it the same way.
type Class struct {
	Module string
	Name   string
}

// FQName joins Module and Name with the registry's divider.
func (c Class) FQName(divider string) string { return c.Module + divider + c.Name }

// Call is a pending reduction: a callable (usually an Object wrapping a
// Class) together with its argument tuple, exactly the teacher's
// Call{Callable, Args} shape.
type Call struct {
	Callable Value
	Args     Value
}

// CreateFunc manufactures an empty host Object for a resolved class.
type CreateFunc func(class Class) (Value, bool)

// InitFunc applies arguments (or BUILD state) to a previously created
// Object, returning the (possibly new) Object.
type InitFunc func(obj Value, args Value) (Value, error)

// Handler is one instantiator entry: it recognizes a set of fully-qualified
// foreign class names for create, and a set of type tags for initialize.
type Handler struct {
	ClassNames []string
	TypeTags   []string
	Create     CreateFunc
	Initialize InitFunc
}

// Registry is the process-wide instantiator catalogue: a lookup keyed by
// fully-qualified foreign class name (create) and by symbolic type tag
// (initialize). Mutation after first use is allowed but, per the
// concurrency model, unordered relative to concurrent loads — callers must
// serialize Add against in-flight Load calls themselves.
type Registry struct {
	divider string
	byClass map[string]Handler
	byTag   map[string]Handler
	ext     map[int64]Class
}

// NewRegistry returns a Registry with no handlers installed. divider joins
// a class's module and name when building the fully-qualified lookup key
// (Python's pickle uses "." — callers targeting other foreign formats may
// choose differently).
func NewRegistry(divider string) *Registry {
	return &Registry{
		divider: divider,
		byClass: map[string]Handler{},
		byTag:   map[string]Handler{},
		ext:     map[int64]Class{},
	}
}

// Add installs h, overwriting any prior handler registered under the same
// class names or type tags (registration is idempotent).
func (r *Registry) Add(h Handler) {
	for _, name := range h.ClassNames {
		r.byClass[name] = h
	}
	for _, tag := range h.TypeTags {
		r.byTag[tag] = h
	}
}

// RegisterExtension binds an EXT1/2/4 integer code to a (module, name)
// pair, populating the inverted extension registry the VM consults.
func (r *Registry) RegisterExtension(code int64, module, name string) {
	r.ext[code] = Class{Module: module, Name: name}
}

// resolveExtension looks up a previously registered extension code.
func (r *Registry) resolveExtension(code int64) (Class, bool) {
	c, ok := r.ext[code]
	return c, ok
}

// create returns an initial empty Object for (module, name), or, if no
// handler recognizes the fully-qualified name, a generic Object whose
// payload is an empty Dict and whose Tag is the fully-qualified name
// itself — the fallback that makes ordinary attribute-dict restoration
// (BUILD with no specific handler) possible. This resolves an ambiguity
// left open by the source format: create() can't return bare None and
// still support state restoration later, so unregistered classes get a
// dict-backed Object instead.
func (r *Registry) create(class Class) Value {
	if h, ok := r.byClass[class.FQName(r.divider)]; ok {
		if v, ok := h.Create(class); ok {
			return v
		}
	}
	return FromObject(NewDict(), class.FQName(r.divider))
}

// initialize dispatches by the object's type tag. If no handler matches,
// and both obj's payload and args are Dicts, args is merged into obj's
// dict in place (the generic attribute-restoration fallback from §4.2).
func (r *Registry) initialize(obj Value, args Value) (Value, error) {
	o, ok := obj.AsObject()
	if !ok {
		return Value{}, errKind(Malformed, "BUILD/REDUCE target is not an Object")
	}
	if h, ok := r.byTag[o.Tag]; ok {
		return h.Initialize(obj, args)
	}
	if d, ok := o.Payload.(*Dict); ok {
		if argDict, ok := args.Dict(); ok {
			mergeDict(d, argDict)
			return obj, nil
		}
	}
	return obj, nil
}

func mergeDict(dst, src *Dict) {
	src.Iter(func(k, v Value) bool {
		dst.Set(k, v)
		return true
	})
}

// --- Element-type mapping (§4.3) ---

// storageElementTypes maps a storage class name to its ndarray.DType.
// Quantized storages and complex-double are deliberately absent.
var storageElementTypes = map[string]ndarray.DType{
	"DoubleStorage":       ndarray.F64,
	"FloatStorage":        ndarray.F32,
	"HalfStorage":         ndarray.F16,
	"LongStorage":         ndarray.I64,
	"IntStorage":          ndarray.I32,
	"ShortStorage":        ndarray.I16,
	"CharStorage":         ndarray.I8,
	"ByteStorage":         ndarray.U8,
	"BoolStorage":         ndarray.Bool,
	"BFloat16Storage":     ndarray.BF16,
	"CompleteFloatStorage": ndarray.Complex64,
}

// StorageElementType returns the ndarray.DType a storage class name maps
// to, and whether the mapping exists.
func StorageElementType(className string) (ndarray.DType, bool) {
	dt, ok := storageElementTypes[className]
	return dt, ok
}

var storageClassNames = func() []string {
	names := make([]string, 0, len(storageElementTypes))
	for name := range storageElementTypes {
		names = append(names, name)
	}
	return names
}()

// NewDefaultRegistry returns a Registry with the three built-in handlers
// installed (§4.3): the tensor reconstructor, the untyped-storage handler,
// and the ordered-dict handler.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(".")
	r.Add(storageHandler())
	r.Add(tensorHandler())
	r.Add(orderedDictHandler())
	return r
}

// storageHandler recognizes the framework's per-dtype storage classes.
// create returns an empty-bytes Object tagged with the class name;
// initialize is a no-op — storages are populated by the persistent-load
// callback, not by construction arguments.
func storageHandler() Handler {
	classNames := make([]string, len(storageClassNames))
	for i, n := range storageClassNames {
		classNames[i] = "torch." + n
	}
	return Handler{
		ClassNames: classNames,
		TypeTags:   storageClassNames,
		Create: func(class Class) (Value, bool) {
			if _, ok := StorageElementType(class.Name); !ok {
				return Value{}, false
			}
			return FromObject([]byte(nil), class.Name), true
		},
		Initialize: func(obj Value, args Value) (Value, error) {
			return obj, nil
		},
	}
}

// tensorHandler recognizes torch._utils._rebuild_tensor_v2. It is invoked
// through REDUCE (the class reference pushed by GLOBAL is the callable,
// not a registered-by-name create/initialize pair), so its create returns
// false — Call handling in the VM routes _rebuild_tensor_v2 calls to
// buildTensor directly once the callable's Class is known.
func tensorHandler() Handler {
	return Handler{
		ClassNames: []string{"torch._utils._rebuild_tensor_v2"},
		TypeTags:   []string{"Tensor"},
		Create: func(class Class) (Value, bool) {
			return Value{}, false
		},
		Initialize: func(obj Value, args Value) (Value, error) {
			return obj, nil
		},
	}
}

// buildTensor implements the tensor reconstructor: given the reduction
// arguments (storage, storage-offset, shape, stride, requires-grad,
// backward-hooks, ...), it builds a host ndarray.Array from the storage's
// bytes (starting at storage-offset, counted in elements), element type and
// shape. Stride, requires-grad and backward-hooks are ignored — the host
// array library determines memory layout.
func buildTensor(args Value) (Value, error) {
	items, ok := args.Tuple()
	if !ok || len(items) < 3 {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: expected (storage, offset, shape, ...)")
	}
	storageObj, ok := items[0].AsObject()
	if !ok {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: storage argument is not an Object")
	}
	dtype, ok := StorageElementType(storageObj.Tag)
	if !ok {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: unsupported storage class "+storageObj.Tag)
	}
	data, _ := storageObj.Payload.([]byte)
	offset, ok := items[1].Int()
	if !ok || offset < 0 {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: storage offset is not a non-negative integer")
	}
	start := offset * int64(dtype.Size())
	if start > int64(len(data)) {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: storage offset past end of storage")
	}
	data = data[start:]

	shapeTuple, ok := items[2].Tuple()
	if !ok {
		return Value{}, errKind(Malformed, "_rebuild_tensor_v2: shape argument is not a tuple")
	}
	shape := make([]int64, len(shapeTuple))
	for i, sv := range shapeTuple {
		n, ok := sv.Int()
		if !ok {
			return Value{}, errKind(Malformed, "_rebuild_tensor_v2: non-integer shape element")
		}
		shape[i] = n
	}

	arr, err := ndarray.New(data, shape, dtype)
	if err != nil {
		return Value{}, errKind(Malformed, err.Error())
	}
	return FromObject(arr, "Tensor"), nil
}

// orderedDictHandler recognizes the ordered-mapping class. create returns
// an empty Dict-tagged Object; initialize consumes a list of 2-tuples and
// inserts each as a key/value pair.
func orderedDictHandler() Handler {
	return Handler{
		ClassNames: []string{"collections.OrderedDict"},
		TypeTags:   []string{"OrderedDict"},
		Create: func(class Class) (Value, bool) {
			return FromObject(NewDict(), "OrderedDict"), true
		},
		Initialize: func(obj Value, args Value) (Value, error) {
			o, ok := obj.AsObject()
			if !ok {
				return Value{}, errKind(Malformed, "OrderedDict initialize: not an Object")
			}
			d, ok := o.Payload.(*Dict)
			if !ok {
				return Value{}, errKind(Malformed, "OrderedDict initialize: payload is not a Dict")
			}
			items, ok := args.List()
			if !ok {
				if t, ok := args.Tuple(); ok {
					items = t
				} else {
					return Value{}, errKind(Malformed, "OrderedDict initialize: args is not a list of pairs")
				}
			}
			for _, it := range items {
				pair, ok := it.Tuple()
				if !ok || len(pair) != 2 {
					return Value{}, errKind(Malformed, "OrderedDict initialize: element is not a 2-tuple")
				}
				if err := d.Set(pair[0], pair[1]); err != nil {
					return Value{}, err
				}
			}
			return obj, nil
		},
	}
}
