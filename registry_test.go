package pickle

import "testing"

func TestDefaultRegistryCreatesStorage(t *testing.T) {
	r := NewDefaultRegistry()
	v := r.create(Class{Module: "torch", Name: "FloatStorage"})
	obj, ok := v.AsObject()
	if !ok || obj.Tag != "FloatStorage" {
		t.Fatalf("create(torch.FloatStorage) = %s, want an Object tagged FloatStorage", v.GoString())
	}
	if _, ok := obj.Payload.([]byte); !ok {
		t.Fatalf("storage Object payload should be []byte, got %T", obj.Payload)
	}
}

func TestDefaultRegistryUnregisteredClassFallsBackToDict(t *testing.T) {
	r := NewDefaultRegistry()
	v := r.create(Class{Module: "some.module", Name: "Widget"})
	obj, ok := v.AsObject()
	if !ok {
		t.Fatalf("unregistered class should still decode to an Object")
	}
	if obj.Tag != "some.module.Widget" {
		t.Fatalf("Tag = %q, want the fully-qualified class name", obj.Tag)
	}
	d, ok := obj.Payload.(*Dict)
	if !ok || d.Len() != 0 {
		t.Fatalf("fallback payload should be an empty *Dict")
	}
}

func TestBuildTensorFromRebuildTensorV2Args(t *testing.T) {
	storage := FromObject([]byte{0, 0, 128, 63, 0, 0, 0, 64}, "FloatStorage") // [1.0, 2.0] as f32 LE
	args := MakeTuple(storage, Int(0), MakeTuple(Int(2)), MakeTuple(Int(1)))
	v, err := buildTensor(args)
	if err != nil {
		t.Fatalf("buildTensor: %v", err)
	}
	obj, ok := v.AsObject()
	if !ok || obj.Tag != "Tensor" {
		t.Fatalf("buildTensor result = %s, want a Tensor Object", v.GoString())
	}
}

func TestBuildTensorRejectsUnsupportedStorageClass(t *testing.T) {
	storage := FromObject([]byte{1, 2, 3, 4}, "NotAStorageClass")
	args := MakeTuple(storage, Int(0), MakeTuple(Int(1)))
	if _, err := buildTensor(args); err == nil {
		t.Fatalf("buildTensor with an unrecognized storage class should fail")
	}
}

func TestStorageElementTypeCoversAllBuiltins(t *testing.T) {
	for _, name := range storageClassNames {
		if _, ok := StorageElementType(name); !ok {
			t.Errorf("StorageElementType(%q) not found", name)
		}
	}
}

func TestRegistryExtensionResolution(t *testing.T) {
	r := NewRegistry(".")
	r.RegisterExtension(42, "copy_reg", "_reconstructor")
	c, ok := r.resolveExtension(42)
	if !ok || c.FQName(".") != "copy_reg._reconstructor" {
		t.Fatalf("resolveExtension(42) = %v, %v", c, ok)
	}
	if _, ok := r.resolveExtension(7); ok {
		t.Fatalf("resolveExtension(7) should not be registered")
	}
}
