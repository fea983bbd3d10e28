package incident

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Collect returns every message of type target reachable from m through
// populated singular, repeated and map-valued fields. Values of type target
// are not searched further, and fields of m's own type are skipped.
func Collect(m protoreflect.Message, target protoreflect.FullName) []protoreflect.Message {
	var out []protoreflect.Message
	self := m.Descriptor().FullName()
	forEachMessage(m, func(fd protoreflect.FieldDescriptor, child protoreflect.Message) {
		switch name := child.Descriptor().FullName(); name {
		case target:
			out = append(out, child)
		case self:
		default:
			out = append(out, Collect(child, target)...)
		}
	})
	return out
}

// forEachMessage calls fn for every message value held directly by m, in
// field number order.
func forEachMessage(m protoreflect.Message, fn func(protoreflect.FieldDescriptor, protoreflect.Message)) {
	rangeFields(m, func(field, value protoreflect.FieldDescriptor, _ string, v protoreflect.Value) {
		if messageKind(value) {
			fn(field, v.Message())
		}
	})
}

func messageKind(fd protoreflect.FieldDescriptor) bool {
	k := fd.Kind()
	return k == protoreflect.MessageKind || k == protoreflect.GroupKind
}

// rangeFields visits the populated fields of m in field number order,
// flattening lists and maps into one call per element. value describes the
// element (the map value for maps) and index is "", "[i]" or "[key]".
func rangeFields(m protoreflect.Message, fn func(field, value protoreflect.FieldDescriptor, index string, v protoreflect.Value)) {
	fields := m.Descriptor().Fields()
	ordered := make([]protoreflect.FieldDescriptor, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		ordered = append(ordered, fields.Get(i))
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number() < ordered[j].Number() })

	for _, fd := range ordered {
		if !m.Has(fd) {
			continue
		}
		v := m.Get(fd)
		switch {
		case fd.IsMap():
			mp := v.Map()
			keys := make([]protoreflect.MapKey, 0, mp.Len())
			mp.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
				keys = append(keys, k)
				return true
			})
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
			for _, k := range keys {
				fn(fd, fd.MapValue(), "["+k.String()+"]", mp.Get(k))
			}
		case fd.IsList():
			l := v.List()
			for i := 0; i < l.Len(); i++ {
				fn(fd, fd, fmt.Sprintf("[%d]", i), l.Get(i))
			}
		default:
			fn(fd, fd, "", v)
		}
	}
}

// walk visits every populated scalar and enum value in the tree below m with
// a dotted path naming it. field is the declared field, value describes the
// visited element.
func walk(m protoreflect.Message, path string, fn func(path string, field, value protoreflect.FieldDescriptor, v protoreflect.Value)) {
	rangeFields(m, func(field, value protoreflect.FieldDescriptor, index string, v protoreflect.Value) {
		p := join(path, string(field.Name())) + index
		if messageKind(value) {
			walk(v.Message(), p, fn)
			return
		}
		fn(p, field, value, v)
	})
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
