package incident

import (
	"fmt"
	"os"

	"compatsuite/internal/logging"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Well-known dump message names.
const (
	SettingsDumpName protoreflect.FullName = "android.providers.settings.SettingsServiceDumpProto"
	SettingsCommand                        = "dumpsys settings --proto"
)

// Schema resolves dump message types from a descriptor set.
type Schema struct {
	files *protoregistry.Files
}

// NewSchema builds a schema from set. Files must be listed after their
// dependencies, as protoc --include_imports writes them.
func NewSchema(set *descriptorpb.FileDescriptorSet) (*Schema, error) {
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor set: %w", err)
	}
	return &Schema{files: files}, nil
}

// LoadSchema reads a binary FileDescriptorSet, as written by
// protoc --descriptor_set_out --include_imports.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor set: %w", err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor set %s: %w", path, err)
	}
	s, err := NewSchema(&set)
	if err != nil {
		return nil, err
	}
	logging.Incident("loaded %d proto files from %s", s.files.NumFiles(), path)
	return s, nil
}

// NewMessage returns an empty message of the named type.
func (s *Schema) NewMessage(name protoreflect.FullName) (*dynamicpb.Message, error) {
	d, err := s.files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("unknown message %s: %w", name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", name)
	}
	return dynamicpb.NewMessage(md), nil
}
