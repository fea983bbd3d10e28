package incident

import (
	"fmt"
	"strconv"

	"compatsuite/internal/logging"

	"go.uber.org/multierr"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func verifyErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVerification, fmt.Sprintf(format, args...))
}

// field returns the named field of m, or an error naming the message.
func field(m protoreflect.Message, name protoreflect.Name) (protoreflect.FieldDescriptor, error) {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		return nil, verifyErr("%s has no field %s", m.Descriptor().FullName(), name)
	}
	return fd, nil
}

// VerifySettings runs every check that applies to a settings dump: the
// structure checked by VerifySettingsDump, non-negative user IDs across all
// users, and declared enum values.
func VerifySettings(dump proto.Message) error {
	return multierr.Combine(
		VerifySettingsDump(dump),
		VerifyNonNegative(dump, "user_id"),
		VerifyEnums(dump),
	)
}

// VerifySettingsDump checks a SettingsServiceDumpProto: the first user is
// user 0, and its secure and system settings as well as the global settings
// each hold well-formed settings.
func VerifySettingsDump(dump proto.Message) error {
	m := dump.ProtoReflect()
	setting := m.Descriptor().ParentFile().Package() + ".SettingProto"

	usersFD, err := field(m, "user_settings")
	if err != nil {
		return err
	}
	users := m.Get(usersFD).List()
	if users.Len() == 0 {
		return verifyErr("user_settings is empty")
	}
	user := users.Get(0).Message()
	userIDFD, err := field(user, "user_id")
	if err != nil {
		return err
	}
	if id := user.Get(userIDFD).Int(); id != 0 {
		return verifyErr("user_settings[0].user_id is %d, want 0", id)
	}

	var errs error
	for _, section := range []struct {
		path string
		msg  protoreflect.Message
		name protoreflect.Name
	}{
		{"user_settings[0].secure_settings", user, "secure_settings"},
		{"user_settings[0].system_settings", user, "system_settings"},
		{"global_settings", m, "global_settings"},
	} {
		fd, err := field(section.msg, section.name)
		if err != nil {
			return err
		}
		logging.IncidentDebug("verifying %s", section.path)
		errs = multierr.Append(errs, verifySettings(section.path, section.msg.Get(fd).Message(), setting))
	}
	return errs
}

func verifySettings(path string, settings protoreflect.Message, setting protoreflect.FullName) error {
	found := Collect(settings, setting)
	if len(found) == 0 {
		return verifyErr("%s has no settings", path)
	}

	var errs error
	for i, s := range found {
		if v, ok := stringField(s, "id"); ok && v != "" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				errs = multierr.Append(errs, verifyErr("%s setting %d: id %q is not an integer", path, i, v))
			}
		}
		if v, _ := stringField(s, "name"); v == "" {
			errs = multierr.Append(errs, verifyErr("%s setting %d has no name", path, i))
		}
	}

	opsFD := settings.Descriptor().Fields().ByName("historical_operations")
	if opsFD == nil || !opsFD.IsList() {
		return errs
	}
	ops := settings.Get(opsFD).List()
	for i := 0; i < ops.Len(); i++ {
		op := ops.Get(i).Message()
		if ts, ok := intField(op, "timestamp"); ok && ts < 0 {
			errs = multierr.Append(errs, verifyErr("%s.historical_operations[%d].timestamp is %d", path, i, ts))
		}
		if v, _ := stringField(op, "operation"); v == "" {
			errs = multierr.Append(errs, verifyErr("%s.historical_operations[%d] has no operation", path, i))
		}
	}
	logging.IncidentDebug("%s: %d settings, %d operations", path, len(found), ops.Len())
	return errs
}

func stringField(m protoreflect.Message, name protoreflect.Name) (string, bool) {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil || fd.Kind() != protoreflect.StringKind || fd.IsList() {
		return "", false
	}
	return m.Get(fd).String(), true
}

func intField(m protoreflect.Message, name protoreflect.Name) (int64, bool) {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil || fd.IsList() || !signedKind(fd.Kind()) {
		return 0, false
	}
	return m.Get(fd).Int(), true
}

func signedKind(k protoreflect.Kind) bool {
	switch k {
	case protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return true
	}
	return false
}

// VerifyNonNegative checks that every signed integer field with one of the
// given names, anywhere in msg, is at least zero.
func VerifyNonNegative(msg proto.Message, names ...string) error {
	want := make(map[protoreflect.Name]bool, len(names))
	for _, n := range names {
		want[protoreflect.Name(n)] = true
	}

	var errs error
	walk(msg.ProtoReflect(), "", func(path string, field, value protoreflect.FieldDescriptor, v protoreflect.Value) {
		if !want[field.Name()] || !signedKind(value.Kind()) {
			return
		}
		if n := v.Int(); n < 0 {
			errs = multierr.Append(errs, verifyErr("%s is %d", path, n))
		}
	})
	return errs
}

// VerifyEnums checks that every enum value set in msg is declared by its
// enum type.
func VerifyEnums(msg proto.Message) error {
	var errs error
	walk(msg.ProtoReflect(), "", func(path string, _, value protoreflect.FieldDescriptor, v protoreflect.Value) {
		if value.Kind() != protoreflect.EnumKind {
			return
		}
		if value.Enum().Values().ByNumber(v.Enum()) == nil {
			errs = multierr.Append(errs, verifyErr("%s has undeclared %s value %d",
				path, value.Enum().FullName(), v.Enum()))
		}
	})
	return errs
}
