package extensions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strPtr(s string) *string { return &s }

func TestNewDescriptorDefaults(t *testing.T) {
	d, err := NewDescriptor(Metadata{
		Name:       "Reading Time",
		Entrypoint: "ReadingTime",
		Path:       "/ext/xExtension-ReadingTime",
	})
	require.NoError(t, err)

	assert.Equal(t, "Reading Time", d.Name())
	assert.Equal(t, "ReadingTime", d.Entrypoint())
	assert.Equal(t, "/ext/xExtension-ReadingTime", d.Path())
	assert.Equal(t, "", d.Author())
	assert.Equal(t, "", d.Description())
	assert.Equal(t, DefaultVersion, d.Version())
	assert.Equal(t, TypeUser, d.Type())
}

func TestNewDescriptorAllFields(t *testing.T) {
	d, err := NewDescriptor(Metadata{
		Name:        "Custom CSS",
		Entrypoint:  "CustomCSS",
		Path:        "/ext/customcss",
		Author:      strPtr("jane@example.org"),
		Description: strPtr("Adds a stylesheet"),
		Version:     strPtr("1.2"),
		Type:        strPtr("system"),
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.org", d.Author())
	assert.Equal(t, "Adds a stylesheet", d.Description())
	assert.Equal(t, "1.2", d.Version())
	assert.Equal(t, TypeSystem, d.Type())
}

func TestNewDescriptorExplicitEmptyOptional(t *testing.T) {
	d, err := NewDescriptor(Metadata{
		Name:       "x",
		Entrypoint: "X",
		Path:       "/ext/x",
		Version:    strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "", d.Version())
}

func TestNewDescriptorMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
	}{
		{"missing name", Metadata{Entrypoint: "X", Path: "/ext/x"}},
		{"missing entrypoint", Metadata{Name: "x", Path: "/ext/x"}},
		{"missing path", Metadata{Name: "x", Entrypoint: "X"}},
		{"missing path with bad type", Metadata{Name: "x", Entrypoint: "X", Type: strPtr("admin")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.meta)
			assert.Nil(t, d)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.False(t, errors.Is(err, ErrInvalidExtensionType))

			var extErr *Error
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, tt.meta.Name, extErr.Extension)
		})
	}
}

func TestNewDescriptorInvalidType(t *testing.T) {
	for _, typ := range []string{"admin", "", "System", "USER"} {
		t.Run(typ, func(t *testing.T) {
			_, err := NewDescriptor(Metadata{
				Name:       "x",
				Entrypoint: "X",
				Path:       "/ext/x",
				Type:       strPtr(typ),
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidExtensionType)
			assert.Contains(t, err.Error(), "invalid `type` info")
		})
	}
}

func TestAuthorizedTypes(t *testing.T) {
	types := AuthorizedTypes()
	assert.Equal(t, []Type{TypeSystem, TypeUser}, types)

	// Callers cannot alter the authorized set.
	types[0] = "admin"
	assert.False(t, Type("admin").Valid())
	assert.True(t, TypeSystem.Valid())
}

func TestBaseHooksAreNoops(t *testing.T) {
	d, err := NewDescriptor(Metadata{Name: "x", Entrypoint: "X", Path: "/ext/x"})
	require.NoError(t, err)
	before := *d

	assert.NoError(t, d.Install())
	assert.NoError(t, d.Init(nil))
	assert.NoError(t, d.Uninstall())
	assert.NoError(t, d.Init(nil))

	assert.Equal(t, before.Name(), d.Name())
	assert.Equal(t, before.Version(), d.Version())
	assert.Equal(t, before.Type(), d.Type())
	assert.Same(t, d, d.Meta())
}

func TestDescriptorImplementsExtension(t *testing.T) {
	var _ Extension = (*Descriptor)(nil)
}

func optionalString(t *rapid.T, label string) *string {
	if rapid.Bool().Draw(t, label+"Set") {
		s := rapid.String().Draw(t, label)
		return &s
	}
	return nil
}

func TestDescriptorAccessorsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		meta := Metadata{
			Name:        rapid.StringMatching(`[A-Za-z0-9 _-]{1,20}`).Draw(t, "name"),
			Entrypoint:  rapid.StringMatching(`[A-Za-z][A-Za-z0-9]{0,15}`).Draw(t, "entrypoint"),
			Path:        rapid.StringMatching(`(/[a-z0-9_.-]{1,8}){1,4}`).Draw(t, "path"),
			Author:      optionalString(t, "author"),
			Description: optionalString(t, "description"),
			Version:     optionalString(t, "version"),
		}
		if rapid.Bool().Draw(t, "typeSet") {
			typ := string(rapid.SampledFrom(AuthorizedTypes()).Draw(t, "type"))
			meta.Type = &typ
		}

		a, err := NewDescriptor(meta)
		if err != nil {
			t.Fatalf("NewDescriptor() error = %v", err)
		}
		b, err := NewDescriptor(meta)
		if err != nil {
			t.Fatalf("NewDescriptor() error = %v", err)
		}

		if a.Name() != meta.Name || a.Entrypoint() != meta.Entrypoint || a.Path() != meta.Path {
			t.Fatalf("required fields not preserved: %+v", a)
		}
		if a.Author() != valueOr(meta.Author, "") {
			t.Fatalf("Author() = %q", a.Author())
		}
		if a.Description() != valueOr(meta.Description, "") {
			t.Fatalf("Description() = %q", a.Description())
		}
		if a.Version() != valueOr(meta.Version, DefaultVersion) {
			t.Fatalf("Version() = %q", a.Version())
		}
		if string(a.Type()) != valueOr(meta.Type, string(TypeUser)) {
			t.Fatalf("Type() = %q", a.Type())
		}

		if a.Name() != b.Name() || a.Entrypoint() != b.Entrypoint() || a.Path() != b.Path() ||
			a.Author() != b.Author() || a.Description() != b.Description() ||
			a.Version() != b.Version() || a.Type() != b.Type() {
			t.Fatalf("descriptors built from the same metadata differ")
		}
	})
}

func TestNewDescriptorRejectsUnknownTypeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		typ := rapid.String().Filter(func(s string) bool {
			return !Type(s).Valid()
		}).Draw(t, "type")

		_, err := NewDescriptor(Metadata{Name: "x", Entrypoint: "X", Path: "/ext/x", Type: &typ})
		if !errors.Is(err, ErrInvalidExtensionType) {
			t.Fatalf("NewDescriptor(type=%q) error = %v, want ErrInvalidExtensionType", typ, err)
		}
	})
}
