// Package extensions provides the extension system for exthost.
package extensions

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/exthost/exthost/internal/urls"
)

// DefaultVersion is the version given to extensions whose metadata omits one.
const DefaultVersion = "0.1"

// Type classifies an extension as bundled with the platform or installed by a user.
type Type string

const (
	TypeSystem Type = "system"
	TypeUser   Type = "user"
)

var authorizedTypes = []Type{TypeSystem, TypeUser}

// AuthorizedTypes returns the extension types accepted by NewDescriptor.
func AuthorizedTypes() []Type {
	out := make([]Type, len(authorizedTypes))
	copy(out, authorizedTypes)
	return out
}

// Valid reports whether t is one of the authorized types.
func (t Type) Valid() bool {
	for _, a := range authorizedTypes {
		if t == a {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidConfiguration is returned when a required metadata field is missing.
	ErrInvalidConfiguration = errors.New("invalid extension configuration")
	// ErrInvalidExtensionType is returned when metadata declares an unknown type.
	ErrInvalidExtensionType = errors.New("invalid `type` info")
)

// Error describes a failure to build an extension descriptor.
type Error struct {
	Extension string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	name := e.Extension
	if name == "" {
		name = "<unnamed>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("extension %s: %v", name, e.Err)
	}
	return fmt.Sprintf("extension %s: %v: %s", name, e.Err, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Metadata is the configuration record an extension is built from.
// Optional fields are pointers so that an omitted field can be told apart from an empty one.
type Metadata struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Entrypoint  string  `json:"entrypoint" yaml:"entrypoint" validate:"required"`
	Path        string  `json:"path" yaml:"path" validate:"required"`
	Author      *string `json:"author,omitempty" yaml:"author,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     *string `json:"version,omitempty" yaml:"version,omitempty"`
	Type        *string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=system user"`
}

var metadataValidator = validator.New()

// Descriptor holds the identity of one loaded extension.
// It implements Extension with no-op lifecycle hooks; concrete extensions embed it
// and override the hooks they need.
type Descriptor struct {
	name        string
	entrypoint  string
	path        string
	author      string
	description string
	version     string
	typ         Type

	fs      afero.Fs
	display urls.Displayer
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithFs sets the filesystem used to read asset modification times.
func WithFs(fs afero.Fs) Option {
	return func(d *Descriptor) {
		d.fs = fs
	}
}

// WithDisplayer sets the transform applied to asset URLs.
func WithDisplayer(display urls.Displayer) Option {
	return func(d *Descriptor) {
		d.display = display
	}
}

// NewDescriptor builds a descriptor from metadata, applying defaults for omitted optional fields.
func NewDescriptor(meta Metadata, opts ...Option) (*Descriptor, error) {
	if err := metadataValidator.Struct(meta); err != nil {
		return nil, metadataError(meta.Name, err)
	}

	d := &Descriptor{
		name:        meta.Name,
		entrypoint:  meta.Entrypoint,
		path:        meta.Path,
		author:      valueOr(meta.Author, ""),
		description: valueOr(meta.Description, ""),
		version:     valueOr(meta.Version, DefaultVersion),
		fs:          afero.NewOsFs(),
		display:     urls.Identity(),
	}
	if err := d.setType(Type(valueOr(meta.Type, string(TypeUser)))); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Descriptor) setType(t Type) error {
	if !t.Valid() {
		return &Error{Extension: d.name, Reason: fmt.Sprintf("got %q", t), Err: ErrInvalidExtensionType}
	}
	d.typ = t
	return nil
}

func metadataError(name string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Extension: name, Reason: err.Error(), Err: ErrInvalidConfiguration}
	}

	// Missing required fields take precedence over a bad type.
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &Error{Extension: name, Reason: fmt.Sprintf("missing `%s`", jsonName(fe.Field())), Err: ErrInvalidConfiguration}
		}
	}
	fe := verrs[0]
	if fe.Field() == "Type" {
		return &Error{Extension: name, Reason: fmt.Sprintf("got %v", fe.Value()), Err: ErrInvalidExtensionType}
	}
	return &Error{Extension: name, Reason: fe.Error(), Err: ErrInvalidConfiguration}
}

func jsonName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "Entrypoint":
		return "entrypoint"
	case "Path":
		return "path"
	}
	return field
}

func valueOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// Name returns the extension name.
func (d *Descriptor) Name() string {
	return d.name
}

// Entrypoint returns the name of the implementation the extension is built from.
func (d *Descriptor) Entrypoint() string {
	return d.entrypoint
}

// Path returns the directory holding the extension files.
func (d *Descriptor) Path() string {
	return d.path
}

// Author returns the extension author.
func (d *Descriptor) Author() string {
	return d.author
}

// Description returns the extension description.
func (d *Descriptor) Description() string {
	return d.description
}

// Version returns the extension version.
func (d *Descriptor) Version() string {
	return d.version
}

// Type returns the extension type.
func (d *Descriptor) Type() Type {
	return d.typ
}

// Fs returns the filesystem the extension files are read from.
func (d *Descriptor) Fs() afero.Fs {
	return d.fs
}

// Meta returns d, so that embedding types expose their metadata.
func (d *Descriptor) Meta() *Descriptor {
	return d
}

// Install is a no-op for the base descriptor.
func (d *Descriptor) Install() error {
	return nil
}

// Uninstall is a no-op for the base descriptor.
func (d *Descriptor) Uninstall() error {
	return nil
}

// Init is a no-op for the base descriptor.
func (d *Descriptor) Init(api *API) error {
	return nil
}
