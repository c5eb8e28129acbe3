// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"golang.org/x/mod/semver"

	"vvimage/pkg/types"
)

var (
	// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
	ErrInvalidDescriptor = errors.New("invalid dependency descriptor")

	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid release version")
)

type (
	// Descriptor declares one external dependency: where its release archive
	// lives and where its normalized contents must end up. Identity is
	// (Name, Version); a new version is a new Descriptor.
	Descriptor struct {
		Name    string `json:"name" mapstructure:"name"`
		Kind    Kind   `json:"kind" mapstructure:"kind"`
		Version string `json:"version" mapstructure:"version"`
		// URLTemplate is a text/template rendered with TemplateData.
		URLTemplate string `json:"url" mapstructure:"url"`
		// Layout lists entries (relative to the artifact dir) that must exist
		// after normalization, in addition to the per-kind canonical files.
		Layout []string `json:"layout,omitempty" mapstructure:"layout"`
		// Target is the canonical directory inside the image.
		Target types.ImagePath `json:"target" mapstructure:"target"`
		// SHA256 pins the archive digest (hex). Empty skips verification.
		SHA256 string `json:"sha256,omitempty" mapstructure:"sha256"`
		// StableName names the dictionary directory under Target. Dictionary only.
		StableName string `json:"stable_name,omitempty" mapstructure:"stable_name"`
		// BaseImage is the toolchain image of this dependency's build stage.
		BaseImage string `json:"base_image,omitempty" mapstructure:"base_image"`
	}

	// TemplateData is the value URL templates are executed against.
	TemplateData struct {
		Name string
		// Version is the release version without a "v" prefix.
		Version string
		// Tag is Version with a "v" prefix.
		Tag         string
		Variant     Variant
		Arch        string
		Device      string
		RuntimeArch string
	}

	// CacheKey identifies a resolved artifact.
	CacheKey struct {
		Name    string
		Version string
		Variant Variant
	}

	// InvalidVersionError is returned for a version that is not a release
	// version.
	InvalidVersionError struct {
		Value string
	}

	// InvalidDescriptorError collects field-level validation errors.
	InvalidDescriptorError struct {
		Name        string
		FieldErrors []error
	}
)

// Validate checks every field and returns an *InvalidDescriptorError
// listing all problems.
func (d Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name must be non-empty"))
	}
	if err := d.Kind.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := CanonicalVersion(d.Version); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(d.URLTemplate) == "" {
		errs = append(errs, errors.New("url must be non-empty"))
	} else if _, err := template.New(d.Name).Option("missingkey=error").Parse(d.URLTemplate); err != nil {
		errs = append(errs, fmt.Errorf("url template: %w", err))
	}
	if err := d.Target.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d.SHA256 != "" && !isHexDigest(d.SHA256) {
		errs = append(errs, fmt.Errorf("sha256 %q must be 64 hex characters", d.SHA256))
	}
	if strings.ContainsAny(d.StableName, "/\\") || d.StableName == "." || d.StableName == ".." {
		errs = append(errs, fmt.Errorf("stable_name %q must be a single path element", d.StableName))
	}
	for _, entry := range d.Layout {
		if !validRelPath(entry) {
			errs = append(errs, fmt.Errorf("layout entry %q must be a relative path inside the artifact", entry))
		}
	}
	if len(errs) > 0 {
		return &InvalidDescriptorError{Name: d.Name, FieldErrors: errs}
	}
	return nil
}

// Key returns the cache key of d resolved for v.
func (d Descriptor) Key(v Variant) CacheKey {
	bare, err := CanonicalVersion(d.Version)
	if err != nil {
		bare = d.Version
	}
	return CacheKey{Name: d.Name, Version: strings.TrimPrefix(bare, "v"), Variant: v}
}

// DictionaryName returns the stable dictionary directory name.
func (d Descriptor) DictionaryName() string {
	if d.StableName != "" {
		return d.StableName
	}
	return DefaultDictionaryName
}

// RenderURL executes the URL template for variant v. The variant is
// validated first so an unknown value never reaches the network.
func (d Descriptor) RenderURL(v Variant) (string, error) {
	spec, err := v.Spec()
	if err != nil {
		return "", err
	}
	canonical, err := CanonicalVersion(d.Version)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(d.Name).Option("missingkey=error").Parse(d.URLTemplate)
	if err != nil {
		return "", fmt.Errorf("parse url template for %s: %w", d.Name, err)
	}

	data := TemplateData{
		Name:        d.Name,
		Version:     strings.TrimPrefix(canonical, "v"),
		Tag:         canonical,
		Variant:     v,
		Arch:        spec.Arch,
		Device:      spec.Device,
		RuntimeArch: spec.RuntimeArch,
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render url template for %s: %w", d.Name, err)
	}

	rendered := sb.String()
	u, err := url.Parse(rendered)
	if err != nil {
		return "", fmt.Errorf("rendered url for %s: %w", d.Name, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return "", fmt.Errorf("rendered url for %s: unsupported scheme %q", d.Name, u.Scheme)
	}
	return rendered, nil
}

// CanonicalVersion validates a release version ("0.12.3", "v1.10.0",
// "1.11") and returns it with a "v" prefix, keeping the upstream spelling
// otherwise. Build metadata is rejected.
func CanonicalVersion(version string) (string, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return "", &InvalidVersionError{Value: version}
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || semver.Build(v) != "" {
		return "", &InvalidVersionError{Value: version}
	}
	return v, nil
}

// String renders the key as "name@version+variant".
func (k CacheKey) String() string {
	return fmt.Sprintf("%s@%s+%s", k.Name, k.Version, k.Variant)
}

// Slug renders the key as a single path element.
func (k CacheKey) Slug() string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(fmt.Sprintf("%s-%s-%s", k.Name, k.Version, k.Variant))
}

// Error implements the error interface for InvalidVersionError.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid release version %q: expected a semantic version such as 0.12.3", e.Value)
}

// Unwrap returns ErrInvalidVersion for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Error implements the error interface for InvalidDescriptorError.
func (e *InvalidDescriptorError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid dependency %q: %s", e.Name, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidDescriptor and the field errors for errors.Is()
// compatibility.
func (e *InvalidDescriptorError) Unwrap() []error {
	return append([]error{ErrInvalidDescriptor}, e.FieldErrors...)
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range strings.ToLower(s) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func validRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
