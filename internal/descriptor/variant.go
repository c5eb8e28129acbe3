// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// VariantCPUX64 selects the x86_64 CPU build.
	VariantCPUX64 Variant = "cpu-x64"
	// VariantCPUArm64 selects the aarch64 CPU build.
	VariantCPUArm64 Variant = "cpu-arm64"
	// VariantCPUArmhf selects the 32-bit ARM hard-float CPU build.
	VariantCPUArmhf Variant = "cpu-armhf"
	// VariantGPUCUDAX64 selects the x86_64 CUDA build.
	VariantGPUCUDAX64 Variant = "gpu-cuda-x64"
)

// ErrInvalidVariant is the sentinel error wrapped by InvalidVariantError.
var ErrInvalidVariant = errors.New("invalid variant")

// variantSpecs is ordered so Variants() is deterministic.
var variantSpecs = []VariantSpec{
	{
		Variant:     VariantCPUX64,
		Arch:        "x64",
		Device:      "cpu",
		RuntimeArch: "x64",
		Platform:    "linux/amd64",
		CoreCandidates: []string{
			"libcore_cpu_x64.so", "libcore_cpu.so", CanonicalCoreLibrary, "core.so",
		},
	},
	{
		Variant:     VariantCPUArm64,
		Arch:        "arm64",
		Device:      "cpu",
		RuntimeArch: "aarch64",
		Platform:    "linux/arm64",
		CoreCandidates: []string{
			"libcore_cpu_arm64.so", "libcore_cpu.so", CanonicalCoreLibrary, "core.so",
		},
	},
	{
		Variant:     VariantCPUArmhf,
		Arch:        "armhf",
		Device:      "cpu",
		RuntimeArch: "armhf",
		Platform:    "linux/arm/v7",
		CoreCandidates: []string{
			"libcore_cpu_armhf.so", "libcore_cpu.so", CanonicalCoreLibrary, "core.so",
		},
	},
	{
		Variant:     VariantGPUCUDAX64,
		Arch:        "x64",
		Device:      "gpu",
		RuntimeArch: "x64-gpu",
		Platform:    "linux/amd64",
		CoreCandidates: []string{
			"libcore_gpu_x64_nvidia.so", "libcore_gpu.so", CanonicalCoreLibrary, "core.so",
		},
	},
}

type (
	// Variant selects one binary build of the native dependencies.
	Variant string

	// VariantSpec holds the template fields and core-library naming rule of
	// a Variant.
	VariantSpec struct {
		Variant Variant
		// Arch is the core release architecture token ("x64", "arm64").
		Arch string
		// Device is "cpu" or "gpu".
		Device string
		// RuntimeArch is the tensor runtime release token ("x64", "aarch64", "x64-gpu").
		RuntimeArch string
		// Platform is the container platform the variant targets.
		Platform string
		// CoreCandidates lists accepted upstream core-library file names in
		// priority order. The first one present in an archive wins.
		CoreCandidates []string
	}

	// InvalidVariantError is returned for a variant outside the supported set.
	InvalidVariantError struct {
		Value Variant
	}
)

// Variants returns every supported variant in declaration order.
func Variants() []Variant {
	out := make([]Variant, 0, len(variantSpecs))
	for _, s := range variantSpecs {
		out = append(out, s.Variant)
	}
	return out
}

// String returns the string representation of the Variant.
func (v Variant) String() string { return string(v) }

// Validate returns an *InvalidVariantError unless v is supported.
func (v Variant) Validate() error {
	_, err := v.Spec()
	return err
}

// Spec returns the VariantSpec for v. The returned candidate list is a copy.
func (v Variant) Spec() (VariantSpec, error) {
	for _, s := range variantSpecs {
		if s.Variant == v {
			s.CoreCandidates = slices.Clone(s.CoreCandidates)
			return s, nil
		}
	}
	return VariantSpec{}, &InvalidVariantError{Value: v}
}

// Error implements the error interface for InvalidVariantError.
func (e *InvalidVariantError) Error() string {
	names := make([]string, 0, len(variantSpecs))
	for _, v := range Variants() {
		names = append(names, string(v))
	}
	return fmt.Sprintf("invalid variant %q (valid: %s)", e.Value, strings.Join(names, ", "))
}

// Unwrap returns ErrInvalidVariant for errors.Is() compatibility.
func (e *InvalidVariantError) Unwrap() error { return ErrInvalidVariant }
