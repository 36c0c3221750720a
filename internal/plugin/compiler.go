package plugin

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// CompilerEnvironment carries the CC/CXX/CFLAGS/LDFLAGS the driver
// reads from the process environment, mirroring spec.md §4.10's
// compiler environment variables.
type CompilerEnvironment struct {
	CC      string
	CXX     string
	CFlags  []string
	LDFlags []string
}

// EnvironmentFromOS reads CC, CXX, CFLAGS, LDFLAGS from os.Environ.
func EnvironmentFromOS() CompilerEnvironment {
	return CompilerEnvironment{
		CC:      os.Getenv("CC"),
		CXX:     os.Getenv("CXX"),
		CFlags:  strings.Fields(os.Getenv("CFLAGS")),
		LDFlags: strings.Fields(os.Getenv("LDFLAGS")),
	}
}

// Compiler is a resolved C/C++ compiler driver path plus kind.
type Compiler struct {
	Path string
	Kind string // "clang", "gcc", or "cl"
	Env  CompilerEnvironment
}

// FindBestCompiler probes env.CC/CXX then PATH for clang, gcc, cl in
// priority order.
func FindBestCompiler(env CompilerEnvironment) (*Compiler, error) {
	for _, name := range []string{env.CC, env.CXX} {
		if name == "" {
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return &Compiler{Path: path, Kind: kindOf(name), Env: env}, nil
		}
	}
	candidates := []string{"clang", "gcc", "cl"}
	if runtime.GOOS == "windows" {
		candidates = []string{"clang", "cl", "gcc"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return &Compiler{Path: path, Kind: kindOf(name), Env: env}, nil
		}
	}
	return nil, errors.Errorf("plugin: no usable C/C++ compiler found on PATH (tried %v)", candidates)
}

func kindOf(name string) string {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "clang"):
		return "clang"
	case strings.Contains(base, "gcc") || strings.Contains(base, "g++"):
		return "gcc"
	case strings.Contains(base, "cl"):
		return "cl"
	default:
		return base
	}
}

// Sysroot resolves include/library paths so compiled plugins find
// libc/libc++ independently of the host toolchain's own defaults.
type Sysroot struct {
	IncludeDirs []string
	LibDirs     []string
}

// FindBestSysroot asks the resolved compiler for its own default
// sysroot via `-print-search-dirs` (clang/gcc) or leaves Sysroot empty
// for cl, which resolves paths via INCLUDE/LIB environment variables.
func FindBestSysroot(c *Compiler) (*Sysroot, error) {
	if c.Kind == "cl" {
		return &Sysroot{
			IncludeDirs: strings.Split(os.Getenv("INCLUDE"), string(os.PathListSeparator)),
			LibDirs:     strings.Split(os.Getenv("LIB"), string(os.PathListSeparator)),
		}, nil
	}
	out, err := exec.Command(c.Path, "-print-search-dirs").Output()
	if err != nil {
		return &Sysroot{}, nil // non-fatal: compile with the toolchain's own defaults
	}
	sr := &Sysroot{}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "libraries:") {
			paths := strings.TrimPrefix(line, "libraries: =")
			sr.LibDirs = strings.Split(paths, string(os.PathListSeparator))
		}
	}
	return sr, nil
}

func sharedLibExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// OutputPath returns the deterministic build output location for a
// plugin identifier under intermediatesDir.
func OutputPath(intermediatesDir, identifier string) string {
	return filepath.Join(intermediatesDir, identifier+sharedLibExt())
}

// Compile invokes c to compile every source in def to objects and link
// them, plus every dependency library named in def.Dependencies found
// already built under intermediatesDir, into a single shared library
// at OutputPath(intermediatesDir, def.Identifier).
func Compile(c *Compiler, sr *Sysroot, def PluginDefinition, intermediatesDir string) (string, error) {
	if err := os.MkdirAll(intermediatesDir, 0o755); err != nil {
		return "", err
	}
	out := OutputPath(intermediatesDir, def.Identifier)

	args := []string{"-shared", "-fPIC", "-o", out}
	args = append(args, c.Env.CFlags...)
	for _, dir := range sr.IncludeDirs {
		if dir != "" {
			args = append(args, "-I"+dir)
		}
	}
	args = append(args, def.SourceFiles...)
	for _, dep := range def.Dependencies {
		lib := OutputPath(intermediatesDir, dep)
		if _, err := os.Stat(lib); err == nil {
			args = append(args, lib)
		}
	}
	for _, dir := range sr.LibDirs {
		if dir != "" {
			args = append(args, "-L"+dir)
		}
	}
	args = append(args, c.Env.LDFlags...)

	cmd := exec.Command(c.Path, args...)
	cmd.Dir = def.SourceDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "plugin: compile %s failed\n%s", def.Identifier, output)
	}
	return out, nil
}
