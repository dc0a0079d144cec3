package shadercompiler

import (
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/dxil"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/cache"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

var (
	// ErrCompile wraps every source-level compilation failure.
	ErrCompile = errors.New("shadercompiler: compilation failed")

	// ErrUnsupportedStage is returned for stages the compiler cannot
	// produce, such as ray tracing stages.
	ErrUnsupportedStage = errors.New("shadercompiler: unsupported shader stage")
)

// Target is a shader binary format.
type Target uint8

const (
	TargetSPIRV Target = iota
	TargetDXIL
)

func (t Target) String() string {
	if t == TargetDXIL {
		return "dxil"
	}
	return "spirv"
}

// TargetFor returns the binary format consumed by backend b.
func TargetFor(b rhi.Backend) Target {
	if b == rhi.BackendD3D12 {
		return TargetDXIL
	}
	return TargetSPIRV
}

// Source is one shader stage to compile.
type Source struct {
	Label string
	// Code is WGSL source text. It may hold several entry points.
	Code  string
	Entry string
	Stage rhi.ShaderStage
}

// Config configures a Compiler.
type Config struct {
	// CacheSize bounds the number of cached modules. Zero selects
	// DefaultCacheSize; a negative value disables the limit.
	CacheSize int
	// SPIRVVersion is the SPIR-V version emitted for Vulkan.
	SPIRVVersion spirv.Version
	// ShaderModel is the DXIL shader model emitted for D3D12.
	ShaderModel dxil.ShaderModel
	// Debug keeps debug names in SPIR-V output.
	Debug bool
	// Logger receives compile diagnostics. Nil uses the package logger.
	Logger *slog.Logger
}

// DefaultCacheSize is the module cache limit used when Config.CacheSize is
// zero.
const DefaultCacheSize = 256

func (c Config) withDefaults() Config {
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	} else if c.CacheSize < 0 {
		c.CacheSize = 0
	}
	if c.SPIRVVersion == (spirv.Version{}) {
		c.SPIRVVersion = spirv.Version1_3
	}
	if c.ShaderModel == (dxil.ShaderModel{}) {
		c.ShaderModel = dxil.SM6_0
	}
	return c
}

type cacheKey struct {
	source [md5.Size]byte
	entry  string
	stage  rhi.ShaderStage
	target Target
}

// Compiler compiles and caches shader modules. It is safe for concurrent
// use.
type Compiler struct {
	cfg     Config
	log     *slog.Logger
	modules *cache.Cache[cacheKey, *rhi.ShaderModule]
}

// New creates a compiler.
func New(cfg Config) *Compiler {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = slogger()
	}
	return &Compiler{
		cfg:     cfg,
		log:     log,
		modules: cache.New[cacheKey, *rhi.ShaderModule](cfg.CacheSize),
	}
}

// Compile compiles src for target. Identical requests return the same
// module.
func (c *Compiler) Compile(src Source, target Target) (*rhi.ShaderModule, error) {
	key := cacheKey{source: md5.Sum([]byte(src.Code)), entry: src.Entry, stage: src.Stage, target: target}
	m, err := c.modules.GetOrCreate(key, func() (*rhi.ShaderModule, error) {
		binary, err := c.compile(src, target)
		if err != nil {
			c.log.Warn("shadercompiler: compile failed", "label", src.Label, "entry", src.Entry, "target", target, "err", err)
			return nil, err
		}
		c.log.Debug("shadercompiler: compiled", "label", src.Label, "entry", src.Entry, "target", target, "bytes", len(binary))
		m := rhi.NewShaderModule(src.Stage, src.Entry, binary)
		m.Label = src.Label
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CompileFor compiles src for the binary format of backend b.
func (c *Compiler) CompileFor(b rhi.Backend, src Source) (*rhi.ShaderModule, error) {
	return c.Compile(src, TargetFor(b))
}

// Stats returns module cache statistics.
func (c *Compiler) Stats() cache.Stats {
	return c.modules.Stats()
}

func (c *Compiler) compile(src Source, target Target) ([]byte, error) {
	stage, ok := irStage(src.Stage)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedStage, src.Stage)
	}
	module, err := c.lower(src)
	if err != nil {
		return nil, err
	}
	ep, err := findEntryPoint(module, src.Entry, stage)
	if err != nil {
		return nil, err
	}

	switch target {
	case TargetDXIL:
		// The DXIL emitter compiles the first entry point of a module.
		single := *module
		single.EntryPoints = []ir.EntryPoint{*ep}
		opts := dxil.DefaultOptions()
		opts.ShaderModel = c.cfg.ShaderModel
		out, err := dxil.Compile(&single, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCompile, src.Entry, err)
		}
		return out, nil
	default:
		out, err := naga.GenerateSPIRV(module, spirv.Options{Version: c.cfg.SPIRVVersion, Debug: c.cfg.Debug})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCompile, src.Entry, err)
		}
		return out, nil
	}
}

// lower parses, lowers and validates src.
func (c *Compiler) lower(src Source) (*ir.Module, error) {
	ast, err := naga.Parse(src.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	module, err := naga.LowerWithSource(ast, src.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	problems, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w (%d validation errors)", ErrCompile, problems[0], len(problems))
	}
	return module, nil
}

func findEntryPoint(m *ir.Module, name string, stage ir.ShaderStage) (*ir.EntryPoint, error) {
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Name != name {
			continue
		}
		if ep.Stage != stage {
			return nil, fmt.Errorf("%w: entry point %q has stage %d, want %d", ErrCompile, name, ep.Stage, stage)
		}
		return ep, nil
	}
	return nil, fmt.Errorf("%w: no entry point %q", ErrCompile, name)
}

func irStage(s rhi.ShaderStage) (ir.ShaderStage, bool) {
	switch s {
	case rhi.ShaderStageVertex:
		return ir.StageVertex, true
	case rhi.ShaderStageFragment:
		return ir.StageFragment, true
	case rhi.ShaderStageCompute:
		return ir.StageCompute, true
	default:
		return 0, false
	}
}
