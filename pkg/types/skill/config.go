package skill

import "time"

// SecurityProfile controls what generated code is allowed to do. The
// validator enforces it statically; it is not a runtime sandbox.
type SecurityProfile struct {
	AllowDynamicExec     bool     `mapstructure:"allow_dynamic_exec" yaml:"allow_dynamic_exec"`
	AllowSubprocess      bool     `mapstructure:"allow_subprocess" yaml:"allow_subprocess"`
	AllowNetwork         bool     `mapstructure:"allow_network" yaml:"allow_network"`
	AllowFilesystem      bool     `mapstructure:"allow_filesystem" yaml:"allow_filesystem"`
	AllowedDependencies  []string `mapstructure:"allowed_dependencies" yaml:"allowed_dependencies"`
	DeniedDependencies   []string `mapstructure:"denied_dependencies" yaml:"denied_dependencies"`
	AllowedImportModules []string `mapstructure:"allowed_import_modules" yaml:"allowed_import_modules"`
}

// Config is the explicit configuration object consumed by the core. The core
// performs no environment or file reading itself; the CLI (or an embedding
// application) builds one of these and passes it in.
type Config struct {
	SkillsDir    string `mapstructure:"skills_dir" yaml:"skills_dir"`
	TemplatesDir string `mapstructure:"templates_dir" yaml:"templates_dir"`
	JournalPath  string `mapstructure:"journal_path" yaml:"journal_path"`

	// Interpreter runs generated skill code, e.g. "python3".
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`

	IsolationLevel string `mapstructure:"isolation_level" yaml:"isolation_level"`

	FingerprintThreshold float64 `mapstructure:"fingerprint_threshold" yaml:"fingerprint_threshold"`
	FingerprintTopK      int     `mapstructure:"fingerprint_top_k" yaml:"fingerprint_top_k"`

	MaxGenerationRetries int `mapstructure:"max_generation_retries" yaml:"max_generation_retries"`
	MaxReflectionRounds  int `mapstructure:"max_reflection_rounds" yaml:"max_reflection_rounds"`

	ExecutionTimeout time.Duration `mapstructure:"execution_timeout" yaml:"execution_timeout"`
	MemoryCeiling    uint64        `mapstructure:"memory_ceiling" yaml:"memory_ceiling"`

	// AutoCreate makes ExecuteSkill synthesize unknown skills instead of
	// failing with SkillNotFound.
	AutoCreate bool `mapstructure:"auto_create" yaml:"auto_create"`

	Security SecurityProfile `mapstructure:"security" yaml:"security"`
}

// DefaultConfig returns the documented defaults. SkillsDir is left empty on
// purpose; callers must choose where skills live on disk.
func DefaultConfig() Config {
	return Config{
		Interpreter:          "python3",
		IsolationLevel:       "none",
		FingerprintThreshold: 0.8,
		FingerprintTopK:      5,
		MaxGenerationRetries: 3,
		MaxReflectionRounds:  3,
		ExecutionTimeout:     30 * time.Second,
		MemoryCeiling:        512 * 1024 * 1024,
		Security: SecurityProfile{
			AllowFilesystem: true,
		},
	}
}
