package config

import (
	"github.com/zykkk01/pku-compile-principles/pkg/cli"
)

type Warning int

const (
	WarnOverflow Warning = iota
	WarnUnreachableCode
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Config carries the warning switches and the target parameters shared by the
// lowering stage and the RISC-V backend.
type Config struct {
	Warnings   map[Warning]Info
	WarningMap map[string]Warning

	// Target parameters. SysY targets RV32: 4-byte words, 16-byte stack frames.
	WordSize       int
	StackAlignment int
}

func NewConfig() *Config {
	cfg := &Config{
		Warnings:       make(map[Warning]Info),
		WarningMap:     make(map[string]Warning),
		WordSize:       4,
		StackAlignment: 16,
	}

	warnings := map[Warning]Info{
		WarnOverflow:        {"overflow", true, "Warn when an integer constant is out of range for a 32-bit word."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements that will never be executed."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by strict SysY."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Warnings = warnings
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

func (cfg *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := cfg.Warnings[wt]; ok {
		info.Enabled = enabled
		cfg.Warnings[wt] = info
	}
}

func (cfg *Config) IsWarningEnabled(wt Warning) bool {
	if info, ok := cfg.Warnings[wt]; ok {
		return info.Enabled
	}
	return false
}

// SetAllWarnings flips every warning at once; -Wall should not drag in pedantic.
func (cfg *Config) SetAllWarnings(enabled bool) {
	for i := Warning(0); i < WarnCount; i++ {
		if i == WarnPedantic && enabled {
			continue
		}
		cfg.SetWarning(i, enabled)
	}
}

// SetupFlagGroups registers -W<warning> / -Wno-<warning> flags for every known
// warning and returns the entries indexed by Warning value, so the driver can
// apply explicit overrides after parsing.
func (cfg *Config) SetupFlagGroups(fs *cli.FlagSet) []cli.FlagGroupEntry {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := cfg.Warnings[i]
		warningFlags[i] = cli.FlagGroupEntry{
			Name:     info.Name,
			Prefix:   "W",
			Usage:    info.Description,
			Enabled:  new(bool),
			Disabled: new(bool),
		}
	}
	fs.AddFlagGroup("Warnings", "Diagnostic switches", "warning", "Available warnings:", warningFlags)
	return warningFlags
}
