// Package cli implements the small flag framework used by the compiler
// binaries: long and short flags, grouped prefix flags (-W<warning>) and a
// terminal-width-aware help page.
package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	val, err := strconv.ParseBool(s)
	if err != nil && s != "" {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val || s == ""
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	args       []string
	flagGroups []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

// AddFlagGroup registers enable/disable boolean flags for every entry
// (prefix+name and prefix+"no-"+name) and records the group for help output.
func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for i := range entries {
		if entries[i].Enabled != nil {
			f.Bool(entries[i].Enabled, entries[i].Prefix+entries[i].Name, "", *entries[i].Enabled, entries[i].Usage)
		}
		if entries[i].Disabled != nil {
			f.Bool(entries[i].Disabled, entries[i].Prefix+"no-"+entries[i].Name, "", *entries[i].Disabled, "Disable '"+entries[i].Name+"'")
		}
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "--") {
			if err := f.parseNamedFlag(arg[2:], arguments, &i, "--"); err != nil {
				return err
			}
			continue
		}
		// Single-dash flags are matched by full name first (modes like -koopa
		// and grouped flags like -Wextra live here), then by shorthand.
		name := arg[1:]
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if _, ok := f.flags[name]; ok {
			if err := f.parseNamedFlag(arg[1:], arguments, &i, "-"); err != nil {
				return err
			}
			continue
		}
		if err := f.parseShortFlag(arg, arguments, &i); err != nil {
			return err
		}
	}
	return nil
}

func (f *FlagSet) parseNamedFlag(spec string, arguments []string, i *int, dash string) error {
	parts := strings.SplitN(spec, "=", 2)
	name := parts[0]
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok {
		return fmt.Errorf("unknown flag: %s%s", dash, name)
	}
	if len(parts) == 2 {
		return flag.Value.Set(parts[1])
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: %s%s", dash, name)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) parseShortFlag(arg string, arguments []string, i *int) error {
	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown flag: -%s", shorthand)
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	value := arg[2:]
	if value == "" {
		if *i+1 >= len(arguments) {
			return fmt.Errorf("flag needs an argument: -%s", shorthand)
		}
		*i++
		value = arguments[*i]
	}
	return flag.Value.Set(value)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.printHelp(os.Stderr)
		return err
	}
	if help {
		a.printHelp(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) printHelp(w *os.File) {
	var sb strings.Builder
	termWidth := getTerminalWidth()

	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(a.Description, termWidth-4) {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}

	optionFlags := a.optionFlags()
	leftWidth := 0
	for _, flag := range optionFlags {
		if n := len(formatFlagString(flag)); n > leftWidth {
			leftWidth = n
		}
	}
	for _, group := range a.FlagSet.flagGroups {
		for _, entry := range group.Flags {
			if n := len("-" + entry.Prefix + "no-" + entry.Name); n > leftWidth {
				leftWidth = n
			}
		}
	}

	if len(optionFlags) > 0 {
		sb.WriteString("\nOptions\n")
		sort.Slice(optionFlags, func(i, j int) bool { return optionFlags[i].Name < optionFlags[j].Name })
		for _, flag := range optionFlags {
			formatEntry(&sb, formatFlagString(flag), flag.Usage, leftWidth, termWidth)
		}
	}

	for _, group := range a.FlagSet.flagGroups {
		fmt.Fprintf(&sb, "\n%s\n", group.Name)
		prefix := group.Flags[0].Prefix
		formatEntry(&sb, fmt.Sprintf("-%s<%s>", prefix, group.GroupType), "Enable a specific "+group.GroupType, leftWidth, termWidth)
		formatEntry(&sb, fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType), "Disable a specific "+group.GroupType, leftWidth, termWidth)
		if group.AvailableFlagsHeader != "" {
			fmt.Fprintf(&sb, "%s\n", group.AvailableFlagsHeader)
		}
		entries := make([]FlagGroupEntry, len(group.Flags))
		copy(entries, group.Flags)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, entry := range entries {
			formatEntry(&sb, entry.Name, entry.Usage, leftWidth, termWidth)
		}
	}

	if a.Repository != "" {
		fmt.Fprintf(&sb, "\nFor more details refer to %s\n", a.Repository)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	var optionFlags []*Flag
	for _, flag := range a.FlagSet.flags {
		if a.isGroupFlag(flag.Name) {
			continue
		}
		optionFlags = append(optionFlags, flag)
	}
	return optionFlags
}

func (a *App) isGroupFlag(flagName string) bool {
	for _, group := range a.FlagSet.flagGroups {
		for _, entry := range group.Flags {
			if flagName == entry.Prefix+entry.Name || flagName == entry.Prefix+"no-"+entry.Name {
				return true
			}
		}
	}
	return false
}

func formatFlagString(flag *Flag) string {
	var b strings.Builder
	_, isBool := flag.Value.(*boolValue)
	if flag.Shorthand != "" {
		fmt.Fprintf(&b, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&b, "--%s", flag.Name)
	if !isBool && flag.ExpectedType != "" {
		fmt.Fprintf(&b, " <%s>", flag.ExpectedType)
	}
	return b.String()
}

func formatEntry(sb *strings.Builder, left, usage string, leftWidth, termWidth int) {
	usageWidth := termWidth - leftWidth - 7
	if usageWidth < 10 {
		usageWidth = 10
	}
	lines := wrapText(usage, usageWidth)
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(sb, "    %-*s %s\n", leftWidth, left, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(sb, "    %-*s %s\n", leftWidth, "", line)
	}
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 20 {
		return 80
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}
	words := strings.Fields(text)
	var lines []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxWidth {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
