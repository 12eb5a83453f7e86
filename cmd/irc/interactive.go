package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ir-runtime/engine"
	"github.com/wippyai/ir-runtime/ir"
)

type palette struct {
	title    lipgloss.Style
	name     lipgloss.Style
	typ      lipgloss.Style
	cursor   lipgloss.Style
	ok       lipgloss.Style
	failure  lipgloss.Style
	help     lipgloss.Style
	listing  lipgloss.Style
	heading  lipgloss.Style
	disabled lipgloss.Style
}

func newPalette() palette {
	accent := lipgloss.Color("#7D56F4")
	return palette{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(accent).Padding(0, 1),
		name:     lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		typ:      lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(accent),
		ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90")).Bold(true),
		failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		listing:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
		heading:  lipgloss.NewStyle().Underline(true),
		disabled: lipgloss.NewStyle().Faint(true),
	}
}

type screen int

const (
	screenFunctions screen = iota
	screenArguments
	screenResult
)

// signatureInfo describes a defined function of the loaded module.
type signatureInfo struct {
	name   string
	result string
	params []argInfo
}

type argInfo struct {
	name string
	typ  string
}

func (s signatureInfo) render(p palette) string {
	args := make([]string, len(s.params))
	for i, a := range s.params {
		args[i] = a.name + " " + p.typ.Render(a.typ)
	}
	out := p.name.Render(s.name) + "(" + strings.Join(args, ", ") + ")"
	if s.result != "" {
		out += " " + p.typ.Render(s.result)
	}
	return out
}

type runner struct {
	src     *source
	style   palette
	ctx     *ir.Context
	eng     *engine.Engine
	listing string
	funcs   []signatureInfo
	fields  []textinput.Model
	output  string
	failed  error
	loadErr error
	cursor  int
	focus   int
	screen  screen
	showIR  bool
}

type moduleReady struct {
	err     error
	ctx     *ir.Context
	eng     *engine.Engine
	funcs   []signatureInfo
	listing string
}

type callDone struct {
	err    error
	output string
}

func newRunner(src *source) *runner {
	return &runner{src: src, style: newPalette()}
}

func (r *runner) Init() tea.Cmd {
	return r.load
}

// load builds or parses the module in a private context, records its
// listing and hands the module to an engine.
func (r *runner) load() tea.Msg {
	ctx, err := newContext("interactive")
	if err != nil {
		return moduleReady{err: err}
	}
	fail := func(err error) tea.Msg {
		_ = ctx.Dispose()
		return moduleReady{err: err}
	}
	mod, err := r.src.module(ctx)
	if err != nil {
		return fail(err)
	}
	funcs, err := describeFunctions(mod)
	if err != nil {
		return fail(err)
	}
	listing, err := mod.Print()
	if err != nil {
		return fail(err)
	}
	eng, err := engine.New(context.Background(), mod)
	if err != nil {
		return fail(err)
	}
	return moduleReady{ctx: ctx, eng: eng, funcs: funcs, listing: listing}
}

func describeFunctions(mod *ir.Module) ([]signatureInfo, error) {
	fns, err := mod.Functions()
	if err != nil {
		return nil, err
	}
	var out []signatureInfo
	for _, fn := range fns {
		if decl, _ := fn.IsDeclaration(); decl {
			continue
		}
		info, err := describe(fn)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func describe(fn ir.FunctionValue) (signatureInfo, error) {
	name, err := fn.Name()
	if err != nil {
		return signatureInfo{}, err
	}
	info := signatureInfo{name: name}
	fnTy, err := fn.FunctionType()
	if err != nil {
		return signatureInfo{}, err
	}
	ret, err := fnTy.ReturnType()
	if err != nil {
		return signatureInfo{}, err
	}
	if _, void := ret.(ir.VoidType); !void {
		info.result = ret.String()
	}
	params, err := fn.Params()
	if err != nil {
		return signatureInfo{}, err
	}
	for i, p := range params {
		pname, _ := p.Name()
		if pname == "" {
			pname = "%" + strconv.Itoa(i)
		}
		ty, err := p.Type()
		if err != nil {
			return signatureInfo{}, err
		}
		info.params = append(info.params, argInfo{name: pname, typ: ty.String()})
	}
	return info, nil
}

func (r *runner) shutdown() {
	if r.eng != nil {
		_ = r.eng.Close(context.Background())
		r.eng = nil
	}
	if r.ctx != nil {
		_ = r.ctx.Dispose()
		r.ctx = nil
	}
}

func (r *runner) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case moduleReady:
		r.loadErr = msg.err
		r.ctx, r.eng, r.funcs, r.listing = msg.ctx, msg.eng, msg.funcs, msg.listing
		return r, nil

	case callDone:
		r.output, r.failed = msg.output, msg.err
		r.screen = screenResult
		return r, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			r.shutdown()
			return r, tea.Quit
		}
		switch r.screen {
		case screenFunctions:
			return r.onFunctionsKey(msg)
		case screenArguments:
			return r.onArgumentsKey(msg)
		case screenResult:
			return r.onResultKey(msg)
		}
	}
	return r.forwardToFields(msg)
}

func (r *runner) onFunctionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		r.shutdown()
		return r, tea.Quit
	case "up", "k":
		r.cursor = max(r.cursor-1, 0)
	case "down", "j":
		r.cursor = min(r.cursor+1, max(len(r.funcs)-1, 0))
	case "p":
		r.showIR = !r.showIR
	case "enter":
		if r.eng == nil || len(r.funcs) == 0 {
			return r, nil
		}
		r.fields = r.newFields(r.funcs[r.cursor])
		if len(r.fields) == 0 {
			return r, r.invoke
		}
		r.screen = screenArguments
	}
	return r, nil
}

func (r *runner) onArgumentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		r.fields = nil
		r.screen = screenFunctions
		return r, nil
	case "enter":
		return r, r.invoke
	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = len(r.fields) - 1
		}
		r.fields[r.focus].Blur()
		r.focus = (r.focus + step) % len(r.fields)
		r.fields[r.focus].Focus()
		return r, nil
	}
	return r.forwardToFields(msg)
}

func (r *runner) onResultKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		r.shutdown()
		return r, tea.Quit
	case "enter", "esc":
		r.output, r.failed = "", nil
		r.screen = screenFunctions
	case "r":
		return r, r.invoke
	}
	return r, nil
}

func (r *runner) forwardToFields(msg tea.Msg) (tea.Model, tea.Cmd) {
	if r.screen != screenArguments {
		return r, nil
	}
	cmds := make([]tea.Cmd, len(r.fields))
	for i := range r.fields {
		r.fields[i], cmds[i] = r.fields[i].Update(msg)
	}
	return r, tea.Batch(cmds...)
}

func (r *runner) newFields(s signatureInfo) []textinput.Model {
	fields := make([]textinput.Model, len(s.params))
	for i, a := range s.params {
		in := textinput.New()
		in.Prompt = a.name + " = "
		in.Placeholder = a.typ
		in.CharLimit = 24
		in.Width = 24
		if i == 0 {
			in.Focus()
		}
		fields[i] = in
	}
	r.focus = 0
	return fields
}

// invoke parses the argument fields and runs the selected function.
func (r *runner) invoke() tea.Msg {
	if r.eng == nil {
		return callDone{err: fmt.Errorf("module not loaded")}
	}
	s := r.funcs[r.cursor]
	args := make([]int64, len(r.fields))
	for i, in := range r.fields {
		v, err := strconv.ParseInt(strings.TrimSpace(in.Value()), 0, 64)
		if err != nil {
			return callDone{err: fmt.Errorf("%s: %w", s.params[i].name, err)}
		}
		args[i] = v
	}
	v, err := r.eng.CallNamed(context.Background(), s.name, args...)
	if err != nil {
		return callDone{err: err}
	}
	if s.result == "" {
		return callDone{output: "(void)"}
	}
	return callDone{output: fmt.Sprintf("%d (%s %#x)", v, s.result, uint64(v))}
}

func (r *runner) View() string {
	if r.loadErr != nil {
		return r.style.failure.Render("Error: "+r.loadErr.Error()) + "\n\n" + r.style.help.Render("ctrl+c quit")
	}
	if r.eng == nil {
		return "Compiling " + r.src.name + "..."
	}

	var b strings.Builder
	b.WriteString(r.style.title.Render("irc"))
	b.WriteString(" " + r.src.name + "\n\n")
	switch r.screen {
	case screenFunctions:
		r.viewFunctions(&b)
	case screenArguments:
		r.viewArguments(&b)
	case screenResult:
		r.viewResult(&b)
	}
	return b.String()
}

func (r *runner) viewFunctions(b *strings.Builder) {
	if len(r.funcs) == 0 {
		b.WriteString(r.style.disabled.Render("no defined functions") + "\n\n")
		b.WriteString(r.style.help.Render("q quit"))
		return
	}
	b.WriteString(r.style.heading.Render("Functions") + "\n")
	for i, s := range r.funcs {
		line := s.render(r.style)
		if i == r.cursor {
			line = r.style.cursor.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	if r.showIR {
		b.WriteString("\n" + r.style.listing.Render(strings.TrimRight(r.listing, "\n")) + "\n")
	}
	b.WriteString("\n" + r.style.help.Render("↑/↓ select • enter run • p toggle IR • q quit"))
}

func (r *runner) viewArguments(b *strings.Builder) {
	s := r.funcs[r.cursor]
	b.WriteString(s.render(r.style) + "\n\n")
	for _, in := range r.fields {
		b.WriteString(in.View() + "\n")
	}
	b.WriteString("\n" + r.style.help.Render("tab next • enter run • esc back"))
}

func (r *runner) viewResult(b *strings.Builder) {
	s := r.funcs[r.cursor]
	b.WriteString(s.render(r.style) + "\n\n")
	if r.failed != nil {
		b.WriteString(r.style.failure.Render(r.failed.Error()))
	} else {
		b.WriteString("= " + r.style.ok.Render(r.output))
	}
	b.WriteString("\n\n" + r.style.help.Render("enter back • r run again • q quit"))
}

func runInteractive(src *source) error {
	_, err := tea.NewProgram(newRunner(src), tea.WithAltScreen()).Run()
	return err
}
