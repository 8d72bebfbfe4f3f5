package resolver

import (
	"errors"
	"fmt"
)

var (
	ErrTargetNoModule    = errors.New("target has no module")
	ErrTargetAmbiguous   = errors.New("target sets both symbol and offset")
	ErrTargetNoReference = errors.New("target sets neither symbol nor offset")
)

// Target names one location in a module, either by exported symbol or by a
// fixed offset from the module base.
type Target struct {
	Module string  `yaml:"module"`
	Symbol string  `yaml:"symbol,omitempty"`
	Offset *uint64 `yaml:"offset,omitempty"`
}

// SymbolTarget returns a Target for symbol in module.
func SymbolTarget(module, symbol string) Target {
	return Target{Module: module, Symbol: symbol}
}

// OffsetTarget returns a Target at offset bytes past the base of module.
func OffsetTarget(module string, offset uint64) Target {
	return Target{Module: module, Offset: &offset}
}

// Validate checks that exactly one of Symbol and Offset is set.
func (t Target) Validate() error {
	switch {
	case t.Module == "":
		return ErrTargetNoModule
	case t.Symbol != "" && t.Offset != nil:
		return fmt.Errorf("%s: %w", t.Module, ErrTargetAmbiguous)
	case t.Symbol == "" && t.Offset == nil:
		return fmt.Errorf("%s: %w", t.Module, ErrTargetNoReference)
	}
	return nil
}

// Name is the symbol name, or "+0x<offset>" for offset targets.
func (t Target) Name() string {
	if t.Offset != nil {
		return fmt.Sprintf("+0x%x", *t.Offset)
	}
	return t.Symbol
}

// CrossTargets pairs every module with every symbol, modules outermost.
func CrossTargets(modules, symbols []string) []Target {
	targets := make([]Target, 0, len(modules)*len(symbols))
	for _, module := range modules {
		for _, symbol := range symbols {
			targets = append(targets, SymbolTarget(module, symbol))
		}
	}
	return targets
}
