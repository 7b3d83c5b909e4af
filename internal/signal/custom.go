package signal

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// maxCustomFileSize caps custom catalog files.
const maxCustomFileSize = 256 * 1024

// customFile is the on-disk shape of a custom catalog:
//
//	[[signal]]
//	id = "zustand-devtools"
//	category = "state"
//	label = "zustand"
//	weight = 2
//	production_safe = true
//	source = "zustand-devtools"
//	global = "__ZUSTAND_DEVTOOLS__"
type customFile struct {
	Signals []customSignal `toml:"signal"`
}

type customSignal struct {
	ID             string `toml:"id"`
	Category       string `toml:"category"`
	Label          string `toml:"label"`
	Weight         int    `toml:"weight"`
	ProductionSafe bool   `toml:"production_safe"`
	Source         string `toml:"source"`
	Global         string `toml:"global"`
	NonEmpty       string `toml:"non_empty"`
}

// LoadCustom reads declarative global-marker signals from a TOML file.
func LoadCustom(path string) ([]Signal, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat custom catalog: %w", err)
	}
	if info.Size() > maxCustomFileSize {
		return nil, fmt.Errorf("custom catalog %s too large: %d bytes (max %d)", path, info.Size(), maxCustomFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read custom catalog: %w", err)
	}
	return ParseCustom(data)
}

// ParseCustom decodes TOML catalog data into signals.
func ParseCustom(data []byte) ([]Signal, error) {
	var f customFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("decode custom catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidSignal, undecoded[0].String())
	}

	out := make([]Signal, 0, len(f.Signals))
	for _, cs := range f.Signals {
		s, err := cs.toSignal()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (cs customSignal) toSignal() (Signal, error) {
	var check CheckFunc
	switch {
	case cs.Global != "" && cs.NonEmpty != "":
		return Signal{}, fmt.Errorf("%w: signal %s sets both global and non_empty", ErrInvalidSignal, cs.ID)
	case cs.Global != "":
		check = Global(cs.Global)
	case cs.NonEmpty != "":
		check = NonEmpty(cs.NonEmpty)
	default:
		return Signal{}, fmt.Errorf("%w: signal %s needs global or non_empty", ErrInvalidSignal, cs.ID)
	}

	s := Signal{
		ID:             cs.ID,
		Category:       Category(cs.Category),
		Label:          cs.Label,
		Weight:         cs.Weight,
		ProductionSafe: cs.ProductionSafe,
		Source:         cs.Source,
		Check:          check,
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}
