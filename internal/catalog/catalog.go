// Package catalog holds the immutable set of investment options offered by
// the engine. The catalog is built once at startup and is read-only after
// that, so lookups need no synchronization.
package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/model"
)

var (
	ErrDuplicateName = errors.New("catalog: duplicate option name")
	ErrInvalidOption = errors.New("catalog: invalid option")
)

// Catalog is an immutable, name-keyed collection of options.
type Catalog struct {
	options []model.Option
	byName  map[string]model.Option
}

// New builds a catalog from the given options. Every option must have a
// non-empty unique name, a positive cost, an expected return greater than
// the cost, and a positive duration.
func New(options ...model.Option) (*Catalog, error) {
	c := &Catalog{
		options: make([]model.Option, 0, len(options)),
		byName:  make(map[string]model.Option, len(options)),
	}
	for _, opt := range options {
		if opt.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidOption)
		}
		if opt.Cost.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: %s: cost must be positive", ErrInvalidOption, opt.Name)
		}
		if opt.ExpectedReturn.LessThanOrEqual(opt.Cost) {
			return nil, fmt.Errorf("%w: %s: expected return must exceed cost", ErrInvalidOption, opt.Name)
		}
		if opt.DurationSeconds <= 0 {
			return nil, fmt.Errorf("%w: %s: duration must be positive", ErrInvalidOption, opt.Name)
		}
		if _, exists := c.byName[opt.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, opt.Name)
		}
		c.options = append(c.options, opt)
		c.byName[opt.Name] = opt
	}
	return c, nil
}

// Default returns the standard three-option catalog.
func Default() *Catalog {
	c, err := New(
		model.Option{Name: "Short-term", Cost: decimal.NewFromInt(10), ExpectedReturn: decimal.NewFromInt(20), DurationSeconds: 10},
		model.Option{Name: "Mid-term", Cost: decimal.NewFromInt(100), ExpectedReturn: decimal.NewFromInt(250), DurationSeconds: 30},
		model.Option{Name: "Long-term", Cost: decimal.NewFromInt(1000), ExpectedReturn: decimal.NewFromInt(3000), DurationSeconds: 60},
	)
	if err != nil {
		panic(err) // static defaults, cannot fail
	}
	return c
}

// Get looks up an option by name.
func (c *Catalog) Get(name string) (model.Option, bool) {
	opt, ok := c.byName[name]
	return opt, ok
}

// Options returns a copy of all options in declaration order.
func (c *Catalog) Options() []model.Option {
	out := make([]model.Option, len(c.options))
	copy(out, c.options)
	return out
}
