package catalog_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/catalog"
	"github.com/vesto/invest-engine/internal/model"
)

func opt(name string, cost, ret int64, seconds int64) model.Option {
	return model.Option{
		Name:            name,
		Cost:            decimal.NewFromInt(cost),
		ExpectedReturn:  decimal.NewFromInt(ret),
		DurationSeconds: seconds,
	}
}

func TestDefault_ThreeOptions(t *testing.T) {
	c := catalog.Default()

	options := c.Options()
	if len(options) != 3 {
		t.Fatalf("expected 3 default options, got %d", len(options))
	}

	short, ok := c.Get("Short-term")
	if !ok {
		t.Fatal("expected Short-term option")
	}
	if !short.Cost.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected Short-term cost 10, got %s", short.Cost)
	}
	if !short.ExpectedReturn.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected Short-term return 20, got %s", short.ExpectedReturn)
	}
	if short.DurationSeconds != 10 {
		t.Errorf("expected Short-term duration 10s, got %d", short.DurationSeconds)
	}
}

func TestGet_Unknown(t *testing.T) {
	c := catalog.Default()
	if _, ok := c.Get("Crypto-moonshot"); ok {
		t.Error("expected lookup miss for unknown option")
	}
}

func TestNew_RejectsDuplicateName(t *testing.T) {
	_, err := catalog.New(opt("A", 10, 20, 5), opt("A", 30, 40, 5))
	if !errors.Is(err, catalog.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	cases := []struct {
		name string
		o    model.Option
	}{
		{"empty name", opt("", 10, 20, 5)},
		{"zero cost", opt("A", 0, 20, 5)},
		{"return not above cost", opt("A", 10, 10, 5)},
		{"zero duration", opt("A", 10, 20, 0)},
	}

	for _, tc := range cases {
		if _, err := catalog.New(tc.o); !errors.Is(err, catalog.ErrInvalidOption) {
			t.Errorf("%s: expected ErrInvalidOption, got %v", tc.name, err)
		}
	}
}

func TestOptions_ReturnsCopy(t *testing.T) {
	c := catalog.Default()
	first := c.Options()
	first[0].Name = "mutated"

	if c.Options()[0].Name == "mutated" {
		t.Error("Options must return a copy, not the internal slice")
	}
}
