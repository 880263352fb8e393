// Package validate checks caller-supplied charge definitions against an
// embedded CUE schema before any write happens.
package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/schedule"
)

//go:embed charges.cue
var chargesSchema string

// Validator holds the compiled schema. A cue.Context is not safe for
// concurrent use, so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	charge cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(chargesSchema, cue.Filename("charges.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling charge schema: %w", err)
	}
	charge := schema.LookupPath(cue.ParsePath("#Charge"))
	if err := charge.Err(); err != nil {
		return nil, fmt.Errorf("looking up #Charge: %w", err)
	}
	return &Validator{ctx: ctx, charge: charge}, nil
}

// MustNew is New for static initialization.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Charges validates every charge, returning a *domain.ValidationError that
// names the first offending field.
func (v *Validator) Charges(charges []schedule.Charge) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, c := range charges {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding charge %d: %w", i, err)
		}
		val := v.ctx.CompileBytes(raw)
		if err := val.Err(); err != nil {
			return fmt.Errorf("compiling charge %d: %w", i, err)
		}
		if err := v.charge.Unify(val).Validate(cue.Concrete(true)); err != nil {
			return chargeError(i, err)
		}
	}
	return nil
}

func chargeError(i int, err error) error {
	field := fmt.Sprintf("extraCharges[%d]", i)
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return domain.Invalid(field, "%v", err)
	}
	first := errs[0]
	if path := first.Path(); len(path) > 0 {
		if p := path[len(path)-1]; !strings.HasPrefix(p, "#") {
			field += "." + p
		}
	}
	format, args := first.Msg()
	return domain.Invalid(field, format, args...)
}
