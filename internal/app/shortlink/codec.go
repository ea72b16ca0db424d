package shortlink

import (
	"fmt"

	"github.com/sqids/sqids-go"
)

// Coder turns a row id into a short code.
type Coder interface {
	Encode(id uint64) (string, error)
}

// Base62Coder is the plain base62 scheme.
type Base62Coder struct{}

func (Base62Coder) Encode(id uint64) (string, error) {
	// Codes shorter than 3 characters are rejected by ValidateCode.
	code := EncodeBase62(id)
	for len(code) < 3 {
		code = "0" + code
	}
	return code, nil
}

const sqidsAlphabet = "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat"

// SqidsCoder produces non-sequential looking codes of at least three
// characters.
type SqidsCoder struct {
	sq *sqids.Sqids
}

func NewSqidsCoder() (*SqidsCoder, error) {
	sq, err := sqids.New(sqids.Options{
		Alphabet:  sqidsAlphabet,
		MinLength: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("sqids init: %w", err)
	}
	return &SqidsCoder{sq: sq}, nil
}

func (c *SqidsCoder) Encode(id uint64) (string, error) {
	return c.sq.Encode([]uint64{id})
}

// NewCoder selects a coder by CODE_SCHEME value.
func NewCoder(scheme string) (Coder, error) {
	switch scheme {
	case "", "sqids":
		return NewSqidsCoder()
	case "base62":
		return Base62Coder{}, nil
	default:
		return nil, fmt.Errorf("unknown code scheme %q", scheme)
	}
}
