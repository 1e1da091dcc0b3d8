package enumerator

import (
	"github.com/pkg/errors"
)

// ErrUnknownEnumerator is returned by ByName for an unrecognized name.
var ErrUnknownEnumerator = errors.New("enumerator: unknown plan enumerator")

// ByName resolves one of the five enumerator names to a fresh instance.
func ByName(name string) (Enumerator, error) {
	switch name {
	case "DPsize":
		return &DPsize{}, nil
	case "DPsizeOpt":
		return &DPsize{Opt: true}, nil
	case "DPsub":
		return &DPsub{}, nil
	case "DPsubOpt":
		return &DPsub{Opt: true}, nil
	case "DPccp":
		return &DPccp{}, nil
	default:
		return nil, errors.Wrap(ErrUnknownEnumerator, name)
	}
}
