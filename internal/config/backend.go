package config

import (
	"fmt"
	"strconv"
)

// ConfigBackend persists emconsole settings by dotted key. macOS stores them
// in the com.emconsole.app UserDefaults domain; other platforms use an XDG
// JSON file. Values are stored in their native type.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	Delete(key string) error
}

// lookupSpec returns the spec registered for key.
func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// setKeyWith validates value against the key's spec and stores it in b
// using the key's native type.
func setKeyWith(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	v, err := s.normalize(value)
	if err != nil {
		return err
	}
	switch s.typ {
	case kInt:
		i, _ := strconv.Atoi(v)
		return b.SetInt(key, i)
	case kBool:
		bv, _ := strconv.ParseBool(v)
		return b.SetBool(key, bv)
	default:
		return b.SetString(key, v)
	}
}

// unknownKeys returns the stored keys that no spec recognizes, in input order.
func unknownKeys(stored []string) []string {
	var out []string
	for _, k := range stored {
		if _, ok := lookupSpec(k); !ok {
			out = append(out, k)
		}
	}
	return out
}
