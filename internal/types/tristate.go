package types

// TriState is a boolean that may also be unknown.
type TriState uint8

const (
	Unknown TriState = iota
	False
	True
)

// TriStateOf converts a plain bool.
func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// Bool returns the value and whether it is known.
func (t TriState) Bool() (value bool, known bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON emits true, false or null.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}
