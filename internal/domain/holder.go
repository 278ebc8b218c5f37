package domain

// HolderName is the display name of an account holder as stored. Rows written
// before sealing was introduced hold PlaintextName; newer rows hold SealedName.
// Which one a row is gets decided when it is read, from the columns present.
type HolderName interface {
	isHolderName()
}

// PlaintextName is a holder name stored in clear.
type PlaintextName string

// SealedName is a holder name sealed with the holder-name key.
type SealedName []byte

func (PlaintextName) isHolderName() {}
func (SealedName) isHolderName()    {}

// NameOpener reveals sealed holder names.
type NameOpener interface {
	Open(sealed []byte) ([]byte, error)
}

// RevealHolderName returns the display form of name. A sealed name that cannot
// be opened is an error rather than being shown as-is.
func RevealHolderName(name HolderName, opener NameOpener) (string, error) {
	switch n := name.(type) {
	case nil:
		return "", nil
	case PlaintextName:
		return string(n), nil
	case SealedName:
		if opener == nil {
			return "", ErrHolderNameSealed
		}
		plain, err := opener.Open(n)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	default:
		return "", ErrHolderNameSealed
	}
}
