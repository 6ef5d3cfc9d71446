package storage

import "fmt"

// QueryType is the access mode an array is opened under.
type QueryType uint8

const (
	QueryTypeRead QueryType = iota
	QueryTypeWrite
	QueryTypeDelete
	QueryTypeUpdate
	QueryTypeModifyExclusive
)

func (t QueryType) String() string {
	switch t {
	case QueryTypeRead:
		return "READ"
	case QueryTypeWrite:
		return "WRITE"
	case QueryTypeDelete:
		return "DELETE"
	case QueryTypeUpdate:
		return "UPDATE"
	case QueryTypeModifyExclusive:
		return "MODIFY_EXCLUSIVE"
	default:
		return fmt.Sprintf("QUERY_TYPE(%d)", uint8(t))
	}
}

// IsValid reports whether t is a declared query type.
func (t QueryType) IsValid() bool { return t <= QueryTypeModifyExclusive }

// EncryptionType selects the at-rest encryption of an array.
type EncryptionType uint8

const (
	// NoEncryption stores arrays in the clear.
	NoEncryption EncryptionType = iota

	// AES256GCM is declared but not implemented; opening an array with it
	// fails.
	AES256GCM
)

func (t EncryptionType) String() string {
	switch t {
	case NoEncryption:
		return "NO_ENCRYPTION"
	case AES256GCM:
		return "AES_256_GCM"
	default:
		return fmt.Sprintf("ENCRYPTION_TYPE(%d)", uint8(t))
	}
}
