package common

import "fmt"

const (
	BoolSize    = 1
	Int8Size    = 1
	Int16Size   = 2
	Int32Size   = 4
	Int64Size   = 8
	Float32Size = 4
	Float64Size = 8
	DictIdSize  = 4
)

type ValueKind int

const (
	VK_INVALID ValueKind = 0
	VK_FLOAT32 ValueKind = 1
	VK_FLOAT64 ValueKind = 2
	VK_INT32   ValueKind = 3
	VK_INT64   ValueKind = 4
	VK_STRING  ValueKind = 5
	VK_COMPLEX ValueKind = 6
)

var kindToStr = map[ValueKind]string{
	VK_INVALID: "INVALID",
	VK_FLOAT32: "FLOAT32",
	VK_FLOAT64: "FLOAT64",
	VK_INT32:   "INT32",
	VK_INT64:   "INT64",
	VK_STRING:  "STRING",
	VK_COMPLEX: "COMPLEX",
}

func (vk ValueKind) String() string {
	if s, has := kindToStr[vk]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", vk))
}

// PhySize is the fixed byte count of the value region in a grouping key
// slot. Strings and complex values enter the key as interned dictionary
// ids, so their slots are fixed width too.
func (vk ValueKind) PhySize() int {
	switch vk {
	case VK_FLOAT32:
		return Float32Size
	case VK_FLOAT64:
		return Float64Size
	case VK_INT32:
		return Int32Size
	case VK_INT64:
		return Int64Size
	case VK_STRING, VK_COMPLEX:
		return DictIdSize
	default:
		panic("usp")
	}
}

func (vk ValueKind) IsNumeric() bool {
	switch vk {
	case VK_FLOAT32, VK_FLOAT64, VK_INT32, VK_INT64:
		return true
	default:
		return false
	}
}
