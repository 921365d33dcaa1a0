package compute

// Cache-key byte layout consumed by the external result cache:
// [1 type-tag byte] ++ fieldName UTF-8 ++ [separator] ++ expression UTF-8.
// The output name deliberately does not participate, so renamed but
// otherwise identical aggregations share cache entries. Tags are assigned
// per (operation, kind) family and must never be reused.
const cacheKeySeparator byte = 0xFF

const (
	cacheTypeFloat64Sum byte = 0x01
	cacheTypeFloat64Min byte = 0x02
	cacheTypeFloat64Max byte = 0x03
	cacheTypeFloat32Sum byte = 0x04
	cacheTypeFloat32Min byte = 0x05
	cacheTypeFloat32Max byte = 0x06
	cacheTypeInt64Sum   byte = 0x07
	cacheTypeInt64Min   byte = 0x08
	cacheTypeInt64Max   byte = 0x09
	cacheTypeInt32Sum   byte = 0x0A
	cacheTypeInt32Min   byte = 0x0B
	cacheTypeInt32Max   byte = 0x0C
)

func buildCacheKey(tag byte, fieldName string, expression string) []byte {
	ret := make([]byte, 0, 2+len(fieldName)+len(expression))
	ret = append(ret, tag)
	ret = append(ret, fieldName...)
	ret = append(ret, cacheKeySeparator)
	ret = append(ret, expression...)
	return ret
}
