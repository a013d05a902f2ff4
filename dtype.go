package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Dtype is the set of all zarr data types
// Simple data types as a string following the NumPy array protocol type string
// (typestr) format. The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant)
//   - One character code giving the basic type of the array:
//     "b" boolean, "i" integer, "u" unsigned integer, "f" floating point,
//     "c" complex floating point, "m" timedelta, "M" datetime,
//     "S" fixed-length string, "U" unicode, "V" other
//   - An integer specifying the number of bytes the type uses.
//
// Only the boolean and numeric basic types can be decoded into buffers.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

func ParseDtype(s string) (dt Dtype, err error) {
	// bug in python implementation uses HTML escape sequences when serializaing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	if dt.ByteOrder, err = ParseByteOrder(rune(s[0])); err != nil {
		return dt, err
	}
	if dt.BasicType, err = ParseBasicType(rune(s[1])); err != nil {
		return dt, err
	}

	sizeStr := s[2:]
	if i := strings.IndexByte(sizeStr, '['); i >= 0 {
		sizeStr, dt.Units = sizeStr[:i], sizeStr[i:]
	}

	size, err := strconv.ParseInt(sizeStr, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid Dtype size %q: %w", sizeStr, err)
	}
	dt.ByteSize = int(size)

	return dt, nil
}

func (dt Dtype) String() string {
	s := fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
	if dt.Units != "" {
		s += dt.Units
	}
	return s
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return fmt.Errorf("structured dtypes are not supported: %w", err)
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

func (dt Dtype) binaryOrder() binary.ByteOrder {
	if dt.ByteOrder == BOLittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// NewSlice allocates a typed slice of n elements able to hold decoded values
// of dt, e.g. []uint16 for "<u2".
func (dt Dtype) NewSlice(n int) (interface{}, error) {
	switch dt.BasicType {
	case BTBoolean:
		return make([]bool, n), nil
	case BTInteger:
		switch dt.ByteSize {
		case 1:
			return make([]int8, n), nil
		case 2:
			return make([]int16, n), nil
		case 4:
			return make([]int32, n), nil
		case 8:
			return make([]int64, n), nil
		}
	case BTUnsigned:
		switch dt.ByteSize {
		case 1:
			return make([]uint8, n), nil
		case 2:
			return make([]uint16, n), nil
		case 4:
			return make([]uint32, n), nil
		case 8:
			return make([]uint64, n), nil
		}
	case BTFloatingPoint:
		switch dt.ByteSize {
		case 4:
			return make([]float32, n), nil
		case 8:
			return make([]float64, n), nil
		}
	case BTComplex:
		switch dt.ByteSize {
		case 8:
			return make([]complex64, n), nil
		case 16:
			return make([]complex128, n), nil
		}
	}
	return nil, fmt.Errorf("unsupported decoding type %q: %d byte %s values can't be decoded", dt.String(), dt.ByteSize, dt.BasicType.Human())
}

// fill sets every element of the typed slice buf to the zarr fill_value v.
// A nil fill value leaves the zeroed buffer untouched.
func fill(buf interface{}, v interface{}) error {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case bool:
		if x {
			f = 1
		}
	case string:
		switch x {
		case FillValueNaN:
			f = math.NaN()
		case FillValueInfinity:
			f = math.Inf(1)
		case FillValueNegativeInfinity:
			f = math.Inf(-1)
		default:
			return fmt.Errorf("unsupported fill value %q", x)
		}
	default:
		return fmt.Errorf("unsupported fill value type %T", v)
	}
	if f == 0 {
		return nil
	}

	rv := reflect.ValueOf(buf)
	if rv.Len() == 0 {
		return nil
	}
	first := rv.Index(0)
	switch first.Kind() {
	case reflect.Bool:
		first.SetBool(f != 0)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		first.SetInt(int64(f))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		first.SetUint(uint64(f))
	case reflect.Float32, reflect.Float64:
		first.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		first.SetComplex(complex(f, 0))
	}
	// double the filled prefix until the whole buffer is covered
	for n := 1; n < rv.Len(); n *= 2 {
		reflect.Copy(rv.Slice(n, rv.Len()), rv.Slice(0, n))
	}
	return nil
}

// Len returns the element count of a decoded buffer.
func Len(buf interface{}) int {
	if buf == nil {
		return 0
	}
	return reflect.ValueOf(buf).Len()
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timeDelta",
	BTDatetime:      "dateTime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}
