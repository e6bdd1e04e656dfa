package lib

import "unsafe"
import "encoding/json"

// Memcpy copy memory block of length `ln` from `src` to `dst`. This
// function is useful if memory block is obtained outside golang runtime.
func Memcpy(dst, src unsafe.Pointer, ln int) int {
	if ln <= 0 {
		return 0
	}
	return copy(unsafe.Slice((*byte)(dst), ln), unsafe.Slice((*byte)(src), ln))
}

// Memset fill memory block of length `ln` starting at `dst` with
// `value`. Return number of bytes filled.
func Memset(dst unsafe.Pointer, value byte, ln int) int {
	if ln <= 0 {
		return 0
	}
	block := unsafe.Slice((*byte)(dst), ln)
	if value == 0 {
		clear(block)
		return ln
	}
	block[0] = value
	for n := 1; n < ln; n *= 2 {
		copy(block[n:], block[:n])
	}
	return ln
}

// Bytes view memory block of length `ln` starting at `ptr` as byte
// slice, without copying.
func Bytes(ptr unsafe.Pointer, ln int) []byte {
	if ptr == nil || ln <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), ln)
}

// Prettystats uses json.MarshalIndent, if pretty is true, instead of
// json.Marshal. If Marshal return error Prettystats will panic.
func Prettystats(stats map[string]interface{}, pretty bool) string {
	if pretty {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			panic(err)
		}
		return string(data)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		panic(err)
	}
	return string(data)
}
