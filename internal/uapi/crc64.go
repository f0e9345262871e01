package uapi

// crc64ECMA is the ECMA-182 polynomial in its MSB-first form. The kernel's
// crc64_be uses this orientation; hash/crc64 only implements the reflected one.
const crc64ECMA = 0x42F0E1EBA9EA3693

var crc64Table = makeCRC64Table()

func makeCRC64Table() *[256]uint64 {
	t := new([256]uint64)
	for i := 0; i < 256; i++ {
		crc := uint64(i) << 56
		for j := 0; j < 8; j++ {
			if crc&(1<<63) != 0 {
				crc = crc<<1 ^ crc64ECMA
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC64 computes bch_crc64: crc64_be seeded with all ones and inverted on output
func CRC64(p []byte) uint64 {
	crc := ^uint64(0)
	for _, b := range p {
		crc = crc64Table[byte(crc>>56)^b] ^ (crc << 8)
	}
	return ^crc
}
