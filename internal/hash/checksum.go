package hash

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC32-Castagnoli checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// UpdateChecksum continues crc with data, so a checksum can span
// discontiguous ranges: Checksum(a+b) == UpdateChecksum(Checksum(a), b).
func UpdateChecksum(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}
