package bldms

// Hardcoded implementation limits.
//
// These exist to keep the rotor scan and index snapshot bounded in size
// for configurations the project does not test, and to avoid surprising
// callers who pass MaxBlocks=0 and expect a sane default.
const (
	// BlockSize is the fixed size in bytes of every block in the image,
	// including the header.
	BlockSize = 4096

	// HeaderSize is the packed on-disk size of a data block header:
	// 8 bytes nsec + one 16-bit bitfield word.
	HeaderSize = 10

	// MaxPayloadSize is the largest payload Append will accept.
	MaxPayloadSize = BlockSize - HeaderSize

	// DefaultMaxBlocks is used when Options.MaxBlocks is zero.
	DefaultMaxBlocks = 1000

	// maxBlocksHardLimit bounds Options.MaxBlocks regardless of caller
	// input, keeping the rotor scan and the metadata table allocation
	// within sane memory.
	maxBlocksHardLimit = 1 << 24

	// sbBlockNumber and inodeBlockNumber are the fixed logical block
	// indices of the superblock and inode, per the on-image layout.
	sbBlockNumber    = 0
	inodeBlockNumber = 1

	// dataBlockOffset is the logical block index of the first data block.
	dataBlockOffset = 2

	// magic is the compile-time superblock magic value.
	magic = 0x30303030

	// formatVersion is the superblock version written into fresh images.
	// Bind validates the magic only; the version field is informational.
	formatVersion = 1
)
