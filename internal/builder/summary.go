package builder

import (
	"fmt"
	"io"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

type field struct {
	name  string
	value any
}

// Summary prints the fields of a freshly built superblock
func Summary(w io.Writer, path string, sb *uapi.Superblock) error {
	kind := KindCache
	if sb.IsBdev() {
		kind = KindBacking
	}

	fields := []field{
		{"Name", path},
		{"Label", sb.LabelString()},
		{"Type", kind.String()},
		{"UUID:", sb.UUID.String()},
		{"Set UUID:", sb.SetUUID.String()},
		{"version:", sb.Version},
	}
	if kind == KindBacking {
		fields = append(fields,
			field{"block_size_in_sectors:", sb.BlockSize},
			field{"data_offset_in_sectors:", dataOffset(sb)},
			field{"cache_mode:", sb.CacheMode().String()},
		)
	} else {
		fields = append(fields,
			field{"nbuckets:", sb.NBuckets},
			field{"block_size_in_sectors:", sb.BlockSize},
			field{"bucket_size_in_sectors:", sb.BucketSize},
			field{"nr_in_set:", sb.NrInSet},
			field{"nr_this_dev:", sb.NrThisDev},
			field{"first_bucket:", sb.FirstBucket},
			field{"replacement:", sb.CacheReplacement().String()},
			field{"discard:", sb.CacheDiscard()},
		)
	}

	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%-24s%v\n", f.name, f.value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// dataOffset reports the effective data offset. Version 1 superblocks
// leave the field zero and imply the default.
func dataOffset(sb *uapi.Superblock) uint64 {
	if sb.Version == uapi.VersionBdev {
		return constants.BDevDataStartDefault
	}
	return sb.DataOffset
}
