package eccfile

import (
	"strconv"
	"strings"
	"time"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
)

// FileInfo is one candidate file for generation or size prediction.
type FileInfo struct {
	RelPath string
	Size    int64
}

// PredictSize returns the exact byte size of the ecc file that
// generation would produce for the given files, without encoding
// anything. Stats mode uses this to let the operator budget storage
// before committing to a rate.
func PredictSize(params Params, format Format, files []FileInfo) (int64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if err := format.Validate(); err != nil {
		return 0, err
	}
	h, err := hasher.New(params.HashAlgo)
	if err != nil {
		return 0, err
	}

	// The run id is a ksuid, always 27 characters.
	dummyRun := strings.Repeat("0", 27)
	total := int64(len(headerBytes(params, format, dummyRun, time.Unix(0, 0))))

	k := intraMessageSize()
	intraChunk := 2 * (intraBlockSize - k) // hex-encoded parity per meta chunk
	for _, fi := range files {
		sizeStr := strconv.FormatInt(fi.Size, 10)
		meta := metaField(fi.RelPath, sizeStr)
		chunks := (len(meta) + k - 1) / k

		entry := int64(len(format.EntryMarker)) +
			int64(len(fi.RelPath)) +
			int64(len(sizeStr)) +
			int64(chunks*intraChunk) +
			3*int64(len(format.FieldDelim)) +
			params.TrackRegionSize(fi.Size, h.Size())
		total += entry * int64(params.Replication)
	}
	return total, nil
}
