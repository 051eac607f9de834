package eccfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

// The comment header makes the ecc file self-describing: every
// parameter needed to decode it is written as a human-readable
// "** key: value" line right after the magic. A reader recovers the
// parameters from here; when the header itself is corrupted the caller
// falls back to a saved configuration profile.

func headerBytes(params Params, format Format, runID string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString(Magic)
	line := func(key, value string) {
		fmt.Fprintf(&b, "%s%s: %s\n", CommentPrefix, key, value)
	}
	line("note", "bulwark ecc file - do not edit, every byte below is significant")
	line("generated", now.UTC().Format(time.RFC3339))
	line("run", runID)
	line("profile", strconv.Itoa(int(params.Profile)))
	line("codec", params.Profile.Description())
	line("block_size", strconv.Itoa(params.BlockSize))
	line("hash", string(params.HashAlgo))
	line("header_size", strconv.FormatInt(params.HeaderSize, 10))
	line("rate_s1", formatRate(params.RateS1))
	line("adaptive", strconv.FormatBool(params.Adaptive))
	line("rate_s2", formatRate(params.RateS2))
	line("rate_s3", formatRate(params.RateS3))
	line("replication", strconv.Itoa(params.Replication))
	line("entry_marker", hex.EncodeToString(format.EntryMarker))
	line("field_delim", hex.EncodeToString(format.FieldDelim))
	return []byte(b.String())
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'g', -1, 64)
}

// parseHeader reads the magic and comment lines and reconstructs the
// parameters and token grammar. It returns the byte length of the
// header so the caller can start the entry scan after it.
func parseHeader(r *bufio.Reader) (Params, Format, int64, error) {
	var params Params
	var format Format

	magic, err := r.ReadString('\n')
	if err != nil || magic != Magic {
		return params, format, 0, fmt.Errorf("%w: %q", ErrBadMagic, strings.TrimRight(magic, "\n"))
	}
	consumed := int64(len(magic))

	for {
		peek, err := r.Peek(len(CommentPrefix))
		if err != nil || string(peek) != CommentPrefix {
			break
		}
		raw, err := r.ReadString('\n')
		if err != nil {
			return params, format, 0, fmt.Errorf("eccfile: unterminated header line: %w", err)
		}
		consumed += int64(len(raw))

		kv := strings.SplitN(strings.TrimPrefix(strings.TrimRight(raw, "\n"), CommentPrefix), ": ", 2)
		if len(kv) != 2 {
			continue
		}
		if err := applyHeaderField(&params, &format, kv[0], kv[1]); err != nil {
			return params, format, 0, err
		}
	}

	if err := params.Validate(); err != nil {
		return params, format, 0, fmt.Errorf("eccfile: header: %w", err)
	}
	if err := format.Validate(); err != nil {
		return params, format, 0, fmt.Errorf("eccfile: header: %w", err)
	}
	return params, format, consumed, nil
}

func applyHeaderField(params *Params, format *Format, key, value string) error {
	var err error
	switch key {
	case "profile":
		var v int
		if v, err = strconv.Atoi(value); err == nil {
			params.Profile = rs.Profile(v)
		}
	case "block_size":
		params.BlockSize, err = strconv.Atoi(value)
	case "hash":
		params.HashAlgo = hasher.Algo(value)
	case "header_size":
		params.HeaderSize, err = strconv.ParseInt(value, 10, 64)
	case "rate_s1":
		params.RateS1, err = strconv.ParseFloat(value, 64)
	case "adaptive":
		params.Adaptive, err = strconv.ParseBool(value)
	case "rate_s2":
		params.RateS2, err = strconv.ParseFloat(value, 64)
	case "rate_s3":
		params.RateS3, err = strconv.ParseFloat(value, 64)
	case "replication":
		params.Replication, err = strconv.Atoi(value)
	case "entry_marker":
		format.EntryMarker, err = hex.DecodeString(value)
	case "field_delim":
		format.FieldDelim, err = hex.DecodeString(value)
	}
	if err != nil {
		return fmt.Errorf("eccfile: header field %q: %w", key, err)
	}
	return nil
}
