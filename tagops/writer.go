// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tagops

import (
	"context"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

const maxShortTLV = 0xFE

// WritePages writes data page by page starting at startPage. The last page
// is zero padded.
func (t *TagOperations) WritePages(ctx context.Context, startPage byte, data []byte) error {
	if t.tag == nil {
		return ErrNoTag
	}
	if t.tagType != TagTypeType2 {
		return ErrUnsupportedTag
	}
	if startPage < userPageStart {
		return ErrRestrictedPage
	}
	numPages := (len(data) + pageSize - 1) / pageSize
	if int(startPage)+numPages > t.totalPages {
		return fmt.Errorf("%w: %d pages from page %d", ErrTooLarge, numPages, startPage)
	}

	for i := range numPages {
		page := startPage + byte(i)
		cmd := make([]byte, 2+pageSize)
		cmd[0], cmd[1] = cmdWrite, page
		copy(cmd[2:], data[i*pageSize:min(len(data), (i+1)*pageSize)])

		resp, err := t.tx.Transceive(ctx, cmd)
		if err != nil {
			return fmt.Errorf("failed to write page %d: %w", page, err)
		}
		if len(resp) > 0 && resp[0]&0x0F != ackByte {
			return fmt.Errorf("failed to write page %d: unexpected answer %X", page, resp)
		}
	}
	return nil
}

// WriteNDEF writes msg as the NDEF TLV of the data area.
func (t *TagOperations) WriteNDEF(ctx context.Context, msg *ndef.Message) error {
	if t.tag == nil {
		return ErrNoTag
	}
	if t.readOnly {
		return ErrReadOnly
	}
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	tlv := buildNDEFTLV(payload)
	if len(tlv) > t.dataSize {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrTooLarge, len(tlv), t.dataSize)
	}
	return t.WritePages(ctx, userPageStart, tlv)
}

// WriteText writes a single English text record.
func (t *TagOperations) WriteText(ctx context.Context, text string) error {
	return t.WriteNDEF(ctx, ndef.NewTextMessage(text, "en"))
}

// buildNDEFTLV wraps an encoded message in an NDEF TLV and a terminator.
func buildNDEFTLV(payload []byte) []byte {
	var tlv []byte
	if len(payload) < maxShortTLV {
		tlv = append(tlv, tlvNDEF, byte(len(payload)))
	} else {
		tlv = append(tlv, tlvNDEF, tlvLong, byte(len(payload)>>8), byte(len(payload)))
	}
	tlv = append(tlv, payload...)
	return append(tlv, tlvTerminator)
}
