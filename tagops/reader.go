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
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// TLV tags of the Type 2 data area.
const (
	tlvNull       = 0x00
	tlvLockCtrl   = 0x01
	tlvMemoryCtrl = 0x02
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
	tlvLong       = 0xFF
)

// ErrNoNDEF indicates the data area holds no NDEF TLV
var ErrNoNDEF = errors.New("no NDEF TLV found")

// ReadPages reads an inclusive range of pages. The range is clipped to the
// tag's memory.
func (t *TagOperations) ReadPages(ctx context.Context, startPage, endPage byte) ([]byte, error) {
	if t.tag == nil {
		return nil, ErrNoTag
	}
	if t.tagType != TagTypeType2 {
		return nil, ErrUnsupportedTag
	}
	if int(endPage) >= t.totalPages {
		endPage = byte(t.totalPages - 1)
	}
	if startPage > endPage {
		return nil, fmt.Errorf("invalid page range %d-%d", startPage, endPage)
	}

	expected := int(endPage-startPage+1) * pageSize
	result := make([]byte, 0, expected+pagesPerRead*pageSize)
	for page := int(startPage); page <= int(endPage); page += pagesPerRead {
		chunk, err := t.read(ctx, byte(page))
		if err != nil {
			return nil, err
		}
		result = append(result, chunk[:pagesPerRead*pageSize]...)
	}
	return result[:expected], nil
}

// ReadNDEF reads and parses the NDEF message of the tag. An empty NDEF TLV
// yields an empty message.
func (t *TagOperations) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	data, err := t.ReadPages(ctx, userPageStart, byte(t.totalPages-1))
	if err != nil {
		return nil, err
	}
	payload, err := findNDEFTLV(data)
	if err != nil {
		return nil, err
	}
	msg := &ndef.Message{}
	if len(payload) == 0 {
		return msg, nil
	}
	if _, err := msg.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
	}
	return msg, nil
}

// findNDEFTLV walks the TLV blocks of a data area and returns the value of
// the first NDEF TLV.
func findNDEFTLV(data []byte) ([]byte, error) {
	i := 0
	for i < len(data) {
		tag := data[i]
		i++
		switch tag {
		case tlvNull:
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		}

		if i >= len(data) {
			return nil, fmt.Errorf("%w: truncated TLV length", ErrNoNDEF)
		}
		length := int(data[i])
		i++
		if length == tlvLong {
			if i+2 > len(data) {
				return nil, fmt.Errorf("%w: truncated TLV length", ErrNoNDEF)
			}
			length = int(data[i])<<8 | int(data[i+1])
			i += 2
		}
		if i+length > len(data) {
			return nil, fmt.Errorf("%w: TLV of %d bytes overruns data area", ErrNoNDEF, length)
		}
		if tag == tlvNDEF {
			return data[i : i+length], nil
		}
		// Lock control, memory control and proprietary TLVs are skipped.
		i += length
	}
	return nil, ErrNoNDEF
}
