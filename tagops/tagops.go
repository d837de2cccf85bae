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

// Package tagops reads and writes NDEF data on Type 2 tags with raw
// READ and WRITE commands sent through a connected session.
package tagops

import (
	"context"
	"errors"
	"fmt"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

var (
	// ErrNoTag indicates no tag was detected
	ErrNoTag = errors.New("no tag detected")
	// ErrUnsupportedTag indicates the tag type is not supported
	ErrUnsupportedTag = errors.New("unsupported tag type")
	// ErrNotFormatted indicates the capability container is missing
	ErrNotFormatted = errors.New("tag is not NDEF formatted")
	// ErrReadOnly indicates the capability container forbids writes
	ErrReadOnly = errors.New("tag is read-only")
	// ErrTooLarge indicates the data does not fit the tag
	ErrTooLarge = errors.New("data exceeds tag capacity")
	// ErrRestrictedPage indicates a write to the UID, lock or CC pages
	ErrRestrictedPage = errors.New("cannot write to restricted pages (0-3)")
	// ErrShortResponse indicates a READ returned less than four pages
	ErrShortResponse = errors.New("short READ response")
)

// Type 2 commands and layout.
const (
	cmdRead  = 0x30
	cmdWrite = 0xA2
	ackByte  = 0x0A

	pageSize      = 4
	pagesPerRead  = 4
	ccPage        = 3
	userPageStart = 4
	ccMagic       = 0xE1
	maxPages      = 256
)

// TagType represents the type of NFC tag
type TagType int

const (
	// TagTypeUnknown represents an unknown or unsupported tag type
	TagTypeUnknown TagType = iota
	// TagTypeType2 represents an NFC Forum Type 2 tag (NTAG, Ultralight)
	TagTypeType2
)

// TagTypeFromProtocol maps the activated RF protocol to a TagType.
func TagTypeFromProtocol(p nfctag.Protocol) TagType {
	if p == nfctag.ProtocolT2T {
		return TagTypeType2
	}
	return TagTypeUnknown
}

// TagTypeDisplayName returns a human-readable name for the tag type.
func TagTypeDisplayName(t TagType) string {
	switch t {
	case TagTypeType2:
		return "NFC Forum Type 2"
	case TagTypeUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// Transceiver sends a raw tag command and returns the tag's answer.
// *nfctag.Session satisfies it.
type Transceiver interface {
	Transceive(ctx context.Context, cmd []byte) ([]byte, error)
}

// TagOperations provides NDEF access to one connected tag
type TagOperations struct {
	tx  Transceiver
	tag *nfctag.Tag

	tagType    TagType
	dataSize   int
	totalPages int
	readOnly   bool
}

// New creates a new TagOperations instance
func New(tx Transceiver) *TagOperations {
	return &TagOperations{tx: tx}
}

// DetectTag reads the capability container of tag. This must be called
// before any read/write operations.
func (t *TagOperations) DetectTag(ctx context.Context, tag *nfctag.Tag) error {
	if tag == nil {
		return ErrNoTag
	}
	t.tag = tag
	t.tagType = TagTypeFromProtocol(tag.Protocol)
	if t.tagType != TagTypeType2 {
		return fmt.Errorf("%w: %s", ErrUnsupportedTag, tag.Protocol)
	}

	resp, err := t.read(ctx, ccPage)
	if err != nil {
		return fmt.Errorf("failed to read capability container: %w", err)
	}
	cc := resp[:pageSize]
	if cc[0] != ccMagic {
		return fmt.Errorf("%w: CC magic %02X", ErrNotFormatted, cc[0])
	}
	t.dataSize = int(cc[2]) * 8
	// Without SECTOR_SELECT only the 256 pages of sector 0 are addressable.
	t.dataSize = min(t.dataSize, (maxPages-userPageStart)*pageSize)
	t.totalPages = userPageStart + t.dataSize/pageSize
	// Low nibble of CC3 is write access; anything but 0 forbids writes.
	t.readOnly = cc[3]&0x0F != 0
	return nil
}

// TagType returns the detected tag type
func (t *TagOperations) TagType() TagType {
	return t.tagType
}

// GetUID returns the tag's UID
func (t *TagOperations) GetUID() []byte {
	if t.tag == nil {
		return nil
	}
	return t.tag.UID
}

// Capacity returns the size of the NDEF data area in bytes.
func (t *TagOperations) Capacity() int {
	return t.dataSize
}

// IsReadOnly reports whether the capability container forbids writes.
func (t *TagOperations) IsReadOnly() bool {
	return t.readOnly
}

// read sends one READ and returns its four pages.
func (t *TagOperations) read(ctx context.Context, page byte) ([]byte, error) {
	resp, err := t.tx.Transceive(ctx, []byte{cmdRead, page})
	if err != nil {
		return nil, fmt.Errorf("READ page %d: %w", page, err)
	}
	if len(resp) < pagesPerRead*pageSize {
		return nil, fmt.Errorf("%w: page %d returned %d bytes", ErrShortResponse, page, len(resp))
	}
	return resp, nil
}
