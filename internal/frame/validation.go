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

package frame

import (
	"fmt"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

// ValidateHeader checks a header received from the controller. A controller
// never sends commands, control packets keep the two reserved OID bits
// clear, and data packets leave byte 1 reserved.
func ValidateHeader(hdr []byte, operation, port string) error {
	if len(hdr) < HeaderLen {
		return fmt.Errorf("%s %s: short header (%d bytes): %w", operation, port, len(hdr), nfctag.ErrInvalidPacket)
	}
	switch MT(hdr) {
	case MTData:
		if hdr[1] != 0 {
			return fmt.Errorf("%s %s: data header byte 1 = %02X: %w", operation, port, hdr[1], nfctag.ErrInvalidPacket)
		}
	case MTResponse, MTNotification:
		if hdr[1]&^oidMask != 0 {
			return fmt.Errorf("%s %s: invalid OID byte %02X: %w", operation, port, hdr[1], nfctag.ErrInvalidPacket)
		}
	default:
		return fmt.Errorf("%s %s: unexpected message type %d: %w", operation, port, MT(hdr), nfctag.ErrInvalidPacket)
	}
	return nil
}

// ValidatePacket checks the header and that the buffer holds exactly the
// announced payload.
func ValidatePacket(pkt []byte, operation, port string) error {
	if err := ValidateHeader(pkt, operation, port); err != nil {
		return err
	}
	if want := HeaderLen + PayloadLen(pkt); len(pkt) != want {
		return fmt.Errorf("%s %s: packet is %d bytes, header says %d: %w",
			operation, port, len(pkt), want, nfctag.ErrInvalidPacket)
	}
	return nil
}
