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

package nci

import "context"

// TransportType identifies how the controller is attached.
type TransportType string

// Transport types
const (
	TransportUART   TransportType = "uart"
	TransportI2C    TransportType = "i2c"
	TransportKernel TransportType = "kernel"
	TransportMock   TransportType = "mock"
)

// Transport moves whole NCI packets to and from the controller.
type Transport interface {
	// ReadPacket blocks until one complete packet (header and payload)
	// arrives or ctx is done.
	ReadPacket(ctx context.Context) ([]byte, error)

	// WritePacket sends one complete packet.
	WritePacket(ctx context.Context, pkt []byte) error

	// Close releases the transport and unblocks a pending ReadPacket.
	Close() error

	// Type returns the transport type
	Type() TransportType
}
