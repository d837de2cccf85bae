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

//go:build !linux

package kernel

import (
	"context"
	"fmt"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/nci"
)

// Transport is only available on Linux.
type Transport struct{}

// New always fails outside Linux.
func New(path string, _ ...Option) (*Transport, error) {
	return nil, fmt.Errorf("kernel NFC device %s: %w", path, nfctag.ErrNotSupported)
}

// ReadPacket implements nci.Transport.
func (*Transport) ReadPacket(context.Context) ([]byte, error) {
	return nil, nfctag.ErrNotSupported
}

// WritePacket implements nci.Transport.
func (*Transport) WritePacket(context.Context, []byte) error {
	return nfctag.ErrNotSupported
}

// Close implements nci.Transport.
func (*Transport) Close() error { return nil }

// Type implements nci.Transport.
func (*Transport) Type() nci.TransportType { return nci.TransportKernel }
